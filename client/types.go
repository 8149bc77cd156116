// Package client implements the synchronization side of driftchat: a
// per-room message synchronization controller fed by paginated history
// fetches and a live event stream, a room list controller, and a
// presence reporter. It talks to the backend through the Gateway and
// Subscriber interfaces so transports can be swapped out in tests.
package client

import (
	"context"
	"time"

	"github.com/driftchat/backend/models"
)

// Message is the display-ready message shape held by the controller.
// Optimistic entries carry a LocalID until the server assigns an ID.
type Message struct {
	ID              uint              `json:"id"`
	LocalID         string            `json:"-"`
	Content         string            `json:"content"`
	Media           models.MediaList  `json:"media,omitempty"`
	RoomID          uint              `json:"room_id"`
	User            models.PublicUser `json:"user"`
	IsRead          bool              `json:"is_read"`
	IsSystemMessage bool              `json:"is_system_message"`
	IsOptimistic    bool              `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
}

// before reports whether m sorts ahead of other: creation time first,
// ties broken by insertion id.
func (m Message) before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// RoomSummary is the one room shape shared by the list, the active room
// and search results.
type RoomSummary struct {
	ID            uint     `json:"id"`
	Name          string   `json:"name"`
	IsPrivate     bool     `json:"is_private"`
	Image         string   `json:"image"`
	Background    string   `json:"background"`
	UnreadCount   int64    `json:"unread_count"`
	LatestMessage *Message `json:"latest_message,omitempty"`
}

// MessagesPage is one newest-first page of history.
type MessagesPage struct {
	Messages []Message `json:"messages"`
	NextPage bool      `json:"nextPage"`
	Total    int64     `json:"total"`
}

// Status is a peer's polled presence.
type Status struct {
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

// JoinRequest resolves a room: either join by id, or find-or-create a
// private room by member set (Create forces a new room).
type JoinRequest struct {
	RoomID    uint   `json:"room_id,omitempty"`
	UserIDs   []uint `json:"user_ids,omitempty"`
	IsPrivate bool   `json:"is_private"`
	Name      string `json:"name,omitempty"`
	Create    bool   `json:"create,omitempty"`
}

// Gateway is the HTTP surface the controllers consume.
type Gateway interface {
	GetMessages(ctx context.Context, roomID uint, page, limit int) (MessagesPage, error)
	CreateMessage(ctx context.Context, roomID uint, content string, media models.MediaList) (Message, error)
	ReadMessages(ctx context.Context, roomID uint, messageIDs []uint) (int64, error)
	JoinRoom(ctx context.Context, req JoinRequest) (RoomSummary, error)
	GetUser(ctx context.Context, userID uint) (models.PublicUser, error)
	UserStatus(ctx context.Context, userID uint) (Status, error)
	UpdateStatus(isOnline bool) error
	RoomMembers(ctx context.Context, roomID uint) ([]uint, error)
	Notify(ctx context.Context, userID uint, title, body, url string) error
}

// TypingPayload is the body of typing and stop_typing broadcasts.
type TypingPayload struct {
	UserID   uint   `json:"user_id"`
	UserName string `json:"user_name"`
}

// Handlers receive the events of one room channel.
type Handlers struct {
	OnInsert     func(row []byte)
	OnUpdate     func(row []byte)
	OnTyping     func(userID uint, userName string)
	OnStopTyping func(userID uint, userName string)
}

// Subscription is one held room channel.
type Subscription interface {
	// Broadcast sends an ephemeral event to the channel.
	Broadcast(name string, payload interface{}) error
	// Unsubscribe releases the channel. It is safe to call twice.
	Unsubscribe()
}

// Subscriber opens room channels.
type Subscriber interface {
	Subscribe(roomID uint, h Handlers) (Subscription, error)
}
