package websocket

import "encoding/json"

// Event kinds delivered to subscribers.
const (
	EventInsert    = "insert"
	EventUpdate    = "update"
	EventBroadcast = "broadcast"
)

// Tables referenced by row-level change events.
const (
	TableMessages    = "messages"
	TableRooms       = "rooms"
	TableMemberships = "memberships"
)

// Ephemeral broadcast names.
const (
	BroadcastTyping     = "typing"
	BroadcastStopTyping = "stop_typing"
)

// Event is the envelope delivered to clients. Row-level change events
// carry table and row; broadcast events carry name and payload.
type Event struct {
	Event   string          `json:"event"`
	Table   string          `json:"table,omitempty"`
	Row     json.RawMessage `json:"row,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientMessage is what a connected client sends upstream: channel
// control (join_room/leave_room) or an ephemeral broadcast scoped to a
// room channel.
type ClientMessage struct {
	Type    string          `json:"type"`
	RoomID  uint            `json:"room_id"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingPayload is the body of typing/stop_typing broadcasts. Receivers
// drop events carrying their own user id.
type TypingPayload struct {
	UserID   uint   `json:"user_id"`
	UserName string `json:"user_name"`
}
