package models

import (
	"time"
)

type Room struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	IsPrivate       bool      `gorm:"default:false;index" json:"is_private"`
	Image           string    `gorm:"size:512" json:"image"`
	Background      string    `gorm:"size:512" json:"background"`
	LatestMessageID *uint     `json:"latest_message_id"`
	LatestMessage   *Message  `gorm:"foreignKey:LatestMessageID" json:"latest_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Users           []User    `gorm:"many2many:memberships;" json:"users,omitempty"`
	Messages        []Message `json:"messages,omitempty"`
}

// Membership links a user to a room and carries that user's unread count
// for the room. UnreadCount is only ever adjusted through atomic SQL
// updates; it never goes negative.
type Membership struct {
	RoomID      uint      `gorm:"primaryKey" json:"room_id"`
	UserID      uint      `gorm:"primaryKey" json:"user_id"`
	UnreadCount int64     `gorm:"not null;default:0" json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Membership) TableName() string {
	return "memberships"
}
