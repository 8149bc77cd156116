package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Media describes one attachment on a message.
type Media struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Size   int64  `json:"size,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaList is stored as a JSONB column.
type MediaList []Media

func (m MediaList) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *MediaList) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("unsupported media column type")
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, m)
}

type Message struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Content         string    `gorm:"type:text" json:"content"`
	Media           MediaList `gorm:"type:jsonb" json:"media,omitempty"`
	RoomID          uint      `gorm:"index" json:"room_id"`
	UserID          uint      `json:"user_id"`
	User            User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	IsRead          bool      `gorm:"default:false" json:"is_read"`
	IsSystemMessage bool      `gorm:"default:false" json:"is_system_message"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
