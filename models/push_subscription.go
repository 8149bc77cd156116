package models

import (
	"time"
)

// PushSubscription is one webpush endpoint registered by a user. A user
// may hold several (one per browser/device). Dead endpoints are pruned
// by the background sweep once delivery reports them gone.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Endpoint  string    `gorm:"size:1024;not null" json:"endpoint"`
	P256dh    string    `gorm:"size:255;not null" json:"p256dh"`
	Auth      string    `gorm:"size:255;not null" json:"auth"`
	Dead      bool      `gorm:"default:false;index" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
