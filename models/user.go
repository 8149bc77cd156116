package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"size:255;not null" json:"name"`
	Email            string     `gorm:"size:255;not null;unique" json:"email"`
	Password         string     `gorm:"size:255;not null" json:"-"`
	Image            string     `gorm:"size:512" json:"image"`
	IsOnline         bool       `gorm:"default:false" json:"is_online"`
	LastSeen         *time.Time `json:"last_seen"`
	ResetToken       string     `gorm:"size:64;index" json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Rooms            []Room     `gorm:"many2many:memberships;" json:"-"`
}

// BeforeSave hashes the password before saving to the database
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// ValidatePassword checks if the provided password matches the stored hash
func (u *User) ValidatePassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// PublicUser is the display-ready projection embedded in messages and
// returned from user lookups.
type PublicUser struct {
	ID       uint       `json:"id"`
	Name     string     `json:"name"`
	Image    string     `json:"image"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Public strips credentials and private fields from a user record.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Name:     u.Name,
		Image:    u.Image,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}
