package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity is the caller as seen by the identity provider.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// User is the locally stored identity record. TelegramChatID is optional and
// only used for notifications.
type User struct {
	ID             string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	DisplayName    string `gorm:"type:text" json:"display_name"`
	TelegramChatID *int64 `gorm:"uniqueIndex" json:"-"`
	// Language of notifications; empty means the service default.
	Language string `gorm:"type:varchar(8)" json:"language,omitempty"`
}

// BeforeCreate generates a UUID when the user has no ID yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

func (u User) Identity() Identity {
	return Identity{ID: u.ID, DisplayName: u.DisplayName}
}
