package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatMessage is a single message in a claim room.
// Authoritative rows are immutable once written. Local placeholders carry a
// "pending-N" ID and IsPending=true until the server copy arrives.
type ChatMessage struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RoomID   string `gorm:"type:varchar(36);not null;index:idx_room_created,priority:1" json:"room_id"`
	SenderID string `gorm:"type:varchar(64);not null" json:"sender_id"`
	Body     string `gorm:"type:text;not null" json:"body"`

	// CreatedAt is the authoritative ordering key.
	CreatedAt time.Time `gorm:"index:idx_room_created,priority:2" json:"created_at"`
	// Seq breaks ties between rows with the same CreatedAt. Snowflake IDs are time ordered.
	Seq int64 `gorm:"not null;default:0" json:"seq"`

	IsSystemMessage bool `gorm:"not null;default:false" json:"is_system_message"`
	// IsPending is local-only.
	IsPending bool `gorm:"-" json:"is_pending,omitempty"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// ContentKey identifies messages by author and text, which is what optimistic
// reconciliation matches on.
type ContentKey struct {
	SenderID string
	Body     string
}

func (m ChatMessage) Key() ContentKey {
	return ContentKey{SenderID: m.SenderID, Body: m.Body}
}

// Before orders messages by CreatedAt, then Seq, then ID.
func (m ChatMessage) Before(o ChatMessage) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	if m.Seq != o.Seq {
		return m.Seq < o.Seq
	}
	return m.ID < o.ID
}
