package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomStatus is the lifecycle tag of a claim room.
type RoomStatus string

const (
	RoomStatusPending RoomStatus = "pending"
	// Reserved, never emitted yet.
	RoomStatusClosed   RoomStatus = "closed"
	RoomStatusResolved RoomStatus = "resolved"
)

// ApprovalStatus gates contact-info disclosure for a room.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
)

// ClaimRoom is the conversation between the reporter of an item and one claimer.
// At most one room exists per (ItemID, ClaimerID); the composite unique index
// is the source of truth for that.
type ClaimRoom struct {
	// ID is the unique identifier of the room (UUID).
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	// ItemID references the reported item. Set at creation, never changed.
	ItemID string `gorm:"type:varchar(64);not null;uniqueIndex:ux_room_item_claimer,priority:1" json:"item_id"`
	// ClaimerID is the identity asking to claim the item. Set at creation, never changed.
	ClaimerID string `gorm:"type:varchar(64);not null;uniqueIndex:ux_room_item_claimer,priority:2" json:"claimer_id"`

	Status         RoomStatus     `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	ApprovalStatus ApprovalStatus `gorm:"type:varchar(16);not null;default:pending" json:"approval_status"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ClaimRoom) TableName() string { return "claim_rooms" }

// BeforeCreate assigns a UUID when the caller did not provide one.
func (r *ClaimRoom) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// IsApproved reports whether the reporter has approved the room.
func (r ClaimRoom) IsApproved() bool {
	return r.ApprovalStatus == ApprovalApproved
}
