package types

import (
	"time"
	"gorm.io/gorm"
)

// Room ids come from the schedule provider, so the external id is the key.
type Room struct {
	RoomID           string         `gorm:"primaryKey;column:room_id" json:"room_id"`
	RecalculatedAt   *time.Time     `gorm:"column:recalculated_at" json:"recalculated_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Room) TableName() string { return "room" }
