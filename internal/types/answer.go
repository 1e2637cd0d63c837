package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Answer rows are append-only; the identity index absorbs re-delivery.
type Answer struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RoomID               string         `gorm:"not null;index:idx_answer_identity,unique;column:room_id" json:"room_id"`
	StudentID            string         `gorm:"not null;index:idx_answer_identity,unique;column:student_id" json:"student_id"`
	ContentKey           string         `gorm:"not null;index:idx_answer_identity,unique;column:content_key" json:"content_key"`
	Timestamp            int64          `gorm:"not null;index:idx_answer_identity,unique;column:timestamp" json:"timestamp"`
	Response             *string        `gorm:"column:response" json:"response,omitempty"`
	Score                *float64       `gorm:"column:score" json:"score,omitempty"`
	MinimumPossibleScore *float64       `gorm:"column:minimum_possible_score" json:"minimum_possible_score,omitempty"`
	MaximumPossibleScore *float64       `gorm:"column:maximum_possible_score" json:"maximum_possible_score,omitempty"`
	CreatedAt            time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Answer) TableName() string { return "answer" }
