package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RawAnswer is the durable record of one scored telemetry statement as it
// arrived off the stream. H5PSubID defaults to empty string rather than null
// so the identity index deduplicates root-content rows too. A Timestamp of 0
// marks the placeholder row for content that was touched but never answered.
type RawAnswer struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RoomID    string         `gorm:"not null;index:idx_raw_answer_identity,unique;column:room_id" json:"room_id"`
	StudentID string         `gorm:"not null;index:idx_raw_answer_identity,unique;column:student_id" json:"student_id"`
	H5PID     string         `gorm:"not null;index:idx_raw_answer_identity,unique;column:h5p_id" json:"h5p_id"`
	H5PSubID  string         `gorm:"not null;default:'';index:idx_raw_answer_identity,unique;column:h5p_sub_id" json:"h5p_sub_id"`
	Timestamp int64          `gorm:"not null;index:idx_raw_answer_identity,unique;column:timestamp" json:"timestamp"`
	Score     *float64       `gorm:"column:score" json:"score,omitempty"`
	Response  *string        `gorm:"column:response" json:"response,omitempty"`
	Payload   datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RawAnswer) TableName() string { return "raw_answer" }
