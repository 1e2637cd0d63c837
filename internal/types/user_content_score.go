package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserContentScore struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RoomID          string         `gorm:"not null;index:idx_room_student_content,unique;column:room_id" json:"room_id"`
	StudentID       string         `gorm:"not null;index:idx_room_student_content,unique;column:student_id" json:"student_id"`
	ContentKey      string         `gorm:"not null;index:idx_room_student_content,unique;column:content_key" json:"content_key"`
	Seen            bool           `gorm:"column:seen;not null;default:false" json:"seen"`
	ContentType     *string        `gorm:"column:content_type" json:"content_type,omitempty"`
	ContentName     *string        `gorm:"column:content_name" json:"content_name,omitempty"`
	ContentParentID *string        `gorm:"column:content_parent_id" json:"content_parent_id,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserContentScore) TableName() string { return "user_content_score" }
