package models

import (
	"time"

	"github.com/google/uuid"
)

// GroupMember links a user to a site or store. Insertion order is kept via
// created_at.
type GroupMember struct {
	GroupID   uuid.UUID `gorm:"column:group_id;type:uuid;primaryKey"`
	UserID    string    `gorm:"column:user_id;primaryKey;index:idx_group_members_user"`
	AddedBy   *string   `gorm:"column:added_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (GroupMember) TableName() string { return "group_members" }
