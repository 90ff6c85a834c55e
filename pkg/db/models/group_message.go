package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/types"
)

// GroupMessage is one entry of a group's message log. Exactly one of Text,
// ImageURL or Material is set, matching Type.
type GroupMessage struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	GroupID      uuid.UUID            `gorm:"column:group_id;type:uuid;not null;index:idx_group_messages_order,priority:1"`
	Type         enums.MessageType    `gorm:"column:type;type:text;not null"`
	SentAt       time.Time            `gorm:"column:sent_at;not null;index:idx_group_messages_order,priority:2"`
	UserID       string               `gorm:"column:user_id;not null"`
	UserName     string               `gorm:"column:user_name;not null"`
	UserPhotoURL *string              `gorm:"column:user_photo_url"`
	Text         *string              `gorm:"column:text"`
	ImageURL     *string              `gorm:"column:image_url"`
	Material     *types.MaterialEvent `gorm:"column:material;type:jsonb"`
}

func (GroupMessage) TableName() string { return "group_messages" }

func (m *GroupMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	return nil
}
