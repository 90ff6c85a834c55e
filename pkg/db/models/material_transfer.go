package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/pkg/enums"
)

// MaterialTransfer records a move of material between two groups so that
// aborted attempts stay visible.
type MaterialTransfer struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	SourceGroupID uuid.UUID            `gorm:"column:source_group_id;type:uuid;not null;index"`
	SourceKind    enums.GroupKind      `gorm:"column:source_kind;type:text;not null"`
	DestGroupID   uuid.UUID            `gorm:"column:dest_group_id;type:uuid;not null;index"`
	DestKind      enums.GroupKind      `gorm:"column:dest_kind;type:text;not null"`
	Name          string               `gorm:"column:name;not null"`
	Unit          string               `gorm:"column:unit;not null"`
	Amount        decimal.Decimal      `gorm:"column:amount;type:numeric(18,4);not null"`
	ActorID       string               `gorm:"column:actor_id;not null"`
	Status        enums.TransferStatus `gorm:"column:status;type:text;not null"`
	FailureReason *string              `gorm:"column:failure_reason"`
	CommittedAt   *time.Time           `gorm:"column:committed_at"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (MaterialTransfer) TableName() string { return "material_transfers" }

func (t *MaterialTransfer) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
