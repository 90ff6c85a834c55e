package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/types"
)

// GroupRecord is a site or store: identity, catalog selection and the embedded
// material ledger. Membership lives in group_members.
type GroupRecord struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Kind      enums.GroupKind      `gorm:"column:kind;type:text;not null;index:idx_group_records_kind"`
	Name      string               `gorm:"column:name;not null"`
	Location  string               `gorm:"column:location;not null"`
	PhotoURL  *string              `gorm:"column:photo_url"`
	AdminID   string               `gorm:"column:admin_id;not null"`
	Category  *string              `gorm:"column:category"`
	Companies pq.StringArray       `gorm:"column:companies;type:text[]"`
	Materials types.MaterialLedger `gorm:"column:materials;type:jsonb;not null"`
	Version   int64                `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (GroupRecord) TableName() string { return "group_records" }

func (g *GroupRecord) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.Version == 0 {
		g.Version = 1
	}
	if g.Materials == nil {
		g.Materials = types.MaterialLedger{}
	}
	return nil
}

// IsAdmin reports whether userID created the group.
func (g *GroupRecord) IsAdmin(userID string) bool {
	return g != nil && userID != "" && g.AdminID == userID
}
