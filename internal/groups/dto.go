package groups

import (
	"time"

	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/types"
)

// CreateInput describes a new site or store.
type CreateInput struct {
	Kind      enums.GroupKind
	Name      string
	Location  string
	PhotoURL  *string
	Category  string
	Companies []string
}

// UpdateInput carries the editable settings. Nil fields are left unchanged;
// an empty PhotoURL clears the photo.
type UpdateInput struct {
	Name     *string
	Location *string
	PhotoURL *string
}

// GroupDTO is a group record with its member ids.
type GroupDTO struct {
	ID        uuid.UUID            `json:"id"`
	Kind      enums.GroupKind      `json:"kind"`
	Name      string               `json:"name"`
	Location  string               `json:"location"`
	PhotoURL  *string              `json:"photoURL,omitempty"`
	AdminID   string               `json:"adminId"`
	Members   []string             `json:"members"`
	Materials types.MaterialLedger `json:"materials"`
	Category  *string              `json:"category,omitempty"`
	Companies []string             `json:"companies"`
	Version   int64                `json:"version"`
	IsAdmin   bool                 `json:"isAdmin"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func toDTO(group *models.GroupRecord, members []string, materials types.MaterialLedger, viewer string) *GroupDTO {
	if members == nil {
		members = []string{}
	}
	if materials == nil {
		materials = types.MaterialLedger{}
	}
	companies := append([]string{}, group.Companies...)
	return &GroupDTO{
		ID:        group.ID,
		Kind:      group.Kind,
		Name:      group.Name,
		Location:  group.Location,
		PhotoURL:  group.PhotoURL,
		AdminID:   group.AdminID,
		Members:   members,
		Materials: materials,
		Category:  group.Category,
		Companies: companies,
		Version:   group.Version,
		IsAdmin:   group.IsAdmin(viewer),
		CreatedAt: group.CreatedAt,
		UpdatedAt: group.UpdatedAt,
	}
}

// GroupSummary is a row of the home screen list.
type GroupSummary struct {
	ID            uuid.UUID       `json:"id"`
	Kind          enums.GroupKind `json:"kind"`
	Name          string          `json:"name"`
	Location      string          `json:"location"`
	PhotoURL      *string         `json:"photoURL,omitempty"`
	AdminID       string          `json:"adminId"`
	MemberCount   int64           `json:"memberCount"`
	MaterialCount int             `json:"materialCount"`
	IsAdmin       bool            `json:"isAdmin"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// MemberDTO is a member with whatever profile data exists.
type MemberDTO struct {
	UserID      string    `json:"id"`
	Username    *string   `json:"username,omitempty"`
	Email       *string   `json:"email,omitempty"`
	DisplayName *string   `json:"displayName,omitempty"`
	PhotoURL    *string   `json:"photoURL,omitempty"`
	IsAdmin     bool      `json:"isAdmin"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// MembershipResult reports the member list after an add.
type MembershipResult struct {
	Members []string `json:"members"`
	Added   bool     `json:"added"`
}
