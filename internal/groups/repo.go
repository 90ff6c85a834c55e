package groups

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oneman/oneman-backend/internal/repo"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
)

// Repository persists group records and their members.
type Repository struct {
	repo.Base
}

// NewRepository binds the repository to a connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID loads a group record.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.GroupRecord, error) {
	var group models.GroupRecord
	if err := r.Conn(ctx, tx).First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// IsMember reports whether userID belongs to the group.
func (r *Repository) IsMember(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, userID string) (bool, error) {
	var count int64
	err := r.Conn(ctx, tx).
		Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// Create inserts the group.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, group *models.GroupRecord) error {
	return r.Conn(ctx, tx).Create(group).Error
}

// UpdateSettings writes the editable identity columns.
func (r *Repository) UpdateSettings(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	return r.Conn(ctx, tx).
		Model(&models.GroupRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AddMember inserts the membership and reports whether a row was created.
func (r *Repository) AddMember(ctx context.Context, tx *gorm.DB, member *models.GroupMember) (bool, error) {
	res := r.Conn(ctx, tx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(member)
	return res.RowsAffected > 0, res.Error
}

// RemoveMember deletes the membership and reports whether it existed.
func (r *Repository) RemoveMember(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, userID string) (bool, error) {
	res := r.Conn(ctx, tx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{})
	return res.RowsAffected > 0, res.Error
}

// MemberIDs returns member ids in insertion order.
func (r *Repository) MemberIDs(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.Conn(ctx, tx).
		Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// memberRow is a membership joined with the user's profile, which may be
// missing for members who never completed sign-up.
type memberRow struct {
	UserID      string
	Username    *string
	Email       *string
	DisplayName *string
	PhotoURL    *string
	JoinedAt    time.Time
}

// ListMembers returns members with their profiles in insertion order.
func (r *Repository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]memberRow, error) {
	var rows []memberRow
	err := r.DB(ctx).
		Table("group_members AS gm").
		Select("gm.user_id AS user_id, u.username AS username, u.email AS email, u.display_name AS display_name, u.photo_url AS photo_url, gm.created_at AS joined_at").
		Joins("LEFT JOIN users u ON u.id = gm.user_id").
		Where("gm.group_id = ?", groupID).
		Order("gm.created_at ASC").
		Order("gm.user_id ASC").
		Scan(&rows).Error
	return rows, err
}

// summaryRow is a group the user belongs to with its member count.
type summaryRow struct {
	models.GroupRecord
	MemberCount int64
}

// ListForUser returns the groups userID belongs to, newest first. An empty
// kind lists both sites and stores.
func (r *Repository) ListForUser(ctx context.Context, userID string, kind enums.GroupKind) ([]summaryRow, error) {
	query := r.DB(ctx).
		Table("group_records AS g").
		Select("g.*, (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id) AS member_count").
		Joins("JOIN group_members m ON m.group_id = g.id AND m.user_id = ?", userID)
	if kind != "" {
		query = query.Where("g.kind = ?", kind)
	}
	var rows []summaryRow
	err := query.
		Order("g.created_at DESC").
		Order("g.id DESC").
		Scan(&rows).Error
	return rows, err
}
