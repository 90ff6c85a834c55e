package messages

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/repo"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/pagination"
)

// Repository persists group messages.
type Repository struct {
	repo.Base
}

// NewRepository binds the repository to a connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts the message; the id is assigned by the model hook.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, row *models.GroupMessage) error {
	return r.Conn(ctx, tx).Create(row).Error
}

// List returns up to limit+1 messages after cursor in (sent_at, id) order.
func (r *Repository) List(ctx context.Context, groupID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.GroupMessage, error) {
	query := r.DB(ctx).
		Where("group_id = ?", groupID)
	if cursor != nil {
		query = query.Where("(sent_at > ?) OR (sent_at = ? AND id > ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.GroupMessage
	err := query.
		Order("sent_at ASC").
		Order("id ASC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	return rows, err
}

// FindByID loads one message of the group.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, groupID, id uuid.UUID) (*models.GroupMessage, error) {
	var row models.GroupMessage
	if err := r.Conn(ctx, tx).
		Where("group_id = ? AND id = ?", groupID, id).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete hard deletes a message and reports how many rows went away.
func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, groupID, id uuid.UUID) (int64, error) {
	res := r.Conn(ctx, tx).
		Where("group_id = ? AND id = ?", groupID, id).
		Delete(&models.GroupMessage{})
	return res.RowsAffected, res.Error
}
