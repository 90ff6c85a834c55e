package materials

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/repo"
	"github.com/oneman/oneman-backend/pkg/db"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/types"
)

// Repository writes ledgers and transfer records.
type Repository struct {
	repo.Base
}

// NewRepository binds the repository to a connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// SaveLedger replaces the group's ledger if the row still has the expected
// version and returns the new version. db.ErrVersionConflict means another
// writer got there first.
func (r *Repository) SaveLedger(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, expectedVersion int64, ledger types.MaterialLedger) (int64, error) {
	if ledger == nil {
		ledger = types.MaterialLedger{}
	}
	res := r.Conn(ctx, tx).
		Model(&models.GroupRecord{}).
		Where("id = ? AND version = ?", groupID, expectedVersion).
		Updates(map[string]any{
			"materials":  ledger,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, db.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// CreateTransfer inserts a transfer record.
func (r *Repository) CreateTransfer(ctx context.Context, tx *gorm.DB, transfer *models.MaterialTransfer) error {
	return r.Conn(ctx, tx).Create(transfer).Error
}

// MarkTransferCommitted flips a pending transfer to committed.
func (r *Repository) MarkTransferCommitted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.Conn(ctx, tx).
		Model(&models.MaterialTransfer{}).
		Where("id = ? AND status = ?", id, enums.TransferStatusPending).
		Updates(map[string]any{
			"status":       enums.TransferStatusCommitted,
			"committed_at": at.UTC(),
			"updated_at":   time.Now().UTC(),
		}).Error
}

// MarkTransferFailed records why a pending transfer did not commit.
func (r *Repository) MarkTransferFailed(ctx context.Context, id uuid.UUID, reason string) error {
	reason = truncateReason(reason)
	return r.DB(ctx).
		Model(&models.MaterialTransfer{}).
		Where("id = ? AND status = ?", id, enums.TransferStatusPending).
		Updates(map[string]any{
			"status":         enums.TransferStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// FailStaleTransfers marks transfers still pending since before cutoff as
// failed. A pending row that old belongs to a request that died between
// recording the attempt and committing it.
func (r *Repository) FailStaleTransfers(ctx context.Context, tx *gorm.DB, cutoff time.Time, reason string) (int64, error) {
	res := r.Conn(ctx, tx).
		Model(&models.MaterialTransfer{}).
		Where("status = ? AND created_at < ?", enums.TransferStatusPending, cutoff.UTC()).
		Updates(map[string]any{
			"status":         enums.TransferStatusFailed,
			"failure_reason": truncateReason(reason),
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// maxReasonBytes bounds failure_reason without splitting a UTF-8 sequence.
const maxReasonBytes = 1024

func truncateReason(reason string) string {
	if len(reason) <= maxReasonBytes {
		return reason
	}
	cut := maxReasonBytes
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// ListTransfers returns the most recent transfers touching the group,
// optionally only those in status.
func (r *Repository) ListTransfers(ctx context.Context, groupID uuid.UUID, status enums.TransferStatus, limit int) ([]models.MaterialTransfer, error) {
	var rows []models.MaterialTransfer
	q := r.DB(ctx).Where("(source_group_id = ? OR dest_group_id = ?)", groupID, groupID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
