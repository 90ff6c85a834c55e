package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/pkg/logger"
)

const (
	staleTransferAfter  = 15 * time.Minute
	staleTransferReason = "abandoned: transfer never committed"
)

type staleTransferRepo interface {
	FailStaleTransfers(ctx context.Context, tx *gorm.DB, cutoff time.Time, reason string) (int64, error)
}

type StaleTransferJobParams struct {
	Logger     *logger.Logger
	Repository staleTransferRepo
	After      time.Duration
}

// NewStaleTransferJob fails transfer records left pending by requests that
// died before committing, so transfer history never shows them as in flight.
func NewStaleTransferJob(params StaleTransferJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("transfer repository required")
	}
	after := params.After
	if after <= 0 {
		after = staleTransferAfter
	}
	return &staleTransferJob{
		logg:  params.Logger,
		repo:  params.Repository,
		after: after,
		now:   time.Now,
	}, nil
}

type staleTransferJob struct {
	logg  *logger.Logger
	repo  staleTransferRepo
	after time.Duration
	now   func() time.Time
}

func (j *staleTransferJob) Name() string { return "stale-transfers" }

func (j *staleTransferJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	failed, err := j.repo.FailStaleTransfers(ctx, nil, cutoff, staleTransferReason)
	if err != nil {
		return fmt.Errorf("stale transfers: %w", err)
	}
	if failed > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_updated": failed,
		}), "marked abandoned transfers as failed")
	}
	return nil
}
