/**
 * @description
 * Scheduled job implementations for the ido-service. The soft-cap sweep closes
 * campaigns whose sale window ended below the soft cap so participants can
 * request refunds without waiting for the authority to act.
 */
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
)

const (
	defaultSweepBatchSize = 100
	sweepTimeout          = 50 * time.Second
)

// CampaignCloser defines the application operations needed by the sweep.
type CampaignCloser interface {
	ListSoftCapCloseCandidates(ctx context.Context, limit int) ([]uuid.UUID, error)
	CloseIfSoftCapNotReached(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	closer    CampaignCloser
	actor     string
	batchSize int
	logger    *slog.Logger
}

// NewJobs creates a new Jobs runner. actor is recorded as the caller of every
// close the sweep performs.
func NewJobs(closer CampaignCloser, actor string, batchSize int, logger *slog.Logger) *Jobs {
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &Jobs{
		closer:    closer,
		actor:     actor,
		batchSize: batchSize,
		logger:    logger,
	}
}

// SweepSoftCapCloses is the cron entry point.
func (j *Jobs) SweepSoftCapCloses() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	j.RunSoftCapSweep(ctx)
}

// RunSoftCapSweep closes every candidate campaign in one batch and returns how many were closed.
// A failure on one campaign does not stop the batch.
func (j *Jobs) RunSoftCapSweep(ctx context.Context) int {
	j.logger.Info("starting soft cap sweep job")

	ids, err := j.closer.ListSoftCapCloseCandidates(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("failed to list soft cap close candidates", "error", err)
		return 0
	}

	closed := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			j.logger.Warn("soft cap sweep interrupted", "remaining", len(ids)-i, "error", ctx.Err())
			break
		}

		_, err := j.closer.CloseIfSoftCapNotReached(ctx, id, j.actor)
		switch {
		case err == nil:
			closed++
			j.logger.Info("closed campaign below soft cap", "campaign_id", id)
		case errors.Is(err, domain.ErrPreconditionNotMet):
			j.logger.Info("skipping campaign no longer eligible for soft cap close", "campaign_id", id, "reason", err)
		default:
			j.logger.Error("failed to close campaign below soft cap", "campaign_id", id, "error", err)
		}
	}

	j.logger.Info("soft cap sweep job finished", "candidates", len(ids), "closed", closed)
	return closed
}
