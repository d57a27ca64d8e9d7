package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/notification-ledger/internal/repository"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
	"github.com/jwalitptl/notification-ledger/pkg/metrics"
)

// RetentionWorker deletes notifications that were read more than
// retentionDays ago. Unread notifications are kept regardless of age.
// A retentionDays of zero disables cleanup.
type RetentionWorker struct {
	repo          repository.NotificationRepository
	retentionDays int
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewRetentionWorker(repo repository.NotificationRepository, retentionDays int, logger *logger.Logger, metrics *metrics.Metrics) *RetentionWorker {
	return &RetentionWorker{
		repo:          repo,
		retentionDays: retentionDays,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

func (w *RetentionWorker) Name() string { return "retention" }

func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	if w.retentionDays <= 0 {
		return nil
	}
	cutoff := w.now().UTC().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up notifications: %w", err)
	}

	w.metrics.RetentionDeletions.Add(float64(rows))
	w.logger.Info("Cleaned up read notifications", "deleted", rows, "cutoff", cutoff.Format(time.RFC3339))
	return nil
}
