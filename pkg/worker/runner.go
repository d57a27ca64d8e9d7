package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/notification-ledger/pkg/logger"
)

// Job is one pass of periodic work.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Runner ticks a Job until its context is cancelled. A failed pass is logged
// and the next tick runs again.
type Runner struct {
	job      Job
	interval time.Duration
	logger   *logger.Logger
}

func NewRunner(job Job, interval time.Duration, logger *logger.Logger) *Runner {
	if interval <= 0 {
		panic("interval must be greater than 0")
	}
	return &Runner{
		job:      job,
		interval: interval,
		logger:   logger,
	}
}

func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Starting worker", "worker", r.job.Name(), "interval", r.interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down worker", "worker", r.job.Name())
			return
		case <-ticker.C:
			if err := r.job.RunOnce(ctx); err != nil {
				r.logger.Error(err, "Worker pass failed", "worker", r.job.Name())
			}
		}
	}
}

// Retry calls fn up to attempts times with delay between tries. It stops
// early once ctx is done and returns the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
