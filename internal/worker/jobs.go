package worker

import (
	"context"
	"sync"

	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/pkg/worker"
)

// NewRunners builds the periodic jobs of a worker process: the alert and
// reminder dispatchers and, when retention is enabled, the retention worker.
func NewRunners(deps Deps, dispatch config.DispatchConfig, retention config.RetentionConfig) []*worker.Runner {
	cfg := DispatcherConfig{
		BatchSize:     dispatch.BatchSize,
		RetryAttempts: dispatch.RetryAttempts,
		RetryDelay:    dispatch.RetryDelay,
		ReminderDelay: dispatch.ReminderDelay,
	}

	runners := []*worker.Runner{
		worker.NewRunner(NewAlertDispatcher(deps, cfg), dispatch.AlertPollInterval, deps.Logger),
		worker.NewRunner(NewReminderDispatcher(deps, cfg), dispatch.ReminderPollInterval, deps.Logger),
	}
	if retention.Days > 0 {
		runners = append(runners, worker.NewRunner(
			NewRetentionWorker(deps.Notifications, retention.Days, deps.Logger, deps.Metrics),
			retention.Interval,
			deps.Logger,
		))
	}
	return runners
}

// StartAll runs every runner in its own goroutine. The returned WaitGroup is
// done once all of them stopped after ctx was cancelled.
func StartAll(ctx context.Context, runners []*worker.Runner) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *worker.Runner) {
			defer wg.Done()
			r.Start(ctx)
		}(r)
	}
	return &wg
}
