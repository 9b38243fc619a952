package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

const defaultPollInterval = 30 * time.Second

// Runner polls the schedule table and fires the dispatcher for every due
// entry. It is the process-level loop; the dispatcher itself stays a
// discrete, stateless entry point.
type Runner struct {
	persistence persistence.Persistence
	dispatcher  *Dispatcher
	clock       protocol.Clock
	interval    time.Duration
	logger      *slog.Logger
}

// NewRunner creates a schedule runner.
func NewRunner(
	persist persistence.Persistence,
	dispatcher *Dispatcher,
	clock protocol.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *Runner {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Runner{
		persistence: persist,
		dispatcher:  dispatcher,
		clock:       clock,
		interval:    interval,
		logger:      logger.With("module", "schedule_runner"),
	}
}

// Run polls until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "Schedule runner started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Schedule runner stopped")

			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick triggers every due schedule once and advances its next execution
// time. Exported for deterministic tests.
func (r *Runner) Tick(ctx context.Context) {
	now := r.clock.Now()

	due, err := r.persistence.Schedules().Due(ctx, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to load due schedules", "error", err)

		return
	}

	for _, schedule := range due {
		logger := r.logger.With("unit_kind", schedule.UnitKind, "unit_id", schedule.UnitID)

		switch schedule.UnitKind {
		case "project":
			err = r.dispatcher.TriggerProject(ctx, schedule.UnitID)
		case "flow":
			err = r.dispatcher.TriggerFlow(ctx, schedule.UnitID)
		default:
			logger.WarnContext(ctx, "Unknown schedule unit kind")

			continue
		}

		if err != nil {
			logger.ErrorContext(ctx, "Trigger failed", "error", err)
		}

		if err := schedule.UpdateNextDueAt(); err != nil {
			logger.ErrorContext(ctx, "Failed to advance schedule", "error", err)

			continue
		}

		if err := r.persistence.Schedules().Save(ctx, schedule); err != nil {
			logger.ErrorContext(ctx, "Failed to persist schedule", "error", err)
		}
	}
}
