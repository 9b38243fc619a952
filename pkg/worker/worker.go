// Package worker consumes job events and runs each job's remaining pipeline
// steps over its packet.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sourcepipe/sourcepipe/pkg/eventbus"
	"github.com/sourcepipe/sourcepipe/pkg/events"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
	"github.com/sourcepipe/sourcepipe/pkg/registry"
)

// jobSnapshot is the immutable flow configuration captured at trigger time.
type jobSnapshot struct {
	FetcherID     string              `json:"fetcher_id"`
	Configuration map[string]any      `json:"configuration"`
	Steps         []models.StepConfig `json:"steps"`
}

// Worker executes pending jobs delivered over the event bus.
type Worker struct {
	id          string
	bus         eventbus.EventBus
	persistence persistence.Persistence
	registry    *registry.Registry
	clock       protocol.Clock
	logger      *slog.Logger
}

// NewWorker creates a worker with a generated id.
func NewWorker(
	bus eventbus.EventBus,
	persist persistence.Persistence,
	reg *registry.Registry,
	clock protocol.Clock,
	logger *slog.Logger,
) *Worker {
	id := uuid.New().String()

	return &Worker{
		id:          id,
		bus:         bus,
		persistence: persist,
		registry:    reg,
		clock:       clock,
		logger:      logger.With("module", "worker", "worker_id", id),
	}
}

// Start subscribes to job events and blocks until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	err := w.bus.Handle(events.JobCreatedEvent, func(ctx context.Context, event any) error {
		created, ok := event.(*events.JobCreated)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return w.ProcessJob(ctx, created.JobID)
	})
	if err != nil {
		return err
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	return ctx.Err()
}

// ProcessJob runs one job through its remaining steps, transitioning
// pending→running→{completed|failed}. Ledger entries are never rolled back
// on failure: duplicate prevention beats completeness.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) error {
	logger := w.logger.With("job_id", jobID)

	job, err := w.persistence.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if err := job.Start(); err != nil {
		logger.WarnContext(ctx, "Job is not runnable", "status", job.Status, "error", err)

		return nil
	}

	if err := w.persistence.Jobs().Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	logger.InfoContext(ctx, "Job started", "flow_id", job.FlowID)

	start := w.clock.Now()

	if err := w.runSteps(ctx, job, logger); err != nil {
		return w.fail(ctx, job, err, start, logger)
	}

	return w.complete(ctx, job, start, logger)
}

func (w *Worker) runSteps(ctx context.Context, job *models.Job, logger *slog.Logger) error {
	packet, err := job.Packet()
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrSerialization, err)
	}

	var snapshot jobSnapshot
	if len(job.BaseConfig) > 0 {
		if err := json.Unmarshal(job.BaseConfig, &snapshot); err != nil {
			return fmt.Errorf("%w: invalid configuration snapshot: %w", models.ErrSerialization, err)
		}
	}

	for _, stepConfig := range snapshot.Steps {
		config := stepConfig.Configuration
		if config == nil {
			config = map[string]any{}
		}

		if stepConfig.ID != "" {
			config["id"] = stepConfig.ID
		}

		step, err := w.registry.CreateStep(stepConfig.Type, config)
		if err != nil {
			return fmt.Errorf("failed to create step %s: %w", stepConfig.ID, err)
		}

		packet, err = step.Execute(ctx, packet, logger)
		if err != nil {
			return fmt.Errorf("step %s failed: %w", stepConfig.ID, err)
		}
	}

	return nil
}

func (w *Worker) complete(ctx context.Context, job *models.Job, start time.Time, logger *slog.Logger) error {
	now := w.clock.Now()

	if err := job.Complete(now); err != nil {
		return err
	}

	if err := w.persistence.Jobs().Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	logger.InfoContext(ctx, "Job completed", "duration", now.Sub(start))

	event := events.JobFinished{
		BaseEvent: events.NewBaseEvent(events.JobFinishedEvent, job.FlowID),
		JobID:     job.ID,
		Duration:  now.Sub(start),
	}
	event.WorkerID = w.id

	if err := w.bus.Publish(ctx, job.FlowID, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish completion event", "error", err)
	}

	return nil
}

func (w *Worker) fail(ctx context.Context, job *models.Job, cause error, start time.Time, logger *slog.Logger) error {
	now := w.clock.Now()

	logger.ErrorContext(ctx, "Job failed", "error", cause)

	if err := job.Fail(now, cause); err != nil {
		return err
	}

	if err := w.persistence.Jobs().Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	event := events.JobFailed{
		BaseEvent: events.NewBaseEvent(events.JobFailedEvent, job.FlowID),
		JobID:     job.ID,
		Error:     cause.Error(),
		Duration:  now.Sub(start),
	}
	event.WorkerID = w.id

	if err := w.bus.Publish(ctx, job.FlowID, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish failure event", "error", err)
	}

	return nil
}
