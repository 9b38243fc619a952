package scheduler

import (
	"context"
	"fmt"

	"github.com/sourcepipe/sourcepipe/pkg/eventbus"
	"github.com/sourcepipe/sourcepipe/pkg/events"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// EventBusExecutor submits jobs by publishing JobCreated events; workers
// consume them asynchronously.
type EventBusExecutor struct {
	bus  eventbus.EventPublisher
	jobs persistence.JobRepository
}

// NewEventBusExecutor creates an executor backed by the event bus.
func NewEventBusExecutor(bus eventbus.EventPublisher, jobs persistence.JobRepository) *EventBusExecutor {
	return &EventBusExecutor{bus: bus, jobs: jobs}
}

// Submit announces the persisted job on the bus.
func (e *EventBusExecutor) Submit(ctx context.Context, jobID string) error {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	event := events.JobCreated{
		BaseEvent: events.NewBaseEvent(events.JobCreatedEvent, job.FlowID),
		JobID:     job.ID,
		Owner:     job.Owner,
	}

	return e.bus.Publish(ctx, job.FlowID, event)
}
