// Package scheduler converts scheduling triggers into durable single-item
// jobs and hands them to the asynchronous executor.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sourcepipe/sourcepipe/pkg/eventbus"
	"github.com/sourcepipe/sourcepipe/pkg/events"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
	"github.com/sourcepipe/sourcepipe/pkg/registry"
	"github.com/sourcepipe/sourcepipe/pkg/tracer"
)

// Dispatcher expands one trigger into zero or more pending jobs. Each
// invocation is discrete and stateless; overlapping triggers are only
// guarded by the ledger's per-key uniqueness.
type Dispatcher struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	executor    protocol.JobExecutor
	bus         eventbus.EventPublisher
	clock       protocol.Clock
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. The bus is optional; without one no
// dispatch events are announced.
func NewDispatcher(
	persist persistence.Persistence,
	reg *registry.Registry,
	executor protocol.JobExecutor,
	bus eventbus.EventPublisher,
	clock protocol.Clock,
	tr trace.Tracer,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		persistence: persist,
		registry:    reg,
		executor:    executor,
		bus:         bus,
		clock:       clock,
		tracer:      tr,
		logger:      logger.With("module", "dispatcher"),
	}
}

// TriggerProject fans a project trigger out over its child flows. Only flows
// that inherit the project schedule, are active and schedulable are
// candidates; one candidate's failure never aborts the batch.
func (d *Dispatcher) TriggerProject(ctx context.Context, projectID string) error {
	ctx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.trigger_project",
		attribute.String(tracer.ProjectIDKey, projectID))
	defer span.End()

	logger := d.logger.With("project_id", projectID)

	project, err := d.persistence.Flows().ProjectByID(ctx, projectID)
	if err != nil {
		tracer.SetError(span, err)

		return fmt.Errorf("failed to load project: %w", err)
	}

	if project.Status != models.FlowStatusActive {
		logger.InfoContext(ctx, "Project is paused, skipping trigger")

		return nil
	}

	flows, err := d.persistence.Flows().ByProject(ctx, projectID)
	if err != nil {
		tracer.SetError(span, err)

		return fmt.Errorf("failed to load project flows: %w", err)
	}

	jobsCreated := 0

	for _, flow := range flows {
		if !flow.SchedulableOnProjectTrigger() {
			logger.DebugContext(ctx, "Flow is not a candidate on project trigger",
				"flow_id", flow.ID, "schedule_mode", flow.ScheduleMode, "status", flow.Status)

			continue
		}

		jobsCreated += d.runCandidate(ctx, flow)
	}

	logger.InfoContext(ctx, "Project trigger finished", "jobs_created", jobsCreated)

	// The last-run timestamp only advances when something was actually
	// enqueued. A pass that found nothing eligible does not count as a run.
	if jobsCreated > 0 {
		now := d.clock.Now()
		project.LastRunAt = &now

		if err := d.persistence.Flows().SaveProject(ctx, project); err != nil {
			return fmt.Errorf("failed to update project last run: %w", err)
		}

		d.announce(ctx, "", projectID, jobsCreated, logger)
	}

	return nil
}

// TriggerFlow runs a single flow that carries its own schedule.
func (d *Dispatcher) TriggerFlow(ctx context.Context, flowID string) error {
	ctx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.trigger_flow",
		attribute.String(tracer.FlowIDKey, flowID))
	defer span.End()

	logger := d.logger.With("flow_id", flowID)

	flow, err := d.persistence.Flows().GetByID(ctx, flowID)
	if err != nil {
		tracer.SetError(span, err)

		return fmt.Errorf("failed to load flow: %w", err)
	}

	if !flow.SchedulableOnFlowTrigger() {
		logger.InfoContext(ctx, "Flow is not eligible for its own trigger",
			"schedule_mode", flow.ScheduleMode, "status", flow.Status)

		return nil
	}

	jobsCreated := d.runCandidate(ctx, flow)

	logger.InfoContext(ctx, "Flow trigger finished", "jobs_created", jobsCreated)

	if jobsCreated > 0 {
		now := d.clock.Now()
		flow.LastRunAt = &now

		if err := d.persistence.Flows().Save(ctx, flow); err != nil {
			return fmt.Errorf("failed to update flow last run: %w", err)
		}

		d.announce(ctx, flow.ID, flow.ProjectID, jobsCreated, logger)
	}

	return nil
}

// announce publishes a best-effort dispatch summary event.
func (d *Dispatcher) announce(ctx context.Context, flowID, projectID string, jobsCreated int, logger *slog.Logger) {
	if d.bus == nil {
		return
	}

	event := events.FlowDispatched{
		BaseEvent:   events.NewBaseEvent(events.FlowDispatchedEvent, flowID),
		ProjectID:   projectID,
		JobsCreated: jobsCreated,
	}

	key := flowID
	if key == "" {
		key = projectID
	}

	if err := d.bus.Publish(ctx, key, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish dispatch event", "error", err)
	}
}

// runCandidate fetches for one flow and creates a job per packet. All
// failures are logged and contained: the return value is the number of jobs
// created.
func (d *Dispatcher) runCandidate(ctx context.Context, flow *models.Flow) int {
	ctx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.run_candidate",
		attribute.String(tracer.FlowIDKey, flow.ID),
		attribute.String(tracer.FetcherIDKey, flow.FetcherID))
	defer span.End()

	logger := d.logger.With("flow_id", flow.ID, "fetcher_id", flow.FetcherID)

	factory, err := d.registry.FetcherFactory(flow.FetcherID)
	if err != nil {
		logger.ErrorContext(ctx, "Unknown fetcher", "error", err)
		tracer.SetError(span, err)

		return 0
	}

	if !factory.Schedulable() {
		logger.InfoContext(ctx, "Fetcher is not schedulable, skipping flow")

		return 0
	}

	handler, err := d.registry.CreateFetcher(flow.FetcherID, flow.Configuration)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create fetch handler", "error", err)
		tracer.SetError(span, err)

		return 0
	}

	packets, err := handler.Fetch(ctx, protocol.FetchScope{FlowID: flow.ID, Owner: flow.Owner})
	if err != nil {
		logger.ErrorContext(ctx, "Fetch failed", "error", err)
		tracer.SetError(span, err)

		return 0
	}

	if len(packets) == 0 {
		logger.InfoContext(ctx, "No eligible items")

		return 0
	}

	// One immutable configuration snapshot per candidate; every job of this
	// batch shares it.
	baseConfig, err := json.Marshal(map[string]any{
		"fetcher_id":    flow.FetcherID,
		"configuration": flow.Configuration,
		"steps":         flow.Steps,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to snapshot flow configuration", "error", err)
		tracer.SetError(span, err)

		return 0
	}

	jobsCreated := 0

	for _, packet := range packets {
		payload, err := json.Marshal(packet)
		if err != nil {
			// Serialization failures are fatal to this one item only.
			logger.ErrorContext(ctx, "Failed to serialize packet",
				"error", fmt.Errorf("%w: %w", models.ErrSerialization, err))

			continue
		}

		job := models.NewJob(flow.ID, flow.Owner, baseConfig, payload)

		if err := d.persistence.Jobs().Save(ctx, job); err != nil {
			logger.ErrorContext(ctx, "Failed to persist job", "error", err)

			continue
		}

		if err := d.executor.Submit(ctx, job.ID); err != nil {
			// The job stays pending; a worker sweep can still pick it up.
			logger.WarnContext(ctx, "Failed to submit job for execution",
				"job_id", job.ID, "error", err)
		}

		jobsCreated++
	}

	return jobsCreated
}
