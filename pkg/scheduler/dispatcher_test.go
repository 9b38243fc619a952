package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sourcepipe/sourcepipe/pkg/eventbus"
	"github.com/sourcepipe/sourcepipe/pkg/events"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/persistence/file"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
	"github.com/sourcepipe/sourcepipe/pkg/registry"
)

type stubHandler struct {
	packets []*models.DataPacket
	err     error
	fetched *[]string
}

func (h *stubHandler) Fetch(_ context.Context, scope protocol.FetchScope) ([]*models.DataPacket, error) {
	*h.fetched = append(*h.fetched, scope.FlowID)

	if h.err != nil {
		return nil, h.err
	}

	return h.packets, nil
}

func (h *stubHandler) Validate() error { return nil }

type stubFactory struct {
	id          string
	handler     *stubHandler
	schedulable bool
}

func (f *stubFactory) Create(_ map[string]any, _ *slog.Logger) (protocol.FetchHandler, error) {
	return f.handler, nil
}

func (f *stubFactory) ID() string          { return f.id }
func (f *stubFactory) Name() string        { return f.id }
func (f *stubFactory) Description() string { return "test fetcher" }
func (f *stubFactory) Schedulable() bool   { return f.schedulable }

func (f *stubFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

type recordingExecutor struct {
	submitted []string
	err       error
}

func (e *recordingExecutor) Submit(_ context.Context, jobID string) error {
	if e.err != nil {
		return e.err
	}

	e.submitted = append(e.submitted, jobID)

	return nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func somePackets(n int) []*models.DataPacket {
	packets := make([]*models.DataPacket, 0, n)
	for range n {
		packet := models.NewDataPacket("reddit", time.Now())
		packet.Content.Title = "Big Launch Today"
		packets = append(packets, packet)
	}

	return packets
}

type recordingPublisher struct {
	published []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

type dispatcherFixture struct {
	dispatcher  *Dispatcher
	persistence persistence.Persistence
	executor    *recordingExecutor
	bus         *recordingPublisher
	fetched     []string
	clock       *fixedClock
}

func newFixture(t *testing.T, factories ...protocol.FetcherFactory) *dispatcherFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	persist := file.NewPersistence(t.TempDir())
	executor := &recordingExecutor{}
	bus := &recordingPublisher{}
	clock := &fixedClock{now: time.Now().UTC()}

	reg := registry.NewRegistry(logger)
	for _, factory := range factories {
		reg.RegisterFetcher(factory)
	}

	return &dispatcherFixture{
		dispatcher: NewDispatcher(persist, reg, executor, bus, clock,
			noop.NewTracerProvider().Tracer("test"), logger),
		persistence: persist,
		executor:    executor,
		bus:         bus,
		clock:       clock,
	}
}

func saveProject(t *testing.T, persist persistence.Persistence, id string, status models.FlowStatus) {
	t.Helper()

	require.NoError(t, persist.Flows().SaveProject(context.Background(), &models.Project{
		ID:             id,
		Name:           "Test Project",
		CronExpression: "0 * * * *",
		Status:         status,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}))
}

func saveFlow(t *testing.T, persist persistence.Persistence, flow *models.Flow) {
	t.Helper()

	if flow.Name == "" {
		flow.Name = "Test Flow " + flow.ID
	}

	flow.CreatedAt = time.Now().UTC()
	flow.UpdatedAt = flow.CreatedAt

	require.NoError(t, persist.Flows().Save(context.Background(), flow))
}

func TestDispatcher_ProjectTriggerScheduleInheritance(t *testing.T) {
	fetched := []string{}
	factory := &stubFactory{
		id:          "stub",
		handler:     &stubHandler{packets: somePackets(1), fetched: &fetched},
		schedulable: true,
	}

	f := newFixture(t, factory)
	ctx := context.Background()

	saveProject(t, f.persistence, "proj-1", models.FlowStatusActive)

	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-a", ProjectID: "proj-1", FetcherID: "stub",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-b", ProjectID: "proj-1", FetcherID: "stub",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusPaused, Schedulable: true,
	})
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-c", ProjectID: "proj-1", FetcherID: "stub",
		ScheduleMode: models.ScheduleModeManual, Status: models.FlowStatusActive, Schedulable: true,
	})

	require.NoError(t, f.dispatcher.TriggerProject(ctx, "proj-1"))

	assert.Equal(t, []string{"flow-a"}, fetched,
		"only the inheriting active flow is a candidate")

	jobs, err := f.persistence.Jobs().List(ctx, persistence.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "flow-a", jobs[0].FlowID)
	assert.Equal(t, models.JobStatusPending, jobs[0].Status)
	assert.Equal(t, jobs[0].ID, f.executor.submitted[0])

	project, err := f.persistence.Flows().ProjectByID(ctx, "proj-1")
	require.NoError(t, err)
	require.NotNil(t, project.LastRunAt)
	assert.Equal(t, f.clock.now.Unix(), project.LastRunAt.Unix())
}

func TestDispatcher_EmptyRunDoesNotAdvanceLastRun(t *testing.T) {
	fetched := []string{}
	factory := &stubFactory{
		id:          "stub",
		handler:     &stubHandler{packets: nil, fetched: &fetched},
		schedulable: true,
	}

	f := newFixture(t, factory)
	ctx := context.Background()

	saveProject(t, f.persistence, "proj-1", models.FlowStatusActive)
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-a", ProjectID: "proj-1", FetcherID: "stub",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})

	require.NoError(t, f.dispatcher.TriggerProject(ctx, "proj-1"))

	assert.Equal(t, []string{"flow-a"}, fetched)

	project, err := f.persistence.Flows().ProjectByID(ctx, "proj-1")
	require.NoError(t, err)
	assert.Nil(t, project.LastRunAt, "a run that created no jobs is not recorded")
	assert.Empty(t, f.bus.published)
}

func TestDispatcher_CandidateFailureIsolation(t *testing.T) {
	fetched := []string{}
	failing := &stubFactory{
		id:          "failing",
		handler:     &stubHandler{err: errors.New("upstream exploded"), fetched: &fetched},
		schedulable: true,
	}
	working := &stubFactory{
		id:          "working",
		handler:     &stubHandler{packets: somePackets(1), fetched: &fetched},
		schedulable: true,
	}

	f := newFixture(t, failing, working)
	ctx := context.Background()

	saveProject(t, f.persistence, "proj-1", models.FlowStatusActive)
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-bad", ProjectID: "proj-1", FetcherID: "failing",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-good", ProjectID: "proj-1", FetcherID: "working",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})

	require.NoError(t, f.dispatcher.TriggerProject(ctx, "proj-1"),
		"one candidate's failure never aborts the batch")

	assert.ElementsMatch(t, []string{"flow-bad", "flow-good"}, fetched)

	jobs, err := f.persistence.Jobs().List(ctx, persistence.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "flow-good", jobs[0].FlowID)
}

func TestDispatcher_OneJobPerPacket(t *testing.T) {
	fetched := []string{}
	factory := &stubFactory{
		id:          "multi",
		handler:     &stubHandler{packets: somePackets(3), fetched: &fetched},
		schedulable: true,
	}

	f := newFixture(t, factory)
	ctx := context.Background()

	saveProject(t, f.persistence, "proj-1", models.FlowStatusActive)
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-a", ProjectID: "proj-1", FetcherID: "multi",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})

	require.NoError(t, f.dispatcher.TriggerProject(ctx, "proj-1"))

	jobs, err := f.persistence.Jobs().List(ctx, persistence.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 3, "multi-item results fan out into one job per packet")
	assert.Len(t, f.executor.submitted, 3)

	for _, job := range jobs {
		packet, err := job.Packet()
		require.NoError(t, err)
		assert.Equal(t, "Big Launch Today", packet.Content.Title)
		assert.JSONEq(t, string(jobs[0].BaseConfig), string(job.BaseConfig),
			"all jobs of one candidate share the same configuration snapshot")
	}

	require.Len(t, f.bus.published, 1)
	dispatched, ok := f.bus.published[0].(events.FlowDispatched)
	require.True(t, ok)
	assert.Equal(t, "proj-1", dispatched.ProjectID)
	assert.Equal(t, 3, dispatched.JobsCreated)
}

func TestDispatcher_PausedProjectSkips(t *testing.T) {
	fetched := []string{}
	factory := &stubFactory{
		id:          "stub",
		handler:     &stubHandler{packets: somePackets(1), fetched: &fetched},
		schedulable: true,
	}

	f := newFixture(t, factory)
	ctx := context.Background()

	saveProject(t, f.persistence, "proj-1", models.FlowStatusPaused)
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-a", ProjectID: "proj-1", FetcherID: "stub",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})

	require.NoError(t, f.dispatcher.TriggerProject(ctx, "proj-1"))
	assert.Empty(t, fetched)
}

func TestDispatcher_TriggerFlow(t *testing.T) {
	fetched := []string{}
	factory := &stubFactory{
		id:          "stub",
		handler:     &stubHandler{packets: somePackets(1), fetched: &fetched},
		schedulable: true,
	}

	f := newFixture(t, factory)
	ctx := context.Background()

	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-custom", ProjectID: "proj-1", FetcherID: "stub",
		ScheduleMode: models.ScheduleModeCustom, CronExpression: "*/5 * * * *",
		Status: models.FlowStatusActive, Schedulable: true,
	})
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-inherit", ProjectID: "proj-1", FetcherID: "stub",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})

	require.NoError(t, f.dispatcher.TriggerFlow(ctx, "flow-custom"))
	assert.Equal(t, []string{"flow-custom"}, fetched)

	flow, err := f.persistence.Flows().GetByID(ctx, "flow-custom")
	require.NoError(t, err)
	assert.NotNil(t, flow.LastRunAt)

	// An inheriting flow has no schedule of its own to fire.
	require.NoError(t, f.dispatcher.TriggerFlow(ctx, "flow-inherit"))
	assert.Equal(t, []string{"flow-custom"}, fetched)
}

func TestDispatcher_NonSchedulableFetcherSkips(t *testing.T) {
	fetched := []string{}
	factory := &stubFactory{
		id:          "manual-upload",
		handler:     &stubHandler{packets: somePackets(1), fetched: &fetched},
		schedulable: false,
	}

	f := newFixture(t, factory)
	ctx := context.Background()

	saveProject(t, f.persistence, "proj-1", models.FlowStatusActive)
	saveFlow(t, f.persistence, &models.Flow{
		ID: "flow-a", ProjectID: "proj-1", FetcherID: "manual-upload",
		ScheduleMode: models.ScheduleModeInherit, Status: models.FlowStatusActive, Schedulable: true,
	})

	require.NoError(t, f.dispatcher.TriggerProject(ctx, "proj-1"))
	assert.Empty(t, fetched, "inherently manual fetchers are never auto-triggered")
}
