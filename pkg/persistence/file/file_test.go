package file

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestCredentialRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	record := &models.CredentialRecord{
		Integration: "reddit",
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Scope:       "identity read",
	}
	require.NoError(t, p.Credentials().Save(ctx, record))

	loaded, err := p.Credentials().Get(ctx, "reddit")
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.AccessToken)

	require.NoError(t, p.Credentials().Delete(ctx, "reddit"))

	_, err = p.Credentials().Get(ctx, "reddit")
	assert.ErrorIs(t, err, persistence.ErrCredentialNotFound)
}

func TestCredentialRepository_DeleteMissingIsIdempotent(t *testing.T) {
	p := newTestPersistence(t)
	assert.NoError(t, p.Credentials().Delete(context.Background(), "ghost"))
}

func TestAuthStateRepository_SingleUse(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	require.NoError(t, p.AuthStates().SaveState(ctx, "reddit", "state-token", time.Now().Add(15*time.Minute)))

	token, err := p.AuthStates().ConsumeState(ctx, "reddit")
	require.NoError(t, err)
	assert.Equal(t, "state-token", token)

	_, err = p.AuthStates().ConsumeState(ctx, "reddit")
	assert.ErrorIs(t, err, persistence.ErrAuthStateNotFound)
}

func TestAuthStateRepository_ExpiredState(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	require.NoError(t, p.AuthStates().SaveState(ctx, "reddit", "old", time.Now().Add(-time.Minute)))

	_, err := p.AuthStates().ConsumeState(ctx, "reddit")
	assert.ErrorIs(t, err, persistence.ErrAuthStateNotFound)
}

func TestLedgerRepository_Uniqueness(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	entry := &models.LedgerEntry{
		FlowID:      "flow-1",
		Source:      "reddit",
		ExternalID:  "t3_abc",
		JobID:       "job-1",
		ProcessedAt: time.Now().UTC(),
	}
	require.NoError(t, p.Ledger().MarkProcessed(ctx, entry))

	err := p.Ledger().MarkProcessed(ctx, entry)
	assert.ErrorIs(t, err, persistence.ErrItemAlreadyProcessed)

	processed, err := p.Ledger().IsProcessed(ctx, "flow-1", "reddit", "t3_abc")
	require.NoError(t, err)
	assert.True(t, processed)

	// A different flow scope may consume the same item.
	other := *entry
	other.FlowID = "flow-2"
	assert.NoError(t, p.Ledger().MarkProcessed(ctx, &other))
}

func TestJobRepository_RoundTripAndList(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	payload, err := json.Marshal(models.NewDataPacket("reddit", time.Now().UTC()))
	require.NoError(t, err)

	first := models.NewJob("flow-1", "owner", nil, payload)
	second := models.NewJob("flow-2", "owner", nil, payload)
	require.NoError(t, p.Jobs().Save(ctx, first))
	require.NoError(t, p.Jobs().Save(ctx, second))

	loaded, err := p.Jobs().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, loaded.Status)

	require.NoError(t, loaded.Start())
	require.NoError(t, p.Jobs().Update(ctx, loaded))

	running, err := p.Jobs().List(ctx, persistence.JobFilter{Status: models.JobStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, first.ID, running[0].ID)

	byFlow, err := p.Jobs().List(ctx, persistence.JobFilter{FlowID: "flow-2"})
	require.NoError(t, err)
	require.Len(t, byFlow, 1)
	assert.Equal(t, second.ID, byFlow[0].ID)

	_, err = p.Jobs().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrJobNotFound)
}

func TestFlowRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	project := &models.Project{
		ID:             "project-1",
		Name:           "Newsroom",
		CronExpression: "0 9 * * *",
		Status:         models.FlowStatusActive,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, p.Flows().SaveProject(ctx, project))

	flow := &models.Flow{
		ID:           "flow-1",
		ProjectID:    "project-1",
		Name:         "Subreddit digest",
		FetcherID:    "reddit",
		ScheduleMode: models.ScheduleModeInherit,
		Status:       models.FlowStatusActive,
		Schedulable:  true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, p.Flows().Save(ctx, flow))

	flows, err := p.Flows().ByProject(ctx, "project-1")
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "flow-1", flows[0].ID)

	loadedProject, err := p.Flows().ProjectByID(ctx, "project-1")
	require.NoError(t, err)
	assert.Equal(t, "Newsroom", loadedProject.Name)

	_, err = p.Flows().ProjectByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrProjectNotFound)
}

func TestScheduleRepository_Due(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	now := time.Now().UTC()

	due := &models.Schedule{
		ID:             "sched-1",
		UnitID:         "project-1",
		UnitKind:       "project",
		CronExpression: "0 * * * *",
		NextDueAt:      now.Add(-time.Minute),
		Active:         true,
	}
	notDue := &models.Schedule{
		ID:             "sched-2",
		UnitID:         "project-2",
		UnitKind:       "project",
		CronExpression: "0 * * * *",
		NextDueAt:      now.Add(time.Hour),
		Active:         true,
	}
	require.NoError(t, p.Schedules().Save(ctx, due))
	require.NoError(t, p.Schedules().Save(ctx, notDue))

	dueList, err := p.Schedules().Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, dueList, 1)
	assert.Equal(t, "project-1", dueList[0].UnitID)
}
