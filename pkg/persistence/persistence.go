// Package persistence provides the data storage abstraction layer for
// credentials, the processed-item ledger, jobs, flows and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/sourcepipe/sourcepipe/pkg/models"
)

// CredentialRepository stores one credential record per integration.
type CredentialRepository interface {
	Get(ctx context.Context, integration string) (*models.CredentialRecord, error)
	Save(ctx context.Context, record *models.CredentialRecord) error
	Delete(ctx context.Context, integration string) error
}

// AuthStateRepository stores the transient anti-forgery state tokens issued
// during authorization. Tokens are single-use and expire server-side.
type AuthStateRepository interface {
	SaveState(ctx context.Context, integration, token string, expiresAt time.Time) error

	// ConsumeState returns and removes the stored token. Expired tokens are
	// reported as ErrAuthStateNotFound.
	ConsumeState(ctx context.Context, integration string) (string, error)
}

// LedgerRepository is the durable set of processed upstream items, keyed by
// (flow, source, external id).
type LedgerRepository interface {
	// MarkProcessed records the entry, failing with ErrItemAlreadyProcessed
	// if the key already exists for this flow scope.
	MarkProcessed(ctx context.Context, entry *models.LedgerEntry) error

	IsProcessed(ctx context.Context, flowID, source, externalID string) (bool, error)
}

// JobFilter narrows job listings.
type JobFilter struct {
	FlowID string
	Status models.JobStatus
	Limit  int
	Offset int
}

// JobRepository stores durable job records.
type JobRepository interface {
	Save(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	List(ctx context.Context, filter JobFilter) ([]*models.Job, error)
}

// FlowRepository stores flows and their parent projects.
type FlowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	ByProject(ctx context.Context, projectID string) ([]*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error

	ProjectByID(ctx context.Context, id string) (*models.Project, error)
	SaveProject(ctx context.Context, project *models.Project) error
}

// ScheduleRepository stores precomputed schedule entries for the poller.
type ScheduleRepository interface {
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
	GetByUnitID(ctx context.Context, unitID string) (*models.Schedule, error)
}

// Persistence aggregates the repositories backed by one storage engine.
type Persistence interface {
	Credentials() CredentialRepository
	AuthStates() AuthStateRepository
	Ledger() LedgerRepository
	Jobs() JobRepository
	Flows() FlowRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
