// Package postgresql provides PostgreSQL persistence for credentials, the
// ledger, jobs, flows and schedules.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	credentialRepo *CredentialRepository
	authStateRepo  *AuthStateRepository
	ledgerRepo     *LedgerRepository
	jobRepo        *JobRepository
	flowRepo       *FlowRepository
	scheduleRepo   *ScheduleRepository
}

// NewPersistence opens a connection, runs migrations and returns the
// persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		credentialRepo: &CredentialRepository{db: database},
		authStateRepo:  &AuthStateRepository{db: database},
		ledgerRepo:     &LedgerRepository{db: database},
		jobRepo:        &JobRepository{db: database},
		flowRepo:       &FlowRepository{db: database},
		scheduleRepo:   &ScheduleRepository{db: database},
	}, nil
}

func (p *Persistence) Credentials() persistence.CredentialRepository { return p.credentialRepo }
func (p *Persistence) AuthStates() persistence.AuthStateRepository   { return p.authStateRepo }
func (p *Persistence) Ledger() persistence.LedgerRepository          { return p.ledgerRepo }
func (p *Persistence) Jobs() persistence.JobRepository               { return p.jobRepo }
func (p *Persistence) Flows() persistence.FlowRepository             { return p.flowRepo }
func (p *Persistence) Schedules() persistence.ScheduleRepository     { return p.scheduleRepo }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
