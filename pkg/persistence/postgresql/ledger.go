package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

const uniqueViolationCode = "23505"

// LedgerRepository stores processed-item entries; the composite primary key
// enforces per-scope uniqueness at the database level.
type LedgerRepository struct {
	db *sql.DB
}

func (r *LedgerRepository) MarkProcessed(ctx context.Context, entry *models.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger (flow_id, source, external_id, job_id, processed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.FlowID, entry.Source, entry.ExternalID, entry.JobID, entry.ProcessedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, persistence.ErrItemAlreadyProcessed)
		}

		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, err)
	}

	return nil
}

func (r *LedgerRepository) IsProcessed(ctx context.Context, flowID, source, externalID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger WHERE flow_id = $1 AND source = $2 AND external_id = $3
		)`, flowID, source, externalID).Scan(&exists)
	if err != nil {
		return false, persistence.NewRepositoryError("IsProcessed", externalID, err)
	}

	return exists, nil
}
