package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// FlowRepository stores flows and projects.
type FlowRepository struct {
	db *sql.DB
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, owner, fetcher_id, configuration, steps,
			schedule_mode, cron_expression, status, schedulable, last_run_at, created_at, updated_at
		FROM flows WHERE id = $1`, id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewRepositoryError("GetByID", id, err)
	}

	return flow, nil
}

func (r *FlowRepository) ByProject(ctx context.Context, projectID string) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, name, owner, fetcher_id, configuration, steps,
			schedule_mode, cron_expression, status, schedulable, last_run_at, created_at, updated_at
		FROM flows WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, persistence.NewRepositoryError("ByProject", projectID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, persistence.NewRepositoryError("ByProject", projectID, err)
		}

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("ByProject", projectID, err)
	}

	return flows, nil
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	configuration, err := json.Marshal(flow.Configuration)
	if err != nil {
		return persistence.NewRepositoryError("Save", flow.ID, fmt.Errorf("failed to marshal configuration: %w", err))
	}

	steps, err := json.Marshal(flow.Steps)
	if err != nil {
		return persistence.NewRepositoryError("Save", flow.ID, fmt.Errorf("failed to marshal steps: %w", err))
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO flows (id, project_id, name, owner, fetcher_id, configuration, steps,
			schedule_mode, cron_expression, status, schedulable, last_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			fetcher_id = EXCLUDED.fetcher_id,
			configuration = EXCLUDED.configuration,
			steps = EXCLUDED.steps,
			schedule_mode = EXCLUDED.schedule_mode,
			cron_expression = EXCLUDED.cron_expression,
			status = EXCLUDED.status,
			schedulable = EXCLUDED.schedulable,
			last_run_at = EXCLUDED.last_run_at,
			updated_at = EXCLUDED.updated_at`,
		flow.ID, flow.ProjectID, flow.Name, flow.Owner, flow.FetcherID, configuration, steps,
		flow.ScheduleMode, flow.CronExpression, flow.Status, flow.Schedulable,
		flow.LastRunAt, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		return persistence.NewRepositoryError("Save", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) ProjectByID(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, owner, cron_expression, status, last_run_at, created_at, updated_at
		FROM projects WHERE id = $1`, id).
		Scan(&project.ID, &project.Name, &project.Owner, &project.CronExpression,
			&project.Status, &project.LastRunAt, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ProjectByID", id, persistence.ErrProjectNotFound)
		}

		return nil, persistence.NewRepositoryError("ProjectByID", id, err)
	}

	return &project, nil
}

func (r *FlowRepository) SaveProject(ctx context.Context, project *models.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, owner, cron_expression, status, last_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			cron_expression = EXCLUDED.cron_expression,
			status = EXCLUDED.status,
			last_run_at = EXCLUDED.last_run_at,
			updated_at = EXCLUDED.updated_at`,
		project.ID, project.Name, project.Owner, project.CronExpression,
		project.Status, project.LastRunAt, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return persistence.NewRepositoryError("SaveProject", project.ID, err)
	}

	return nil
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flow          models.Flow
		configuration []byte
		steps         []byte
	)

	err := row.Scan(&flow.ID, &flow.ProjectID, &flow.Name, &flow.Owner, &flow.FetcherID,
		&configuration, &steps, &flow.ScheduleMode, &flow.CronExpression, &flow.Status,
		&flow.Schedulable, &flow.LastRunAt, &flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(configuration) > 0 {
		if err := json.Unmarshal(configuration, &flow.Configuration); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
		}
	}

	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &flow.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}

	return &flow, nil
}
