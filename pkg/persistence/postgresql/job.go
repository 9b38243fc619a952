package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// JobRepository stores job records in the jobs table.
type JobRepository struct {
	db *sql.DB
}

func (r *JobRepository) Save(ctx context.Context, job *models.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, flow_id, owner, base_config, payload, status, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.FlowID, job.Owner, nullableJSON(job.BaseConfig), []byte(job.Payload),
		job.Status, job.Error, job.CreatedAt, job.CompletedAt)
	if err != nil {
		return persistence.NewRepositoryError("Save", job.ID, err)
	}

	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, flow_id, owner, base_config, payload, status, error, created_at, completed_at
		FROM jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("GetByID", id, persistence.ErrJobNotFound)
		}

		return nil, persistence.NewRepositoryError("GetByID", id, err)
	}

	return job, nil
}

func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, error = $3, completed_at = $4 WHERE id = $1`,
		job.ID, job.Status, job.Error, job.CompletedAt)
	if err != nil {
		return persistence.NewRepositoryError("Update", job.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRepositoryError("Update", job.ID, err)
	}

	if affected == 0 {
		return persistence.NewRepositoryError("Update", job.ID, persistence.ErrJobNotFound)
	}

	return nil
}

func (r *JobRepository) List(ctx context.Context, filter persistence.JobFilter) ([]*models.Job, error) {
	query := `
		SELECT id, flow_id, owner, base_config, payload, status, error, created_at, completed_at
		FROM jobs WHERE 1=1`

	args := make([]any, 0, 4)

	if filter.FlowID != "" {
		args = append(args, filter.FlowID)
		query += fmt.Sprintf(" AND flow_id = $%d", len(args))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewRepositoryError("List", "", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	jobs := make([]*models.Job, 0)

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, persistence.NewRepositoryError("List", "", err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("List", "", err)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job        models.Job
		baseConfig sql.NullString
		payload    []byte
	)

	err := row.Scan(&job.ID, &job.FlowID, &job.Owner, &baseConfig, &payload,
		&job.Status, &job.Error, &job.CreatedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}

	if baseConfig.Valid {
		job.BaseConfig = []byte(baseConfig.String)
	}

	job.Payload = payload

	return &job, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	return raw
}
