package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// ScheduleRepository stores schedule entries with precomputed due times.
type ScheduleRepository struct {
	db *sql.DB
}

func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, unit_id, unit_kind, cron_expression, next_due_at, active, created_at, updated_at
		FROM schedules WHERE active AND next_due_at <= $1
		ORDER BY next_due_at`, now)
	if err != nil {
		return nil, persistence.NewRepositoryError("Due", "", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		var schedule models.Schedule

		err := rows.Scan(&schedule.ID, &schedule.UnitID, &schedule.UnitKind, &schedule.CronExpression,
			&schedule.NextDueAt, &schedule.Active, &schedule.CreatedAt, &schedule.UpdatedAt)
		if err != nil {
			return nil, persistence.NewRepositoryError("Due", "", err)
		}

		schedules = append(schedules, &schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("Due", "", err)
	}

	return schedules, nil
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, unit_id, unit_kind, cron_expression, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (unit_id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		schedule.ID, schedule.UnitID, schedule.UnitKind, schedule.CronExpression,
		schedule.NextDueAt, schedule.Active, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return persistence.NewRepositoryError("Save", schedule.UnitID, err)
	}

	return nil
}

func (r *ScheduleRepository) GetByUnitID(ctx context.Context, unitID string) (*models.Schedule, error) {
	var schedule models.Schedule

	err := r.db.QueryRowContext(ctx, `
		SELECT id, unit_id, unit_kind, cron_expression, next_due_at, active, created_at, updated_at
		FROM schedules WHERE unit_id = $1`, unitID).
		Scan(&schedule.ID, &schedule.UnitID, &schedule.UnitKind, &schedule.CronExpression,
			&schedule.NextDueAt, &schedule.Active, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("GetByUnitID", unitID, persistence.ErrScheduleNotFound)
		}

		return nil, persistence.NewRepositoryError("GetByUnitID", unitID, err)
	}

	return &schedule, nil
}
