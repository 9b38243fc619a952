package file

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// ScheduleRepository stores schedule entries as JSON files keyed by unit id.
type ScheduleRepository struct {
	root string
}

func (r *ScheduleRepository) dir() string {
	return filepath.Join(r.root, "schedules")
}

func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, persistence.NewRepositoryError("Due", "", err)
	}

	due := make([]*models.Schedule, 0)

	for _, file := range jsonFiles {
		schedule, err := r.GetByUnitID(ctx, file[:len(file)-5])
		if err != nil {
			continue
		}

		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	return due, nil
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	if err := writeJSON(r.dir(), schedule.UnitID+".json", schedule); err != nil {
		return persistence.NewRepositoryError("Save", schedule.UnitID, err)
	}

	return nil
}

func (r *ScheduleRepository) GetByUnitID(_ context.Context, unitID string) (*models.Schedule, error) {
	var schedule models.Schedule

	found, err := readJSON(filepath.Join(r.dir(), unitID+".json"), &schedule)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByUnitID", unitID, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("GetByUnitID", unitID, persistence.ErrScheduleNotFound)
	}

	return &schedule, nil
}
