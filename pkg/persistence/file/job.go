package file

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// JobRepository stores one job JSON file per job id.
type JobRepository struct {
	root string
}

func (r *JobRepository) dir() string {
	return filepath.Join(r.root, "jobs")
}

func (r *JobRepository) Save(_ context.Context, job *models.Job) error {
	if err := writeJSON(r.dir(), job.ID+".json", job); err != nil {
		return persistence.NewRepositoryError("Save", job.ID, err)
	}

	return nil
}

func (r *JobRepository) GetByID(_ context.Context, id string) (*models.Job, error) {
	var job models.Job

	found, err := readJSON(filepath.Join(r.dir(), id+".json"), &job)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("GetByID", id, persistence.ErrJobNotFound)
	}

	return &job, nil
}

func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	if _, err := r.GetByID(ctx, job.ID); err != nil {
		return persistence.NewRepositoryError("Update", job.ID, persistence.ErrJobNotFound)
	}

	return r.Save(ctx, job)
}

func (r *JobRepository) List(ctx context.Context, filter persistence.JobFilter) ([]*models.Job, error) {
	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, persistence.NewRepositoryError("List", "", err)
	}

	jobs := make([]*models.Job, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		job, err := r.GetByID(ctx, file[:len(file)-5])
		if err != nil {
			continue
		}

		if filter.FlowID != "" && job.FlowID != filter.FlowID {
			continue
		}

		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return []*models.Job{}, nil
		}

		jobs = jobs[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(jobs) {
		jobs = jobs[:filter.Limit]
	}

	return jobs, nil
}
