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

// FlowRepository stores flows and projects as JSON files.
type FlowRepository struct {
	root string
}

func (r *FlowRepository) flowDir() string {
	return filepath.Join(r.root, "flows")
}

func (r *FlowRepository) projectDir() string {
	return filepath.Join(r.root, "projects")
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	var flow models.Flow

	found, err := readJSON(filepath.Join(r.flowDir(), id+".json"), &flow)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("GetByID", id, persistence.ErrFlowNotFound)
	}

	return &flow, nil
}

func (r *FlowRepository) ByProject(ctx context.Context, projectID string) ([]*models.Flow, error) {
	root := os.DirFS(r.flowDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, persistence.NewRepositoryError("ByProject", projectID, err)
	}

	flows := make([]*models.Flow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		flow, err := r.GetByID(ctx, file[:len(file)-5])
		if err != nil {
			continue
		}

		if flow.ProjectID == projectID {
			flows = append(flows, flow)
		}
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.Before(flows[j].CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	if err := writeJSON(r.flowDir(), flow.ID+".json", flow); err != nil {
		return persistence.NewRepositoryError("Save", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) ProjectByID(_ context.Context, id string) (*models.Project, error) {
	var project models.Project

	found, err := readJSON(filepath.Join(r.projectDir(), id+".json"), &project)
	if err != nil {
		return nil, persistence.NewRepositoryError("ProjectByID", id, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("ProjectByID", id, persistence.ErrProjectNotFound)
	}

	return &project, nil
}

func (r *FlowRepository) SaveProject(_ context.Context, project *models.Project) error {
	if err := writeJSON(r.projectDir(), project.ID+".json", project); err != nil {
		return persistence.NewRepositoryError("SaveProject", project.ID, err)
	}

	return nil
}
