// Package file provides file-based persistence for credentials, the ledger,
// jobs, flows and schedules. Intended for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system. Each
// record is one JSON file under <root>/<kind>/.
type Persistence struct {
	root           string
	credentialRepo *CredentialRepository
	authStateRepo  *AuthStateRepository
	ledgerRepo     *LedgerRepository
	jobRepo        *JobRepository
	flowRepo       *FlowRepository
	scheduleRepo   *ScheduleRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		credentialRepo: &CredentialRepository{root: cleanRoot},
		authStateRepo:  &AuthStateRepository{root: cleanRoot},
		ledgerRepo:     &LedgerRepository{root: cleanRoot},
		jobRepo:        &JobRepository{root: cleanRoot},
		flowRepo:       &FlowRepository{root: cleanRoot},
		scheduleRepo:   &ScheduleRepository{root: cleanRoot},
	}
}

func (p *Persistence) Credentials() persistence.CredentialRepository { return p.credentialRepo }
func (p *Persistence) AuthStates() persistence.AuthStateRepository   { return p.authStateRepo }
func (p *Persistence) Ledger() persistence.LedgerRepository          { return p.ledgerRepo }
func (p *Persistence) Jobs() persistence.JobRepository               { return p.jobRepo }
func (p *Persistence) Flows() persistence.FlowRepository             { return p.flowRepo }
func (p *Persistence) Schedules() persistence.ScheduleRepository     { return p.scheduleRepo }

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read record: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return true, nil
}
