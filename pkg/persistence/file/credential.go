package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// CredentialRepository stores one credential JSON file per integration.
type CredentialRepository struct {
	root string
}

func (r *CredentialRepository) path(integration string) string {
	return filepath.Join(r.root, "credentials", integration+".json")
}

func (r *CredentialRepository) Get(_ context.Context, integration string) (*models.CredentialRecord, error) {
	var record models.CredentialRecord

	found, err := readJSON(r.path(integration), &record)
	if err != nil {
		return nil, persistence.NewRepositoryError("Get", integration, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("Get", integration, persistence.ErrCredentialNotFound)
	}

	return &record, nil
}

func (r *CredentialRepository) Save(_ context.Context, record *models.CredentialRecord) error {
	dir := filepath.Join(r.root, "credentials")
	if err := writeJSON(dir, record.Integration+".json", record); err != nil {
		return persistence.NewRepositoryError("Save", record.Integration, err)
	}

	return nil
}

func (r *CredentialRepository) Delete(_ context.Context, integration string) error {
	err := os.Remove(r.path(integration))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewRepositoryError("Delete", integration, err)
	}

	return nil
}

type storedAuthState struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthStateRepository stores transient authorization state tokens.
type AuthStateRepository struct {
	root string
}

func (r *AuthStateRepository) path(integration string) string {
	return filepath.Join(r.root, "auth_states", integration+".json")
}

func (r *AuthStateRepository) SaveState(_ context.Context, integration, token string, expiresAt time.Time) error {
	dir := filepath.Join(r.root, "auth_states")

	state := storedAuthState{Token: token, ExpiresAt: expiresAt}
	if err := writeJSON(dir, integration+".json", state); err != nil {
		return persistence.NewRepositoryError("SaveState", integration, err)
	}

	return nil
}

func (r *AuthStateRepository) ConsumeState(_ context.Context, integration string) (string, error) {
	path := r.path(integration)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", persistence.NewRepositoryError("ConsumeState", integration, persistence.ErrAuthStateNotFound)
		}

		return "", persistence.NewRepositoryError("ConsumeState", integration, err)
	}

	// Single-use: remove before validating.
	if err := os.Remove(path); err != nil {
		return "", persistence.NewRepositoryError("ConsumeState", integration, err)
	}

	var state storedAuthState
	if err := json.Unmarshal(data, &state); err != nil {
		return "", persistence.NewRepositoryError("ConsumeState", integration, fmt.Errorf("corrupt state record: %w", err))
	}

	if time.Now().UTC().After(state.ExpiresAt) {
		return "", persistence.NewRepositoryError("ConsumeState", integration, persistence.ErrAuthStateNotFound)
	}

	return state.Token, nil
}
