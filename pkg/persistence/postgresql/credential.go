package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// CredentialRepository stores credential records in the credentials table.
type CredentialRepository struct {
	db *sql.DB
}

func (r *CredentialRepository) Get(ctx context.Context, integration string) (*models.CredentialRecord, error) {
	var record models.CredentialRecord

	err := r.db.QueryRowContext(ctx, `
		SELECT integration, access_token, refresh_token, expires_at, scope, last_refreshed_at, identity
		FROM credentials WHERE integration = $1`, integration).
		Scan(&record.Integration, &record.AccessToken, &record.RefreshToken,
			&record.ExpiresAt, &record.Scope, &record.LastRefreshedAt, &record.Identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("Get", integration, persistence.ErrCredentialNotFound)
		}

		return nil, persistence.NewRepositoryError("Get", integration, err)
	}

	return &record, nil
}

func (r *CredentialRepository) Save(ctx context.Context, record *models.CredentialRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (integration, access_token, refresh_token, expires_at, scope, last_refreshed_at, identity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (integration) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			last_refreshed_at = EXCLUDED.last_refreshed_at,
			identity = EXCLUDED.identity`,
		record.Integration, record.AccessToken, record.RefreshToken,
		record.ExpiresAt, record.Scope, record.LastRefreshedAt, record.Identity)
	if err != nil {
		return persistence.NewRepositoryError("Save", record.Integration, err)
	}

	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, integration string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE integration = $1", integration)
	if err != nil {
		return persistence.NewRepositoryError("Delete", integration, err)
	}

	return nil
}

// AuthStateRepository stores transient authorization state tokens.
type AuthStateRepository struct {
	db *sql.DB
}

func (r *AuthStateRepository) SaveState(ctx context.Context, integration, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_states (integration, token, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (integration) DO UPDATE SET
			token = EXCLUDED.token,
			expires_at = EXCLUDED.expires_at`,
		integration, token, expiresAt)
	if err != nil {
		return persistence.NewRepositoryError("SaveState", integration, err)
	}

	return nil
}

func (r *AuthStateRepository) ConsumeState(ctx context.Context, integration string) (string, error) {
	var (
		token     string
		expiresAt time.Time
	)

	err := r.db.QueryRowContext(ctx, `
		DELETE FROM auth_states WHERE integration = $1
		RETURNING token, expires_at`, integration).
		Scan(&token, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", persistence.NewRepositoryError("ConsumeState", integration, persistence.ErrAuthStateNotFound)
		}

		return "", persistence.NewRepositoryError("ConsumeState", integration, err)
	}

	if time.Now().UTC().After(expiresAt) {
		return "", persistence.NewRepositoryError("ConsumeState", integration, persistence.ErrAuthStateNotFound)
	}

	return token, nil
}
