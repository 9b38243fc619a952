// Package credentials implements the per-integration OAuth credential
// lifecycle: authorize, exchange, store, detect expiry, refresh, revoke.
package credentials

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

// stateTTL bounds how long an issued authorization state token stays valid.
const stateTTL = 15 * time.Minute

// Config holds the OAuth endpoints and client credentials for one
// integration.
type Config struct {
	Integration  string   `validate:"required"`
	ClientID     string   `validate:"required"`
	ClientSecret string   `validate:"required"`
	AuthURL      string   `validate:"required,url"`
	TokenURL     string   `validate:"required,url"`
	RevokeURL    string
	IdentityURL  string
	RedirectURL  string `validate:"required,url"`
	Scopes       []string
	// ExtraAuthParams are appended to the authorization URL (e.g. reddit's
	// duration=permanent, which is required to receive a refresh token).
	ExtraAuthParams map[string]string
}

// Store drives the credential state machine for one integration.
type Store struct {
	config Config
	creds  persistence.CredentialRepository
	states persistence.AuthStateRepository
	client httpclient.Client
	clock  protocol.Clock
	logger *slog.Logger
}

// NewStore creates a credential store.
func NewStore(
	config Config,
	creds persistence.CredentialRepository,
	states persistence.AuthStateRepository,
	client httpclient.Client,
	clock protocol.Clock,
	logger *slog.Logger,
) *Store {
	return &Store{
		config: config,
		creds:  creds,
		states: states,
		client: client,
		clock:  clock,
		logger: logger.With("module", "credential_store", "integration", config.Integration),
	}
}

func (s *Store) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		RedirectURL:  s.config.RedirectURL,
		Scopes:       s.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.config.AuthURL,
			TokenURL:  s.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// BeginAuthorization generates a single-use anti-forgery state token, stores
// it with a 15-minute TTL, and returns the upstream authorization URL.
func (s *Store) BeginAuthorization(ctx context.Context) (string, error) {
	if err := models.ValidateStruct(s.config); err != nil {
		return "", models.NewConfigError("credentials", err.Error())
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	state := hex.EncodeToString(buf)

	if err := s.states.SaveState(ctx, s.config.Integration, state, s.clock.Now().Add(stateTTL)); err != nil {
		return "", fmt.Errorf("failed to store state token: %w", err)
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(s.config.ExtraAuthParams))
	for k, v := range s.config.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return s.oauthConfig().AuthCodeURL(state, opts...), nil
}

// CompleteAuthorization validates the returned state and exchanges the code
// for tokens. Nothing is persisted unless the exchange fully succeeds.
func (s *Store) CompleteAuthorization(ctx context.Context, returnedState, code string) error {
	stored, err := s.states.ConsumeState(ctx, s.config.Integration)
	if err != nil {
		if errors.Is(err, persistence.ErrAuthStateNotFound) {
			return models.ErrStateMismatch
		}

		return fmt.Errorf("failed to load state token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(returnedState)) != 1 {
		return models.ErrStateMismatch
	}

	token, err := s.requestToken(ctx, url.Values{
		"grant_type":   []string{"authorization_code"},
		"code":         []string{code},
		"redirect_uri": []string{s.config.RedirectURL},
	})
	if err != nil {
		return err
	}

	now := s.clock.Now()
	record := &models.CredentialRecord{
		Integration:     s.config.Integration,
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		ExpiresAt:       now.Unix() + token.ExpiresIn,
		Scope:           token.Scope,
		LastRefreshedAt: now.Unix(),
	}

	// Identity resolution is best-effort: a failed lookup is logged, never
	// fails the authorization.
	if identity, err := s.lookupIdentity(ctx, token.AccessToken); err != nil {
		s.logger.WarnContext(ctx, "Failed to resolve account identity", "error", err)
	} else {
		record.Identity = identity
	}

	if err := s.creds.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.logger.InfoContext(ctx, "Authorization completed", "identity", record.Identity)

	return nil
}

// Usable reports whether a non-expired access token is currently stored.
func (s *Store) Usable(ctx context.Context) bool {
	record, err := s.creds.Get(ctx, s.config.Integration)
	if err != nil {
		return false
	}

	return record.Usable(s.clock.Now())
}

// Token returns a usable access token, refreshing the stored credential if
// it is within the expiry safety margin. Fails with an AuthError when no
// usable or refreshable credential exists.
func (s *Store) Token(ctx context.Context) (string, error) {
	record, err := s.creds.Get(ctx, s.config.Integration)
	if err != nil {
		if errors.Is(err, persistence.ErrCredentialNotFound) {
			return "", models.NewAuthError(s.config.Integration, errors.New("no credential stored"))
		}

		return "", fmt.Errorf("failed to load credential: %w", err)
	}

	if record.Usable(s.clock.Now()) {
		return record.AccessToken, nil
	}

	if !record.Refreshable() {
		return "", models.NewAuthError(s.config.Integration, errors.New("credential expired and has no refresh token"))
	}

	if err := s.Refresh(ctx); err != nil {
		return "", err
	}

	refreshed, err := s.creds.Get(ctx, s.config.Integration)
	if err != nil {
		return "", fmt.Errorf("failed to reload credential after refresh: %w", err)
	}

	return refreshed.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new access token,
// overwriting the record in place. A rejected refresh deletes the whole
// credential: re-authorization beats retrying a stale token.
func (s *Store) Refresh(ctx context.Context) error {
	record, err := s.creds.Get(ctx, s.config.Integration)
	if err != nil {
		if errors.Is(err, persistence.ErrCredentialNotFound) {
			return models.NewAuthError(s.config.Integration, errors.New("no credential stored"))
		}

		return fmt.Errorf("failed to load credential: %w", err)
	}

	if record.RefreshToken == "" {
		return models.NewAuthError(s.config.Integration, errors.New("no refresh token stored"))
	}

	token, err := s.requestToken(ctx, url.Values{
		"grant_type":    []string{"refresh_token"},
		"refresh_token": []string{record.RefreshToken},
	})
	if err != nil {
		if models.IsUpstreamError(err) {
			s.logger.WarnContext(ctx, "Refresh rejected, clearing credential", "error", err)

			if deleteErr := s.creds.Delete(ctx, s.config.Integration); deleteErr != nil {
				return fmt.Errorf("failed to clear credential after rejected refresh: %w", deleteErr)
			}

			return models.NewAuthError(s.config.Integration, err)
		}

		return err
	}

	now := s.clock.Now()
	record.AccessToken = token.AccessToken
	record.ExpiresAt = now.Unix() + token.ExpiresIn
	record.LastRefreshedAt = now.Unix()

	if token.Scope != "" {
		record.Scope = token.Scope
	}

	// Some providers omit the refresh token on refresh; keep the old one.
	if token.RefreshToken != "" {
		record.RefreshToken = token.RefreshToken
	}

	if err := s.creds.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	s.logger.InfoContext(ctx, "Credential refreshed", "expires_at", record.ExpiresAt)

	return nil
}

// Revoke tells the upstream to invalidate the token (best-effort) and
// deletes the stored record.
func (s *Store) Revoke(ctx context.Context) error {
	record, err := s.creds.Get(ctx, s.config.Integration)
	if err != nil {
		if errors.Is(err, persistence.ErrCredentialNotFound) {
			return nil
		}

		return fmt.Errorf("failed to load credential: %w", err)
	}

	if s.config.RevokeURL != "" {
		_, err := s.client.Do(ctx, &httpclient.Request{
			Method: http.MethodPost,
			URL:    s.config.RevokeURL,
			Form: url.Values{
				"token":           []string{record.AccessToken},
				"token_type_hint": []string{"access_token"},
			},
			BasicAuth: &httpclient.BasicAuth{Username: s.config.ClientID, Password: s.config.ClientSecret},
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Upstream revocation failed", "error", err)
		}
	}

	return s.creds.Delete(ctx, s.config.Integration)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
}

func (s *Store) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	resp, err := s.client.Do(ctx, &httpclient.Request{
		Method:    http.MethodPost,
		URL:       s.config.TokenURL,
		Form:      form,
		BasicAuth: &httpclient.BasicAuth{Username: s.config.ClientID, Password: s.config.ClientSecret},
	})
	if err != nil {
		return nil, models.NewUpstreamError(s.config.TokenURL, 0, err)
	}

	if !resp.Success() {
		return nil, models.NewUpstreamError(s.config.TokenURL, resp.StatusCode, nil)
	}

	var token tokenResponse
	if err := resp.DecodeJSON(&token); err != nil {
		return nil, models.NewUpstreamError(s.config.TokenURL, resp.StatusCode, err)
	}

	if token.Error != "" || token.AccessToken == "" {
		return nil, models.NewUpstreamError(s.config.TokenURL, resp.StatusCode,
			fmt.Errorf("token endpoint rejected the request: %s", token.Error))
	}

	return &token, nil
}

func (s *Store) lookupIdentity(ctx context.Context, accessToken string) (string, error) {
	if s.config.IdentityURL == "" {
		return "", nil
	}

	resp, err := s.client.Do(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    s.config.IdentityURL,
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
		},
	})
	if err != nil {
		return "", err
	}

	if !resp.Success() {
		return "", models.NewUpstreamError(s.config.IdentityURL, resp.StatusCode, nil)
	}

	var identity struct {
		Name string `json:"name"`
	}

	if err := resp.DecodeJSON(&identity); err != nil {
		return "", err
	}

	return identity.Name, nil
}
