package credentials

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence/file"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T, tokenServer *httptest.Server) (*Store, *file.Persistence, *fixedClock) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	clock := &fixedClock{now: time.Now()}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	config := Config{
		Integration:  "reddit",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      "https://auth.example.com/authorize",
		TokenURL:     "https://auth.example.com/token",
		RedirectURL:  "https://app.example.com/callback",
		Scopes:       []string{"read", "identity"},
		ExtraAuthParams: map[string]string{
			"duration": "permanent",
		},
	}

	if tokenServer != nil {
		config.TokenURL = tokenServer.URL + "/token"
		config.IdentityURL = tokenServer.URL + "/me"
		config.RevokeURL = tokenServer.URL + "/revoke"
	}

	client := httpclient.NewHTTPClient(logger)

	return NewStore(config, store.Credentials(), store.AuthStates(), client, clock, logger), store, clock
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))

	return len(p), nil
}

func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	return parsed.Query().Get("state")
}

func TestStore_AuthorizationFlow(t *testing.T) {
	var tokenForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			username, password, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client-id", username)
			assert.Equal(t, "client-secret", password)

			require.NoError(t, r.ParseForm())
			tokenForm = r.PostForm

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"scope":"read identity"}`))
		case "/me":
			assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"name":"pipe_user"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store, persist, clock := newTestStore(t, server)
	ctx := context.Background()

	authURL, err := store.BeginAuthorization(ctx)
	require.NoError(t, err)
	assert.Contains(t, authURL, "https://auth.example.com/authorize")
	assert.Contains(t, authURL, "duration=permanent")

	state := stateFromAuthURL(t, authURL)
	require.NotEmpty(t, state)

	err = store.CompleteAuthorization(ctx, state, "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", tokenForm.Get("grant_type"))
	assert.Equal(t, "auth-code", tokenForm.Get("code"))
	assert.Equal(t, "https://app.example.com/callback", tokenForm.Get("redirect_uri"))

	record, err := persist.Credentials().Get(ctx, "reddit")
	require.NoError(t, err)
	assert.Equal(t, "at-1", record.AccessToken)
	assert.Equal(t, "rt-1", record.RefreshToken)
	assert.Equal(t, clock.now.Unix()+3600, record.ExpiresAt)
	assert.Equal(t, "pipe_user", record.Identity)

	assert.True(t, store.Usable(ctx))
}

func TestStore_CompleteAuthorization_StateMismatch(t *testing.T) {
	store, persist, _ := newTestStore(t, nil)
	ctx := context.Background()

	authURL, err := store.BeginAuthorization(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, stateFromAuthURL(t, authURL))

	err = store.CompleteAuthorization(ctx, "forged-state", "auth-code")
	assert.ErrorIs(t, err, models.ErrStateMismatch)

	// The state is single-use: even the genuine value is rejected after the
	// failed attempt consumed it.
	err = store.CompleteAuthorization(ctx, stateFromAuthURL(t, authURL), "auth-code")
	assert.ErrorIs(t, err, models.ErrStateMismatch)

	_, err = persist.Credentials().Get(ctx, "reddit")
	assert.Error(t, err)
}

func TestStore_CompleteAuthorization_NoPendingState(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	err := store.CompleteAuthorization(context.Background(), "any-state", "auth-code")
	assert.ErrorIs(t, err, models.ErrStateMismatch)
}

func TestStore_Token_RefreshesExpiredCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))

		// Provider omits refresh_token in refresh responses.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":3600,"scope":"read identity"}`))
	}))
	defer server.Close()

	store, persist, clock := newTestStore(t, server)
	ctx := context.Background()

	require.NoError(t, persist.Credentials().Save(ctx, &models.CredentialRecord{
		Integration:  "reddit",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    clock.now.Add(-time.Hour).Unix(),
	}))

	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at-2", token)

	record, err := persist.Credentials().Get(ctx, "reddit")
	require.NoError(t, err)
	assert.Equal(t, "at-2", record.AccessToken)
	assert.Equal(t, "rt-1", record.RefreshToken, "refresh token survives a response that omits it")
	assert.Equal(t, clock.now.Unix()+3600, record.ExpiresAt)
	assert.Equal(t, clock.now.Unix(), record.LastRefreshedAt)
}

func TestStore_Token_InsideSafetyMarginTriggersRefresh(t *testing.T) {
	refreshed := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		refreshed = true

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":3600}`))
	}))
	defer server.Close()

	store, persist, clock := newTestStore(t, server)
	ctx := context.Background()

	// Expires in two minutes: inside the five-minute safety margin.
	require.NoError(t, persist.Credentials().Save(ctx, &models.CredentialRecord{
		Integration:  "reddit",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    clock.now.Add(2 * time.Minute).Unix(),
	}))

	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at-2", token)
	assert.True(t, refreshed)
}

func TestStore_Refresh_RejectionClearsCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	store, persist, clock := newTestStore(t, server)
	ctx := context.Background()

	require.NoError(t, persist.Credentials().Save(ctx, &models.CredentialRecord{
		Integration:  "reddit",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    clock.now.Add(-time.Hour).Unix(),
	}))

	err := store.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, models.IsAuthError(err))

	_, err = persist.Credentials().Get(ctx, "reddit")
	assert.Error(t, err, "a rejected refresh removes the stored credential")
}

func TestStore_Token_NoCredential(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	_, err := store.Token(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsAuthError(err))
}

func TestStore_Token_ExpiredWithoutRefreshToken(t *testing.T) {
	store, persist, clock := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, persist.Credentials().Save(ctx, &models.CredentialRecord{
		Integration: "reddit",
		AccessToken: "at-1",
		ExpiresAt:   clock.now.Add(-time.Hour).Unix(),
	}))

	_, err := store.Token(ctx)
	require.Error(t, err)
	assert.True(t, models.IsAuthError(err))
}

func TestStore_Revoke(t *testing.T) {
	revoked := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/revoke", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "at-1", r.PostForm.Get("token"))

		revoked = true

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store, persist, clock := newTestStore(t, server)
	ctx := context.Background()

	require.NoError(t, persist.Credentials().Save(ctx, &models.CredentialRecord{
		Integration: "reddit",
		AccessToken: "at-1",
		ExpiresAt:   clock.now.Add(time.Hour).Unix(),
	}))

	require.NoError(t, store.Revoke(ctx))
	assert.True(t, revoked)

	_, err := persist.Credentials().Get(ctx, "reddit")
	assert.Error(t, err)

	// Revoking an empty store is a no-op.
	require.NoError(t, store.Revoke(ctx))
}

func TestStore_Usable_NoCredential(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	assert.False(t, store.Usable(context.Background()))
}
