package cmd

import (
	"log/slog"

	"github.com/sourcepipe/sourcepipe/pkg/credentials"
	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

// NewRedditCredentials builds the credential store for the reddit
// integration. The duration=permanent authorization parameter is what makes
// reddit hand out a refresh token.
func NewRedditCredentials(
	clientID, clientSecret, redirectURL string,
	persist persistence.Persistence,
	client httpclient.Client,
	clock protocol.Clock,
	logger *slog.Logger,
) *credentials.Store {
	return credentials.NewStore(credentials.Config{
		Integration:  "reddit",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      "https://www.reddit.com/api/v1/authorize",
		TokenURL:     "https://www.reddit.com/api/v1/access_token",
		RevokeURL:    "https://www.reddit.com/api/v1/revoke_token",
		IdentityURL:  "https://oauth.reddit.com/api/v1/me",
		RedirectURL:  redirectURL,
		Scopes:       []string{"identity", "read"},
		ExtraAuthParams: map[string]string{
			"duration": "permanent",
		},
	}, persist.Credentials(), persist.AuthStates(), client, clock, logger)
}
