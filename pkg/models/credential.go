package models

import "time"

// DefaultExpirySafetyMargin keeps a credential from being treated as usable
// right before it expires mid-call.
const DefaultExpirySafetyMargin = 5 * time.Minute

// CredentialRecord is the persisted OAuth token set for one integration and
// authentication scope.
type CredentialRecord struct {
	Integration     string `json:"integration" validate:"required"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token,omitempty"`
	ExpiresAt       int64  `json:"expires_at"`
	Scope           string `json:"scope"`
	LastRefreshedAt int64  `json:"last_refreshed_at"`
	Identity        string `json:"identity,omitempty"`
}

// Usable reports whether the access token is present and not within the
// safety margin of its expiry.
func (c *CredentialRecord) Usable(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}

	return now.Unix() < c.ExpiresAt-int64(DefaultExpirySafetyMargin.Seconds())
}

// Refreshable reports whether an expired record can still be refreshed.
func (c *CredentialRecord) Refreshable() bool {
	return c.RefreshToken != ""
}
