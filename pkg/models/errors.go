// Package models defines the core domain models for content ingestion pipelines.
package models

import (
	"errors"
	"fmt"
)

// Standard error categories surfaced by fetch handlers, the credential
// store and the job dispatcher. Callers classify failures with errors.Is
// against these sentinels.
var (
	// ErrConfig indicates invalid handler settings. Never retried.
	ErrConfig = errors.New("invalid configuration")

	// ErrAuth indicates no usable or refreshable credential. Surfaced for
	// user re-authorization.
	ErrAuth = errors.New("authentication required")

	// ErrUpstream indicates a non-2xx or malformed response from the
	// upstream API.
	ErrUpstream = errors.New("upstream request failed")

	// ErrStateMismatch indicates an anti-forgery state check failed during
	// authorization. Never retried.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrSerialization indicates a job payload could not be encoded.
	// Fatal to that one item only.
	ErrSerialization = errors.New("payload serialization failed")
)

// ConfigError wraps a handler configuration problem with the offending field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %s", e.Field, e.Message)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// AuthError wraps an authentication failure for a given integration.
type AuthError struct {
	Integration string
	Err         error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed for %s: %v", e.Integration, e.Err)
	}

	return fmt.Sprintf("authentication failed for %s", e.Integration)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth || errors.Is(e.Err, target)
}

// NewAuthError creates an AuthError for the given integration.
func NewAuthError(integration string, err error) *AuthError {
	return &AuthError{Integration: integration, Err: err}
}

// UpstreamError wraps a failed upstream API call with its HTTP status.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s returned status %d", e.Endpoint, e.StatusCode)
	}

	return fmt.Sprintf("upstream %s failed: %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream || errors.Is(e.Err, target)
}

// NewUpstreamError creates an UpstreamError for the given endpoint.
func NewUpstreamError(endpoint string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Endpoint: endpoint, StatusCode: statusCode, Err: err}
}

// IsConfigError checks if an error indicates invalid handler configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsAuthError checks if an error indicates a missing or unusable credential.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsUpstreamError checks if an error indicates an upstream API failure.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstream)
}
