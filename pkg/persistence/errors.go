// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrCredentialNotFound indicates no credential exists for the integration.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrAuthStateNotFound indicates no valid authorization state token is stored.
	ErrAuthStateNotFound = errors.New("authorization state not found")

	// ErrItemAlreadyProcessed indicates the ledger already holds this
	// (flow, source, external id) key.
	ErrItemAlreadyProcessed = errors.New("item already processed")

	// ErrJobNotFound indicates a job was not found by the given identifier.
	ErrJobNotFound = errors.New("job not found")

	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrProjectNotFound indicates a project was not found by the given identifier.
	ErrProjectNotFound = errors.New("project not found")

	// ErrScheduleNotFound indicates no schedule entry exists for the unit.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// RepositoryError wraps a persistence failure with operation context.
type RepositoryError struct {
	Op  string // Operation being performed (e.g., "GetByID", "Save")
	Key string // Record identifier if applicable
	Err error  // Underlying error
}

func (e *RepositoryError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRepositoryError creates a repository error with context.
func NewRepositoryError(op, key string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Key: key, Err: err}
}

// IsNotFound checks if an error indicates any record-not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrScheduleNotFound)
}

// IsAlreadyProcessed checks if an error indicates a duplicate ledger key.
func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrItemAlreadyProcessed)
}
