// Package protocol defines the capability interfaces implemented by fetch
// handlers, pipeline steps and executors.
package protocol

import (
	"context"
	"log/slog"

	"github.com/sourcepipe/sourcepipe/pkg/models"
)

// FetchScope identifies the flow on whose behalf a fetch runs. The FlowID
// partitions the dedup ledger so different flows can independently consume
// the same upstream item.
type FetchScope struct {
	FlowID string
	Owner  string
}

// FetchHandler pulls items from one upstream integration, applies
// eligibility filters and the dedup ledger, and emits zero or more packets.
// The reference reddit handler emits at most one per call; repeated
// invocation is how multiple items get drained.
type FetchHandler interface {
	// Fetch returns the eligible packets for this invocation. An empty slice
	// is a normal, non-error outcome.
	Fetch(ctx context.Context, scope FetchScope) ([]*models.DataPacket, error)

	// Validate checks the handler configuration eagerly.
	Validate() error
}

// FetcherFactory creates FetchHandler instances from flow configuration.
type FetcherFactory interface {
	Create(config map[string]any, logger *slog.Logger) (FetchHandler, error)
	ID() string
	Name() string
	Description() string

	// Schema returns a JSON Schema describing the configuration structure,
	// used for validation and form generation.
	Schema() map[string]any

	// Schedulable reports whether flows using this handler can be triggered
	// automatically. Handlers that require manual input return false.
	Schedulable() bool
}
