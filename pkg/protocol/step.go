package protocol

import (
	"context"
	"log/slog"

	"github.com/sourcepipe/sourcepipe/pkg/models"
)

// Step is one downstream pipeline stage (transform or publish). A step must
// never mutate the packet it receives: it returns a derived packet built via
// DataPacket.Derive, or the input packet unchanged for side-effect-only
// steps such as publishers.
type Step interface {
	Execute(ctx context.Context, packet *models.DataPacket, logger *slog.Logger) (*models.DataPacket, error)
}

// StepFactory creates Step instances from step configuration.
type StepFactory interface {
	Create(config map[string]any) (Step, error)
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
}
