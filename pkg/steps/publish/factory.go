package publish

import (
	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

// Factory creates publish steps.
type Factory struct {
	client httpclient.Client
}

// NewFactory creates a publish step factory.
func NewFactory(client httpclient.Client) *Factory {
	return &Factory{client: client}
}

// Create creates a new publish step from the given configuration.
func (f *Factory) Create(config map[string]any) (protocol.Step, error) {
	return NewStep(config, f.client)
}

// ID returns the unique identifier for the step.
func (f *Factory) ID() string {
	return "publish"
}

// Name returns the name of the step.
func (f *Factory) Name() string {
	return "Webhook Publish"
}

// Description returns a brief description of the step.
func (f *Factory) Description() string {
	return "Delivers the packet as JSON to a configured webhook endpoint."
}

// Schema returns the JSON schema for configuring this step.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "Step identifier recorded in the packet processing trail.",
			},
			"url": map[string]any{
				"title":       "Webhook URL",
				"type":        "string",
				"description": "Endpoint receiving the packet JSON via POST.",
				"examples": []string{
					"https://hooks.example.com/ingest",
				},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Additional HTTP headers sent with the request.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
