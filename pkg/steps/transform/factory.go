package transform

import (
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

// Factory creates transform steps.
type Factory struct{}

// NewFactory creates a transform step factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create creates a new transform step from the given configuration.
func (f *Factory) Create(config map[string]any) (protocol.Step, error) {
	return NewStep(config)
}

// ID returns the unique identifier for the step.
func (f *Factory) ID() string {
	return "transform"
}

// Name returns the name of the step.
func (f *Factory) Name() string {
	return "Transform"
}

// Description returns a brief description of the step.
func (f *Factory) Description() string {
	return "Rewrites packet title and body through templates evaluated against the incoming packet."
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
			"title_template": map[string]any{
				"type":        "string",
				"description": "Template for the derived title. The incoming packet is the template context.",
				"examples": []string{
					"[{{.Metadata.SourceType}}] {{.Content.Title}}",
				},
			},
			"body_template": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Template for the derived body.",
				"examples": []string{
					"{{.Content.Body}}\n\nSource: {{.Metadata.SourceType}}",
				},
			},
			"format": map[string]any{
				"type":        "string",
				"description": "Output format of the derived packet.",
				"enum":        []string{"text", "html", "markdown"},
			},
			"append_tags": map[string]any{
				"type":        "array",
				"description": "Tags appended to the derived packet.",
				"items": map[string]any{
					"type": "string",
				},
			},
		},
		"additionalProperties": false,
	}
}
