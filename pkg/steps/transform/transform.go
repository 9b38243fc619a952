// Package transform provides the template-based transform step. It derives a
// new packet from its input rather than mutating it.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/sourcepipe/sourcepipe/pkg/models"
)

const stepName = "transform"

// Step rewrites packet content through Go templates evaluated against the
// incoming packet.
type Step struct {
	ID            string
	TitleTemplate *template.Template
	BodyTemplate  *template.Template
	Format        models.PacketFormat
	AppendTags    []string
}

// NewStep creates a transform step from configuration.
func NewStep(config map[string]any) (*Step, error) {
	stepID, _ := config["id"].(string)
	if stepID == "" {
		stepID = stepName
	}

	step := &Step{ID: stepID}

	if raw, ok := config["title_template"].(string); ok && raw != "" {
		parsed, err := template.New("title").Parse(raw)
		if err != nil {
			return nil, models.NewConfigError("title_template", err.Error())
		}

		step.TitleTemplate = parsed
	}

	if raw, ok := config["body_template"].(string); ok && raw != "" {
		parsed, err := template.New("body").Parse(raw)
		if err != nil {
			return nil, models.NewConfigError("body_template", err.Error())
		}

		step.BodyTemplate = parsed
	}

	if raw, ok := config["format"].(string); ok && raw != "" {
		format := models.PacketFormat(raw)

		switch format {
		case models.FormatText, models.FormatHTML, models.FormatMarkdown:
			step.Format = format
		default:
			return nil, models.NewConfigError("format",
				fmt.Sprintf("%q is not one of text, html, markdown", raw))
		}
	}

	if raw, ok := config["append_tags"].([]any); ok {
		for _, entry := range raw {
			tag, ok := entry.(string)
			if !ok {
				return nil, models.NewConfigError("append_tags", "entries must be strings")
			}

			step.AppendTags = append(step.AppendTags, tag)
		}
	}

	return step, nil
}

// Execute derives a transformed packet. The input packet is never modified.
func (s *Step) Execute(ctx context.Context, packet *models.DataPacket, logger *slog.Logger) (*models.DataPacket, error) {
	logger = logger.With("module", "transform_step", "step_id", s.ID)
	logger.InfoContext(ctx, "Executing transform step")

	derived := packet.Derive(s.ID, stepName)

	if s.TitleTemplate != nil {
		title, err := render(s.TitleTemplate, packet)
		if err != nil {
			return nil, models.NewConfigError("title_template", err.Error())
		}

		derived.Content.Title = title
	}

	if s.BodyTemplate != nil {
		body, err := render(s.BodyTemplate, packet)
		if err != nil {
			return nil, models.NewConfigError("body_template", err.Error())
		}

		derived.Content.Body = body
	}

	if s.Format != "" {
		derived.Metadata.Format = s.Format
	}

	derived.Content.Tags = append(derived.Content.Tags, s.AppendTags...)

	if err := derived.Validate(); err != nil {
		return nil, err
	}

	return derived, nil
}

func render(tmpl *template.Template, packet *models.DataPacket) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, packet); err != nil {
		return "", err
	}

	return buf.String(), nil
}
