package models

import "time"

// PacketFormat represents the body format of a data packet.
type PacketFormat string

const (
	FormatText     PacketFormat = "text"
	FormatHTML     PacketFormat = "html"
	FormatMarkdown PacketFormat = "markdown"
)

// PacketContent holds the user-facing content of a packet.
type PacketContent struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Summary *string  `json:"summary,omitempty"`
	Tags    []string `json:"tags"`
}

// PacketMetadata describes where and when the content originated.
type PacketMetadata struct {
	SourceType  string       `json:"source_type"  validate:"required"`
	SourceURL   *string      `json:"source_url,omitempty"`
	DateCreated time.Time    `json:"date_created" validate:"required"`
	Language    string       `json:"language"`
	Format      PacketFormat `json:"format"       validate:"required,oneof=text html markdown"`
}

// PacketProcessing records which pipeline steps have handled the packet.
type PacketProcessing struct {
	StepsCompleted []string `json:"steps_completed"`
	AIModelUsed    *string  `json:"ai_model_used,omitempty"`
	PromptApplied  *string  `json:"prompt_applied,omitempty"`
	TokensUsed     *int     `json:"tokens_used,omitempty"`
}

// PacketImage references an image attached to the packet.
type PacketImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// PacketFile references a non-image file attached to the packet.
type PacketFile struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// PacketLink references an external link attached to the packet.
type PacketLink struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// PacketAttachments groups all media references carried by a packet.
type PacketAttachments struct {
	Images []PacketImage `json:"images"`
	Files  []PacketFile  `json:"files"`
	Links  []PacketLink  `json:"links"`
}

// DataPacket is the canonical content envelope exchanged between pipeline
// steps. A fetch handler constructs one per eligible upstream item; every
// downstream step derives a new packet via Derive rather than mutating the
// one it received.
type DataPacket struct {
	Content     PacketContent     `json:"content"`
	Metadata    PacketMetadata    `json:"metadata"`
	Processing  PacketProcessing  `json:"processing"`
	Attachments PacketAttachments `json:"attachments"`
}

// NewDataPacket creates a packet for a freshly fetched item.
func NewDataPacket(sourceType string, dateCreated time.Time) *DataPacket {
	return &DataPacket{
		Content: PacketContent{
			Tags: []string{},
		},
		Metadata: PacketMetadata{
			SourceType:  sourceType,
			DateCreated: dateCreated,
			Language:    "en",
			Format:      FormatText,
		},
		Processing: PacketProcessing{
			StepsCompleted: []string{},
		},
		Attachments: PacketAttachments{
			Images: []PacketImage{},
			Files:  []PacketFile{},
			Links:  []PacketLink{},
		},
	}
}

// Validate checks the packet invariants.
func (p *DataPacket) Validate() error {
	if p.Content.Title == "" && p.Content.Body == "" {
		return NewConfigError("content", "at least one of title or body must be non-empty")
	}

	switch p.Metadata.Format {
	case FormatText, FormatHTML, FormatMarkdown:
	default:
		return NewConfigError("metadata.format", "must be one of text, html, markdown")
	}

	if p.Metadata.DateCreated.IsZero() {
		return NewConfigError("metadata.date_created", "must be a valid timestamp")
	}

	return nil
}

// Clone returns a deep copy of the packet.
func (p *DataPacket) Clone() *DataPacket {
	clone := *p

	clone.Content.Tags = append([]string{}, p.Content.Tags...)
	clone.Processing.StepsCompleted = append([]string{}, p.Processing.StepsCompleted...)
	clone.Attachments.Images = append([]PacketImage{}, p.Attachments.Images...)
	clone.Attachments.Files = append([]PacketFile{}, p.Attachments.Files...)
	clone.Attachments.Links = append([]PacketLink{}, p.Attachments.Links...)

	if p.Content.Summary != nil {
		summary := *p.Content.Summary
		clone.Content.Summary = &summary
	}

	if p.Metadata.SourceURL != nil {
		url := *p.Metadata.SourceURL
		clone.Metadata.SourceURL = &url
	}

	if p.Processing.AIModelUsed != nil {
		model := *p.Processing.AIModelUsed
		clone.Processing.AIModelUsed = &model
	}

	if p.Processing.PromptApplied != nil {
		prompt := *p.Processing.PromptApplied
		clone.Processing.PromptApplied = &prompt
	}

	if p.Processing.TokensUsed != nil {
		tokens := *p.Processing.TokensUsed
		clone.Processing.TokensUsed = &tokens
	}

	return &clone
}

// Derive clones the packet for the next pipeline step, appending the step
// name to the processing trail and updating the source type to reflect the
// transformation. The receiver is left untouched.
func (p *DataPacket) Derive(stepName, sourceType string) *DataPacket {
	derived := p.Clone()
	derived.Processing.StepsCompleted = append(derived.Processing.StepsCompleted, stepName)

	if sourceType != "" {
		derived.Metadata.SourceType = sourceType
	}

	return derived
}
