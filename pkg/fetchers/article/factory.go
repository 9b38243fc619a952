package article

import (
	"log/slog"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

// Factory creates article fetch handlers.
type Factory struct {
	client httpclient.Client
	ledger persistence.LedgerRepository
	clock  protocol.Clock
}

// NewFactory creates an article fetcher factory with its shared
// collaborators.
func NewFactory(client httpclient.Client, ledger persistence.LedgerRepository, clock protocol.Clock) *Factory {
	return &Factory{
		client: client,
		ledger: ledger,
		clock:  clock,
	}
}

// Create creates a new fetch handler from the given configuration.
func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.FetchHandler, error) {
	return NewFetcher(config, f.client, f.ledger, f.clock, logger)
}

// ID returns the unique identifier for the fetcher.
func (f *Factory) ID() string {
	return "article"
}

// Name returns the name of the fetcher.
func (f *Factory) Name() string {
	return "Article Reader"
}

// Description returns a brief description of the fetcher.
func (f *Factory) Description() string {
	return "Downloads web articles, extracts their readable content and converts it to markdown."
}

// Schedulable reports that article flows can be triggered automatically.
func (f *Factory) Schedulable() bool {
	return true
}

// Schema returns the JSON schema for configuring this fetcher.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"urls": map[string]any{
				"title":       "Article URLs",
				"type":        "array",
				"description": "Pages to download and normalize. Each URL is consumed once per flow.",
				"items": map[string]any{
					"type":   "string",
					"format": "uri",
				},
				"minItems": 1,
				"examples": [][]string{
					{"https://blog.example.com/announcing-v2"},
				},
			},
		},
		"required":             []string{"urls"},
		"additionalProperties": false,
	}
}
