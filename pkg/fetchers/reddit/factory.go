package reddit

import (
	"log/slog"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

// Factory creates subreddit fetch handlers.
type Factory struct {
	tokens TokenSource
	client httpclient.Client
	ledger persistence.LedgerRepository
	clock  protocol.Clock
}

// NewFactory creates a reddit fetcher factory with its shared collaborators.
func NewFactory(
	tokens TokenSource,
	client httpclient.Client,
	ledger persistence.LedgerRepository,
	clock protocol.Clock,
) *Factory {
	return &Factory{
		tokens: tokens,
		client: client,
		ledger: ledger,
		clock:  clock,
	}
}

// Create creates a new fetch handler from the given configuration.
func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.FetchHandler, error) {
	return NewFetcher(config, f.tokens, f.client, f.ledger, f.clock, logger)
}

// ID returns the unique identifier for the fetcher.
func (f *Factory) ID() string {
	return "reddit"
}

// Name returns the name of the fetcher.
func (f *Factory) Name() string {
	return "Subreddit Reader"
}

// Description returns a brief description of the fetcher.
func (f *Factory) Description() string {
	return "Reads posts from a subreddit, applying score, comment, time-window and keyword filters."
}

// Schedulable reports that subreddit flows can be triggered automatically.
func (f *Factory) Schedulable() bool {
	return true
}

// Schema returns the JSON schema for configuring this fetcher.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subreddit": map[string]any{
				"title":       "Subreddit",
				"type":        "string",
				"description": "Subreddit name without the r/ prefix.",
				"pattern":     "^[A-Za-z0-9_]{2,21}$",
				"examples":    []string{"golang", "selfhosted"},
			},
			"sort": map[string]any{
				"type":        "string",
				"description": "Listing sort mode.",
				"default":     SortHot,
				"enum":        []string{SortHot, SortNew, SortTop, SortRising},
			},
			"min_upvotes": map[string]any{
				"type":        "integer",
				"description": "Minimum post score for eligibility.",
				"default":     0,
				"minimum":     0,
			},
			"min_comments": map[string]any{
				"type":        "integer",
				"description": "Minimum comment count for eligibility.",
				"default":     0,
				"minimum":     0,
			},
			"search": map[string]any{
				"type":        "string",
				"description": "Case-insensitive keyword matched against title and body.",
			},
			"time_window_hours": map[string]any{
				"type":        "integer",
				"description": "Only consider posts newer than this many hours. Zero disables the cutoff.",
				"default":     0,
				"minimum":     0,
			},
			"base_url": map[string]any{
				"type":        "string",
				"description": "Override the API base URL.",
				"default":     defaultBaseURL,
			},
		},
		"required":             []string{"subreddit"},
		"additionalProperties": false,
	}
}
