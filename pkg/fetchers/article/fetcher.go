// Package article implements a URL-list fetch handler: each configured page
// is downloaded, reduced to its readable content and converted to markdown.
// Unlike the subreddit handler it is non-limiting and may emit several
// packets per invocation.
package article

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

const sourceType = "article"

// Fetcher downloads and normalizes a configured list of article URLs.
type Fetcher struct {
	urls      []string
	converter *md.Converter
	client    httpclient.Client
	ledger    persistence.LedgerRepository
	clock     protocol.Clock
	logger    *slog.Logger
}

// NewFetcher creates an article fetch handler from flow configuration.
func NewFetcher(
	config map[string]any,
	client httpclient.Client,
	ledger persistence.LedgerRepository,
	clock protocol.Clock,
	logger *slog.Logger,
) (*Fetcher, error) {
	urls, err := parseURLs(config)
	if err != nil {
		return nil, err
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Fetcher{
		urls:      urls,
		converter: converter,
		client:    client,
		ledger:    ledger,
		clock:     clock,
		logger:    logger.With("module", "article_fetcher"),
	}, nil
}

func parseURLs(config map[string]any) ([]string, error) {
	raw, ok := config["urls"].([]any)
	if !ok || len(raw) == 0 {
		return nil, models.NewConfigError("urls", "at least one article URL is required")
	}

	urls := make([]string, 0, len(raw))

	for _, entry := range raw {
		value, ok := entry.(string)
		if !ok {
			return nil, models.NewConfigError("urls", "entries must be strings")
		}

		parsed, err := neturl.Parse(value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, models.NewConfigError("urls",
				fmt.Sprintf("%q is not a valid http(s) URL", value))
		}

		urls = append(urls, value)
	}

	return urls, nil
}

// Validate checks the handler configuration.
func (f *Fetcher) Validate() error {
	if len(f.urls) == 0 {
		return models.NewConfigError("urls", "at least one article URL is required")
	}

	return nil
}

// Fetch downloads every configured URL not yet in the ledger. Per-item
// failures are logged and skipped; siblings are unaffected.
func (f *Fetcher) Fetch(ctx context.Context, scope protocol.FetchScope) ([]*models.DataPacket, error) {
	packets := make([]*models.DataPacket, 0, len(f.urls))

	for _, pageURL := range f.urls {
		processed, err := f.ledger.IsProcessed(ctx, scope.FlowID, sourceType, pageURL)
		if err != nil {
			f.logger.WarnContext(ctx, "Ledger lookup failed, skipping article",
				"url", pageURL, "error", err)

			continue
		}

		if processed {
			continue
		}

		packet, err := f.consume(ctx, scope, pageURL)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to process article",
				"url", pageURL, "error", err)

			continue
		}

		packets = append(packets, packet)
	}

	return packets, nil
}

func (f *Fetcher) consume(ctx context.Context, scope protocol.FetchScope, pageURL string) (*models.DataPacket, error) {
	resp, err := f.client.Do(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    pageURL,
	})
	if err != nil {
		return nil, models.NewUpstreamError(pageURL, 0, err)
	}

	if !resp.Success() {
		return nil, models.NewUpstreamError(pageURL, resp.StatusCode, nil)
	}

	parsed, err := neturl.Parse(pageURL)
	if err != nil {
		return nil, models.NewConfigError("urls", err.Error())
	}

	article, err := readability.FromReader(bytes.NewReader(resp.Body), parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to extract readable content from %s: %w", pageURL, err)
	}

	markdown, err := f.converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to markdown: %w", pageURL, err)
	}

	// Mark the item processed before building the packet so a downstream
	// construction failure never re-yields it.
	err = f.ledger.MarkProcessed(ctx, &models.LedgerEntry{
		FlowID:      scope.FlowID,
		Source:      sourceType,
		ExternalID:  pageURL,
		ProcessedAt: f.clock.Now(),
	})
	if err != nil {
		if persistence.IsAlreadyProcessed(err) {
			return nil, persistence.ErrItemAlreadyProcessed
		}

		return nil, fmt.Errorf("failed to record ledger entry for %s: %w", pageURL, err)
	}

	packet := models.NewDataPacket(sourceType, f.clock.Now())
	packet.Content.Title = article.Title
	packet.Content.Body = markdown
	packet.Metadata.SourceURL = &pageURL
	packet.Metadata.Format = models.FormatMarkdown

	if article.Excerpt != "" {
		excerpt := article.Excerpt
		packet.Content.Summary = &excerpt
	}

	if article.Image != "" {
		packet.Attachments.Images = append(packet.Attachments.Images, models.PacketImage{
			URL: article.Image,
			Alt: article.Title,
		})
	}

	return packet, nil
}
