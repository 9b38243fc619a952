// Package reddit implements the subreddit fetch handler: authenticate,
// paginate the listing endpoint, filter, dedup against the ledger, and emit
// at most one packet per invocation.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

const (
	sourceType  = "reddit"
	maxPages    = 5
	pageSize    = 25
	topComments = 3
	userAgent   = "sourcepipe/1.0"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// TokenSource supplies a usable access token; satisfied by
// credentials.Store.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Fetcher pulls posts from one subreddit.
type Fetcher struct {
	config *Config
	tokens TokenSource
	client httpclient.Client
	ledger persistence.LedgerRepository
	clock  protocol.Clock
	logger *slog.Logger
}

// NewFetcher creates a subreddit fetch handler from flow configuration.
func NewFetcher(
	config map[string]any,
	tokens TokenSource,
	client httpclient.Client,
	ledger persistence.LedgerRepository,
	clock protocol.Clock,
	logger *slog.Logger,
) (*Fetcher, error) {
	cfg := NewConfig(config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Fetcher{
		config: cfg,
		tokens: tokens,
		client: client,
		ledger: ledger,
		clock:  clock,
		logger: logger.With("module", "reddit_fetcher", "subreddit", cfg.Subreddit),
	}, nil
}

// Validate checks the handler configuration.
func (f *Fetcher) Validate() error {
	return f.config.Validate()
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	PostHint    string  `json:"post_hint"`
	IsGallery   bool    `json:"is_gallery"`
}

// Fetch paginates the subreddit listing and returns at most one eligible
// packet. An empty result is a normal outcome.
func (f *Fetcher) Fetch(ctx context.Context, scope protocol.FetchScope) ([]*models.DataPacket, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	if err := f.config.Validate(); err != nil {
		return nil, err
	}

	var cutoff time.Time
	if f.config.TimeWindowHours > 0 {
		cutoff = f.clock.Now().Add(-time.Duration(f.config.TimeWindowHours) * time.Hour)
	}

	after := ""

	for page := 1; page <= maxPages; page++ {
		batch, err := f.fetchPage(ctx, token, after)
		if err != nil {
			if page == 1 {
				return nil, err
			}

			// Later-page failures degrade to stop-paginating.
			f.logger.WarnContext(ctx, "Pagination stopped on upstream failure",
				"page", page, "error", err)

			break
		}

		hitTimeLimit := false

		for _, child := range batch.Data.Children {
			item := child.Data

			eligible, hitCutoff := f.eligible(ctx, scope, item, cutoff)
			if hitCutoff {
				// Listings are roughly time-ordered: skip the item but keep
				// scanning the batch in case a newer item appears after it.
				hitTimeLimit = true

				continue
			}

			if !eligible {
				continue
			}

			packet, err := f.consume(ctx, scope, token, item)
			if err != nil {
				if errors.Is(err, persistence.ErrItemAlreadyProcessed) {
					continue
				}

				return nil, err
			}

			return []*models.DataPacket{packet}, nil
		}

		if hitTimeLimit {
			break
		}

		after = batch.Data.After
		if after == "" {
			break
		}
	}

	return []*models.DataPacket{}, nil
}

// eligible applies the filters in their fixed order. The second return value
// reports that the item fell outside the time window.
func (f *Fetcher) eligible(ctx context.Context, scope protocol.FetchScope, item post, cutoff time.Time) (bool, bool) {
	created := time.Unix(int64(item.CreatedUTC), 0)

	if !cutoff.IsZero() && created.Before(cutoff) {
		return false, true
	}

	if item.Score < f.config.MinScore {
		return false, false
	}

	processed, err := f.ledger.IsProcessed(ctx, scope.FlowID, sourceType, item.Name)
	if err != nil {
		f.logger.WarnContext(ctx, "Ledger lookup failed, skipping item",
			"item", item.Name, "error", err)

		return false, false
	}

	if processed {
		return false, false
	}

	if item.NumComments < f.config.MinComments {
		return false, false
	}

	if f.config.Search != "" {
		haystack := strings.ToLower(item.Title + " " + item.Selftext)
		if !strings.Contains(haystack, strings.ToLower(f.config.Search)) {
			return false, false
		}
	}

	return true, false
}

// consume marks the item processed before constructing the packet, so a
// failed construction never re-yields the item on the next invocation.
func (f *Fetcher) consume(ctx context.Context, scope protocol.FetchScope, token string, item post) (*models.DataPacket, error) {
	err := f.ledger.MarkProcessed(ctx, &models.LedgerEntry{
		FlowID:      scope.FlowID,
		Source:      sourceType,
		ExternalID:  item.Name,
		ProcessedAt: f.clock.Now(),
	})
	if err != nil {
		if persistence.IsAlreadyProcessed(err) {
			return nil, persistence.ErrItemAlreadyProcessed
		}

		return nil, fmt.Errorf("failed to record ledger entry for %s: %w", item.Name, err)
	}

	packet := f.buildPacket(item)

	// Enrichment is best-effort: a failed comments fetch never fails the
	// overall fetch.
	if comments, err := f.fetchTopComments(ctx, token, item.ID); err != nil {
		f.logger.WarnContext(ctx, "Failed to fetch top comments",
			"item", item.Name, "error", err)
	} else if len(comments) > 0 {
		summary := "Top comments:\n- " + strings.Join(comments, "\n- ")
		packet.Content.Summary = &summary
	}

	return packet, nil
}

func (f *Fetcher) buildPacket(item post) *models.DataPacket {
	packet := models.NewDataPacket(sourceType, time.Unix(int64(item.CreatedUTC), 0))
	packet.Content.Title = item.Title
	packet.Content.Body = item.Selftext
	packet.Content.Tags = []string{item.Subreddit}
	packet.Metadata.Format = models.FormatMarkdown

	if item.Permalink != "" {
		permalink := "https://www.reddit.com" + item.Permalink
		packet.Metadata.SourceURL = &permalink
	}

	f.classifyAttachment(packet, item)

	return packet
}

// classifyAttachment decides whether the post URL is an image or a plain
// link, using the post hint and an extension heuristic.
func (f *Fetcher) classifyAttachment(packet *models.DataPacket, item post) {
	if item.URL == "" || (item.Permalink != "" && strings.HasSuffix(item.URL, item.Permalink)) {
		return
	}

	ext := strings.ToLower(path.Ext(item.URL))

	switch {
	case item.PostHint == "image" || imageExtensions[ext]:
		packet.Attachments.Images = append(packet.Attachments.Images, models.PacketImage{
			URL: item.URL,
			Alt: item.Title,
		})
	case item.IsGallery:
		packet.Attachments.Images = append(packet.Attachments.Images, models.PacketImage{
			URL: item.URL,
			Alt: item.Title + " (gallery)",
		})
	default:
		packet.Attachments.Links = append(packet.Attachments.Links, models.PacketLink{
			URL:   item.URL,
			Title: item.Title,
		})
	}
}

func (f *Fetcher) fetchPage(ctx context.Context, token, after string) (*listing, error) {
	endpoint := fmt.Sprintf("%s/r/%s/%s", f.config.BaseURL, f.config.Subreddit, f.config.Sort)

	query := url.Values{
		"limit":    []string{strconv.Itoa(pageSize)},
		"raw_json": []string{"1"},
	}
	if after != "" {
		query.Set("after", after)
	}

	resp, err := f.client.Do(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Query:  query,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"User-Agent":    userAgent,
		},
	})
	if err != nil {
		return nil, models.NewUpstreamError(endpoint, 0, err)
	}

	if !resp.Success() {
		return nil, models.NewUpstreamError(endpoint, resp.StatusCode, nil)
	}

	var batch listing
	if err := resp.DecodeJSON(&batch); err != nil {
		return nil, models.NewUpstreamError(endpoint, resp.StatusCode, err)
	}

	return &batch, nil
}

func (f *Fetcher) fetchTopComments(ctx context.Context, token, postID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/r/%s/comments/%s", f.config.BaseURL, f.config.Subreddit, postID)

	resp, err := f.client.Do(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Query: url.Values{
			"limit":    []string{strconv.Itoa(topComments)},
			"depth":    []string{"1"},
			"raw_json": []string{"1"},
		},
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"User-Agent":    userAgent,
		},
	})
	if err != nil {
		return nil, err
	}

	if !resp.Success() {
		return nil, models.NewUpstreamError(endpoint, resp.StatusCode, nil)
	}

	// The comments endpoint returns two listings: the post, then the
	// comment tree.
	var listings []struct {
		Data struct {
			Children []struct {
				Data struct {
					Body string `json:"body"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}

	if err := resp.DecodeJSON(&listings); err != nil {
		return nil, err
	}

	if len(listings) < 2 {
		return nil, nil
	}

	comments := make([]string, 0, topComments)

	for _, child := range listings[1].Data.Children {
		if child.Data.Body == "" {
			continue
		}

		comments = append(comments, child.Data.Body)

		if len(comments) == topComments {
			break
		}
	}

	return comments, nil
}
