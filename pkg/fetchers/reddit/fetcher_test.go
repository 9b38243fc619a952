package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/persistence/file"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) Token(_ context.Context) (string, error) {
	return s.token, s.err
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type testPost struct {
	name       string
	title      string
	body       string
	score      int
	comments   int
	createdUTC int64
	url        string
	postHint   string
}

func listingJSON(t *testing.T, after string, posts ...testPost) []byte {
	t.Helper()

	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{
			"data": map[string]any{
				"id":           p.name,
				"name":         "t3_" + p.name,
				"title":        p.title,
				"selftext":     p.body,
				"subreddit":    "testsub",
				"permalink":    "/r/testsub/comments/" + p.name + "/",
				"url":          p.url,
				"score":        p.score,
				"num_comments": p.comments,
				"created_utc":  p.createdUTC,
				"post_hint":    p.postHint,
			},
		})
	}

	payload, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"after":    after,
			"children": children,
		},
	})
	require.NoError(t, err)

	return payload
}

func newTestFetcher(t *testing.T, config map[string]any, baseURL string) (*Fetcher, persistence.LedgerRepository, *fixedClock) {
	t.Helper()

	ledger := file.NewPersistence(t.TempDir()).Ledger()
	clock := &fixedClock{now: time.Now()}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	config["base_url"] = baseURL

	fetcher, err := NewFetcher(config, &staticTokens{token: "tok"},
		httpclient.NewHTTPClient(logger), ledger, clock, logger)
	require.NoError(t, err)

	return fetcher, ledger, clock
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))

	return len(p), nil
}

func TestFetcher_EligibleItemScenario(t *testing.T) {
	now := time.Now().Unix()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/r/testsub/hot":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

			_, _ = w.Write(listingJSON(t, "",
				testPost{name: "p1", title: "Big Launch Today", body: "we shipped", score: 50, comments: 12, createdUTC: now},
				testPost{name: "p2", title: "Cat", body: "meow", score: 5, comments: 3, createdUTC: now},
				testPost{name: "p3", title: "Launch Party", body: "", score: 20, comments: 7, createdUTC: now},
			))
		case "/r/testsub/comments/p1":
			_, _ = w.Write([]byte(`[
				{"data":{"children":[{"data":{"title":"Big Launch Today"}}]}},
				{"data":{"children":[{"data":{"body":"congrats!"}},{"data":{"body":"awesome"}}]}}
			]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	config := map[string]any{
		"subreddit":   "testsub",
		"sort":        "hot",
		"min_upvotes": 10,
		"search":      "launch",
	}

	fetcher, ledger, _ := newTestFetcher(t, config, server.URL)
	ctx := context.Background()
	scope := protocol.FetchScope{FlowID: "flow-1", Owner: "admin"}

	packets, err := fetcher.Fetch(ctx, scope)
	require.NoError(t, err)
	require.Len(t, packets, 1, "a single call yields at most one packet")

	packet := packets[0]
	assert.Equal(t, "Big Launch Today", packet.Content.Title)
	assert.Equal(t, "we shipped", packet.Content.Body)
	assert.Equal(t, "reddit", packet.Metadata.SourceType)
	assert.Equal(t, models.FormatMarkdown, packet.Metadata.Format)
	require.NotNil(t, packet.Metadata.SourceURL)
	assert.Contains(t, *packet.Metadata.SourceURL, "/r/testsub/comments/p1")
	require.NotNil(t, packet.Content.Summary)
	assert.Contains(t, *packet.Content.Summary, "congrats!")

	processed, err := ledger.IsProcessed(ctx, "flow-1", "reddit", "t3_p1")
	require.NoError(t, err)
	assert.True(t, processed)

	// Repeated invocation drains the remaining eligible item, then runs dry.
	packets, err = fetcher.Fetch(ctx, scope)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, "Launch Party", packets[0].Content.Title)

	packets, err = fetcher.Fetch(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, packets)
}

func TestFetcher_DedupIsScopedPerFlow(t *testing.T) {
	now := time.Now().Unix()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/testsub/hot" {
			_, _ = w.Write(listingJSON(t, "",
				testPost{name: "p1", title: "Only Post", score: 50, comments: 2, createdUTC: now}))

			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher, _, _ := newTestFetcher(t, map[string]any{"subreddit": "testsub"}, server.URL)
	ctx := context.Background()

	packets, err := fetcher.Fetch(ctx, protocol.FetchScope{FlowID: "flow-a"})
	require.NoError(t, err)
	require.Len(t, packets, 1)

	packets, err = fetcher.Fetch(ctx, protocol.FetchScope{FlowID: "flow-a"})
	require.NoError(t, err)
	assert.Empty(t, packets, "same scope never re-consumes the item")

	packets, err = fetcher.Fetch(ctx, protocol.FetchScope{FlowID: "flow-b"})
	require.NoError(t, err)
	assert.Len(t, packets, 1, "a different scope may consume the same item")
}

func TestFetcher_InvalidSortIsHardError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	ledger := file.NewPersistence(t.TempDir()).Ledger()

	_, err := NewFetcher(map[string]any{
		"subreddit": "testsub",
		"sort":      "best",
	}, &staticTokens{token: "tok"}, httpclient.NewHTTPClient(logger), ledger,
		protocol.SystemClock{}, logger)

	require.Error(t, err)
	assert.True(t, models.IsConfigError(err))
}

func TestFetcher_TimeWindowSkipsWithoutAborting(t *testing.T) {
	pageRequests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/testsub/new" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		pageRequests++

		now := time.Now()
		// An out-of-window item appears before a newer one: the old item is
		// skipped but the batch keeps being scanned.
		_, _ = w.Write(listingJSON(t, "cursor-next",
			testPost{name: "p1", title: "fresh but low", score: 1, comments: 0, createdUTC: now.Unix()},
			testPost{name: "p2", title: "ancient", score: 99, comments: 9, createdUTC: now.Add(-100 * time.Hour).Unix()},
			testPost{name: "p3", title: "recent winner", score: 99, comments: 9, createdUTC: now.Add(-time.Hour).Unix()},
		))
	}))
	defer server.Close()

	config := map[string]any{
		"subreddit":         "testsub",
		"sort":              "new",
		"min_upvotes":       10,
		"time_window_hours": 24,
	}

	fetcher, _, _ := newTestFetcher(t, config, server.URL)

	packets, err := fetcher.Fetch(context.Background(), protocol.FetchScope{FlowID: "flow-1"})
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, "recent winner", packets[0].Content.Title)
	assert.Equal(t, 1, pageRequests, "hitting the time limit stops pagination after the batch")
}

func TestFetcher_TimeLimitStopsPaginationOnEmptyBatch(t *testing.T) {
	pageRequests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pageRequests++

		_, _ = w.Write(listingJSON(t, "cursor-next",
			testPost{name: "p1", title: "ancient", score: 99, comments: 9,
				createdUTC: time.Now().Add(-100 * time.Hour).Unix()},
		))
	}))
	defer server.Close()

	fetcher, _, _ := newTestFetcher(t, map[string]any{
		"subreddit":         "testsub",
		"time_window_hours": 24,
	}, server.URL)

	packets, err := fetcher.Fetch(context.Background(), protocol.FetchScope{FlowID: "flow-1"})
	require.NoError(t, err)
	assert.Empty(t, packets)
	assert.Equal(t, 1, pageRequests)
}

func TestFetcher_FirstPageFailureIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher, _, _ := newTestFetcher(t, map[string]any{"subreddit": "testsub"}, server.URL)

	_, err := fetcher.Fetch(context.Background(), protocol.FetchScope{FlowID: "flow-1"})
	require.Error(t, err)
	assert.True(t, models.IsUpstreamError(err))
}

func TestFetcher_LaterPageFailureDegradesGracefully(t *testing.T) {
	pageRequests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pageRequests++

		if pageRequests == 1 {
			// Nothing eligible on the first page, pagination continues.
			_, _ = w.Write(listingJSON(t, "cursor-2",
				testPost{name: "p1", title: "low", score: 1, comments: 0, createdUTC: time.Now().Unix()}))

			return
		}

		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher, _, _ := newTestFetcher(t, map[string]any{
		"subreddit":   "testsub",
		"min_upvotes": 10,
	}, server.URL)

	packets, err := fetcher.Fetch(context.Background(), protocol.FetchScope{FlowID: "flow-1"})
	require.NoError(t, err, "a later-page failure stops pagination without error")
	assert.Empty(t, packets)
	assert.Equal(t, 2, pageRequests)
}

func TestFetcher_AuthErrorPropagates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	ledger := file.NewPersistence(t.TempDir()).Ledger()

	authErr := models.NewAuthError("reddit", errors.New("no credential stored"))

	fetcher, err := NewFetcher(map[string]any{"subreddit": "testsub"},
		&staticTokens{err: authErr}, httpclient.NewHTTPClient(logger), ledger,
		protocol.SystemClock{}, logger)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), protocol.FetchScope{FlowID: "flow-1"})
	require.Error(t, err)
	assert.True(t, models.IsAuthError(err))
}

func TestFetcher_ImageClassification(t *testing.T) {
	now := time.Now().Unix()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/testsub/hot" {
			_, _ = w.Write(listingJSON(t, "",
				testPost{name: "p1", title: "Screenshot", score: 50, comments: 2,
					createdUTC: now, url: "https://i.example.com/shot.png"}))

			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher, _, _ := newTestFetcher(t, map[string]any{"subreddit": "testsub"}, server.URL)

	packets, err := fetcher.Fetch(context.Background(), protocol.FetchScope{FlowID: "flow-1"})
	require.NoError(t, err)
	require.Len(t, packets, 1)

	require.Len(t, packets[0].Attachments.Images, 1)
	assert.Equal(t, "https://i.example.com/shot.png", packets[0].Attachments.Images[0].URL)
	assert.Empty(t, packets[0].Attachments.Links)
}

func TestFetcher_NonImageURLBecomesLink(t *testing.T) {
	now := time.Now().Unix()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/testsub/hot" {
			_, _ = w.Write(listingJSON(t, "",
				testPost{name: "p1", title: "Article", score: 50, comments: 2,
					createdUTC: now, url: "https://blog.example.com/post"}))

			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher, _, _ := newTestFetcher(t, map[string]any{"subreddit": "testsub"}, server.URL)

	packets, err := fetcher.Fetch(context.Background(), protocol.FetchScope{FlowID: "flow-1"})
	require.NoError(t, err)
	require.Len(t, packets, 1)

	assert.Empty(t, packets[0].Attachments.Images)
	require.Len(t, packets[0].Attachments.Links, 1)
	assert.Equal(t, "https://blog.example.com/post", packets[0].Attachments.Links[0].URL)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{name: "valid minimal", config: map[string]any{"subreddit": "golang"}},
		{name: "valid with prefix", config: map[string]any{"subreddit": "r/golang"}},
		{name: "missing subreddit", config: map[string]any{}, wantErr: true},
		{name: "invalid characters", config: map[string]any{"subreddit": "go lang!"}, wantErr: true},
		{name: "invalid sort", config: map[string]any{"subreddit": "golang", "sort": "controversial"}, wantErr: true},
		{name: "negative threshold", config: map[string]any{"subreddit": "golang", "min_upvotes": -1}, wantErr: true},
		{name: "valid full", config: map[string]any{
			"subreddit": "golang", "sort": "top", "min_upvotes": 10,
			"min_comments": 2, "search": "release", "time_window_hours": 48,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.config).Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsConfigError(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}
