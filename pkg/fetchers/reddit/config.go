package reddit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sourcepipe/sourcepipe/pkg/models"
)

const defaultBaseURL = "https://oauth.reddit.com"

// Sort modes accepted by the listing endpoint.
const (
	SortHot    = "hot"
	SortNew    = "new"
	SortTop    = "top"
	SortRising = "rising"
)

var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// Config holds the subreddit handler settings.
type Config struct {
	Subreddit       string
	Sort            string
	MinScore        int
	MinComments     int
	Search          string
	TimeWindowHours int
	BaseURL         string
}

// NewConfig parses a raw flow configuration into a Config. Parsing is
// lenient about types; Validate enforces the domain rules.
func NewConfig(config map[string]any) *Config {
	cfg := &Config{
		Sort:    SortHot,
		BaseURL: defaultBaseURL,
	}

	if subreddit, ok := config["subreddit"].(string); ok {
		cfg.Subreddit = strings.TrimPrefix(subreddit, "r/")
	}

	if sort, ok := config["sort"].(string); ok && sort != "" {
		cfg.Sort = sort
	}

	if search, ok := config["search"].(string); ok {
		cfg.Search = search
	}

	if baseURL, ok := config["base_url"].(string); ok && baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	cfg.MinScore = intValue(config, "min_upvotes")
	cfg.MinComments = intValue(config, "min_comments")
	cfg.TimeWindowHours = intValue(config, "time_window_hours")

	return cfg
}

// Validate enforces the configuration rules. Out-of-domain enum values are
// hard errors, never coerced to a default.
func (c *Config) Validate() error {
	if !subredditPattern.MatchString(c.Subreddit) {
		return models.NewConfigError("subreddit",
			fmt.Sprintf("%q is not a valid subreddit name", c.Subreddit))
	}

	switch c.Sort {
	case SortHot, SortNew, SortTop, SortRising:
	default:
		return models.NewConfigError("sort",
			fmt.Sprintf("%q is not one of hot, new, top, rising", c.Sort))
	}

	if c.MinScore < 0 {
		return models.NewConfigError("min_upvotes", "must not be negative")
	}

	if c.MinComments < 0 {
		return models.NewConfigError("min_comments", "must not be negative")
	}

	if c.TimeWindowHours < 0 {
		return models.NewConfigError("time_window_hours", "must not be negative")
	}

	return nil
}

func intValue(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
