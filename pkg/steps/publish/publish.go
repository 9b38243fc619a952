// Package publish provides the webhook publish step: the packet is POSTed as
// JSON to a configured endpoint.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"

	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/models"
)

// Step delivers the packet to an external webhook.
type Step struct {
	ID      string
	URL     string
	Headers map[string]string
	client  httpclient.Client
}

// NewStep creates a publish step from configuration.
func NewStep(config map[string]any, client httpclient.Client) (*Step, error) {
	stepID, _ := config["id"].(string)
	if stepID == "" {
		stepID = "publish"
	}

	rawURL, _ := config["url"].(string)

	parsed, err := neturl.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, models.NewConfigError("url",
			fmt.Sprintf("%q is not a valid http(s) URL", rawURL))
	}

	headers := make(map[string]string)

	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if value, ok := v.(string); ok {
				headers[k] = value
			}
		}
	}

	return &Step{
		ID:      stepID,
		URL:     rawURL,
		Headers: headers,
		client:  client,
	}, nil
}

// Execute POSTs the packet to the webhook. The step is side-effect-only: the
// input packet is returned unchanged.
func (s *Step) Execute(ctx context.Context, packet *models.DataPacket, logger *slog.Logger) (*models.DataPacket, error) {
	logger = logger.With("module", "publish_step", "step_id", s.ID)
	logger.InfoContext(ctx, "Publishing packet", "url", s.URL)

	payload, err := json.Marshal(packet)
	if err != nil {
		return nil, models.ErrSerialization
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range s.Headers {
		headers[k] = v
	}

	resp, err := s.client.Do(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     s.URL,
		Headers: headers,
		Body:    payload,
	})
	if err != nil {
		return nil, models.NewUpstreamError(s.URL, 0, err)
	}

	if !resp.Success() {
		return nil, models.NewUpstreamError(s.URL, resp.StatusCode, nil)
	}

	return packet, nil
}
