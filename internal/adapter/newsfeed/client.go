// Package newsfeed supplies the reference news corpus used for authenticity
// scoring. Items come from an HTTP JSON feed or a YAML file and are refreshed
// on a cron schedule.
package newsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// Client fetches reference items from a JSON news feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a news feed client.
func NewClient(feedURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch downloads the feed. The body is {"items": [{"id", "text", "location"}]}.
func (c *Client) Fetch(ctx context.Context) ([]domain.ReferenceNewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("news feed error: status %d: %s", resp.StatusCode, body)
	}

	var feed feedDocument
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode news feed: %w", err)
	}

	c.logger.Debug("news feed fetched", "url", c.feedURL, "items", len(feed.Items))
	return feed.Items, nil
}

// feedDocument is shared by the JSON feed and the YAML corpus file.
type feedDocument struct {
	Items []domain.ReferenceNewsItem `json:"items" yaml:"items"`
}
