// Package metadata polls the now-playing endpoint and drives the
// rating-panel refresh cycle for the listener client.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shaynemeyer/radio-calico/internal/track"
)

const userAgent = "radio-calico-client/1.0"

// ErrFetch marks a failed snapshot fetch: the network request failed or
// the payload did not decode. The loop survives it; only the display of
// the current track degrades until the next tick.
var ErrFetch = errors.New("metadata fetch failed")

// Client fetches now-playing snapshots from the metadata endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a metadata client for the given snapshot endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch performs one GET of the snapshot endpoint.
func (c *Client) Fetch(ctx context.Context) (*track.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: endpoint returned %s", ErrFetch, resp.Status)
	}

	var snap track.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %v", ErrFetch, err)
	}
	return &snap, nil
}
