// Package apiclient is the client side of the rating API, used by the
// listener to submit votes and refresh the rating panel.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRejected is returned when the server refuses a submission (400).
// The server's message is attached for display.
var ErrRejected = errors.New("rating rejected")

const requestTimeout = 10 * time.Second

// Summary is the aggregate rating view for a track.
type Summary struct {
	SongID     string `json:"songId"`
	ThumbsUp   int    `json:"thumbs_up"`
	ThumbsDown int    `json:"thumbs_down"`
	Total      int    `json:"total_ratings"`
}

// Client talks to the rating server on behalf of one listener session.
type Client struct {
	http        *resty.Client
	userSession string
}

// Option adjusts the client at construction time.
type Option func(*resty.Client)

// WithInstanceID tags every request with the identifier of this client
// run, so server logs can tell concurrent listeners apart.
func WithInstanceID(id string) Option {
	return func(c *resty.Client) {
		c.SetHeader("X-Client-Instance", id)
	}
}

// New creates a Client for the given server base URL and listener token.
func New(baseURL, userSession string, opts ...Option) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", "radio-calico-client/1.0")

	for _, opt := range opts {
		opt(client)
	}

	return &Client{http: client, userSession: userSession}
}

// errorBody is the server's structured error response.
type errorBody struct {
	Error string `json:"error"`
}

// Submit casts the listener's vote for a track.
func (c *Client) Submit(ctx context.Context, songID string, vote int) error {
	body := map[string]any{
		"songId":      songID,
		"rating":      vote,
		"userSession": c.userSession,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/api/songs/rate")
	if err != nil {
		return fmt.Errorf("submitting rating: %w", err)
	}

	if resp.StatusCode() == http.StatusBadRequest {
		var eb errorBody
		if jsonErr := json.Unmarshal(resp.Body(), &eb); jsonErr == nil && eb.Error != "" {
			return fmt.Errorf("%w: %s", ErrRejected, eb.Error)
		}
		return ErrRejected
	}
	if resp.IsError() {
		return fmt.Errorf("submitting rating: server returned %s", resp.Status())
	}
	return nil
}

// Aggregate fetches the vote summary for a track.
func (c *Client) Aggregate(ctx context.Context, songID string) (*Summary, error) {
	var summary Summary
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&summary).
		Get(fmt.Sprintf("/api/songs/%s/ratings", songID))
	if err != nil {
		return nil, fmt.Errorf("fetching ratings: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching ratings: server returned %s", resp.Status())
	}
	return &summary, nil
}

// userRatingResponse mirrors the user-rating endpoint body; Rating is
// null when the listener has not voted.
type userRatingResponse struct {
	SongID      string `json:"songId"`
	UserSession string `json:"userSession"`
	Rating      *int   `json:"rating"`
}

// UserRating fetches this listener's vote for a track. The bool is
// false when no vote exists.
func (c *Client) UserRating(ctx context.Context, songID string) (int, bool, error) {
	var out userRatingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/api/songs/%s/user-rating/%s", songID, c.userSession))
	if err != nil {
		return 0, false, fmt.Errorf("fetching user rating: %w", err)
	}
	if resp.IsError() {
		return 0, false, fmt.Errorf("fetching user rating: server returned %s", resp.Status())
	}
	if out.Rating == nil {
		return 0, false, nil
	}
	return *out.Rating, true, nil
}
