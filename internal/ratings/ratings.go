// Package ratings provides durable storage of per-listener track votes
// behind interchangeable SQLite and PostgreSQL backends.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Common errors.
var (
	// ErrValidation marks a malformed rating submission. User-correctable.
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks a backend failure. Callers must not retry here;
	// retries are an operational concern.
	ErrStorage = errors.New("storage failed")
)

// Vote values accepted by the store.
const (
	ThumbsUp   = 1
	ThumbsDown = -1
)

// Rating is one listener's vote for one track. At most one row exists
// per (song, session) pair; a later vote replaces the earlier one.
type Rating struct {
	SongID      string    `db:"song_id" json:"songId"`
	UserSession string    `db:"user_session" json:"userSession"`
	Value       int       `db:"rating" json:"rating"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Aggregate is the vote summary for a track. Counts are zero-valued,
// never null, for tracks nobody has voted on.
type Aggregate struct {
	ThumbsUp   int `db:"thumbs_up" json:"thumbs_up"`
	ThumbsDown int `db:"thumbs_down" json:"thumbs_down"`
	Total      int `db:"total_ratings" json:"total_ratings"`
}

// User is a row in the generic users table.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store is the rating storage contract shared by both backends. All
// write paths express the one-vote-per-pair rule as a single
// conditional-write statement, never a read-then-write sequence.
type Store interface {
	// SubmitRating upserts a vote keyed on (songID, userSession).
	// Returns ErrValidation for bad input, ErrStorage on backend failure.
	SubmitRating(ctx context.Context, songID, userSession string, value int) error

	// Aggregate returns the vote summary for a track. A track without
	// votes yields zero counts, not an error.
	Aggregate(ctx context.Context, songID string) (Aggregate, error)

	// ListenerVote returns the listener's vote for a track. The second
	// return is false when no vote exists; absence is not an error.
	ListenerVote(ctx context.Context, songID, userSession string) (int, bool, error)

	// CreateUser inserts a users row. Returns ErrValidation when name
	// or email is missing.
	CreateUser(ctx context.Context, name, email string) (*User, error)

	// ListUsers returns all users rows.
	ListUsers(ctx context.Context) ([]User, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Open selects a backend from databaseURL: postgres:// URLs get the
// pooled PostgreSQL store, anything else is treated as a SQLite path
// (an optional sqlite:// prefix is stripped).
func Open(ctx context.Context, databaseURL string, logger *log.Logger) (Store, error) {
	if u, err := url.Parse(databaseURL); err == nil {
		switch u.Scheme {
		case "postgres", "postgresql":
			return OpenPostgres(ctx, databaseURL, logger)
		case "sqlite":
			path := u.Opaque
			if path == "" {
				path = u.Host + u.Path
			}
			return OpenSQLite(ctx, path, logger)
		}
	}
	return OpenSQLite(ctx, databaseURL, logger)
}

// validateRating enforces the submission contract shared by both
// backends.
func validateRating(songID, userSession string, value int) error {
	if songID == "" || userSession == "" || value == 0 {
		return fmt.Errorf("%w: songId, rating, and userSession are required", ErrValidation)
	}
	if value != ThumbsUp && value != ThumbsDown {
		return fmt.Errorf("%w: rating must be 1 or -1", ErrValidation)
	}
	return nil
}

// validateUser enforces the users table contract.
func validateUser(name, email string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	return nil
}
