package ratings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the embedded file-backed store for single-process
// deployments. Writes are serialized at the storage layer by capping
// the connection pool at one connection.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *log.Logger
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS song_ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		song_id TEXT NOT NULL,
		user_session TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating IN (1, -1)),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(song_id, user_session)
	)`,
}

// OpenSQLite opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *log.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Single-writer discipline.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating sqlite schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// SubmitRating upserts a vote via a single conditional write on the
// (song_id, user_session) unique constraint.
func (s *SQLiteStore) SubmitRating(ctx context.Context, songID, userSession string, value int) error {
	if err := validateRating(songID, userSession, value); err != nil {
		return err
	}

	query := `
		INSERT INTO song_ratings (song_id, user_session, rating)
		VALUES (?, ?, ?)
		ON CONFLICT(song_id, user_session) DO UPDATE SET rating = excluded.rating
	`
	if _, err := s.db.ExecContext(ctx, query, songID, userSession, value); err != nil {
		s.logger.Error("rating upsert failed", "query", "song_ratings upsert", "err", err)
		return fmt.Errorf("%w: upserting rating: %v", ErrStorage, err)
	}
	return nil
}

// Aggregate returns the vote summary for a track.
func (s *SQLiteStore) Aggregate(ctx context.Context, songID string) (Aggregate, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN rating = 1 THEN 1 ELSE 0 END), 0) AS thumbs_up,
			COALESCE(SUM(CASE WHEN rating = -1 THEN 1 ELSE 0 END), 0) AS thumbs_down,
			COUNT(*) AS total_ratings
		FROM song_ratings WHERE song_id = ?
	`
	var agg Aggregate
	if err := s.db.GetContext(ctx, &agg, query, songID); err != nil {
		s.logger.Error("rating aggregate failed", "query", "song_ratings aggregate", "err", err)
		return Aggregate{}, fmt.Errorf("%w: aggregating ratings: %v", ErrStorage, err)
	}
	return agg, nil
}

// ListenerVote returns the listener's stored vote, if any.
func (s *SQLiteStore) ListenerVote(ctx context.Context, songID, userSession string) (int, bool, error) {
	query := `SELECT rating FROM song_ratings WHERE song_id = ? AND user_session = ?`

	var vote int
	err := s.db.GetContext(ctx, &vote, query, songID, userSession)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		s.logger.Error("listener vote lookup failed", "query", "song_ratings lookup", "err", err)
		return 0, false, fmt.Errorf("%w: querying listener vote: %v", ErrStorage, err)
	}
	return vote, true, nil
}

// CreateUser inserts a users row and returns it.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email string) (*User, error) {
	if err := validateUser(name, email); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email) VALUES (?, ?)`, name, email)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting user: %v", ErrStorage, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: reading inserted user id: %v", ErrStorage, err)
	}

	var user User
	if err := s.db.GetContext(ctx, &user,
		`SELECT id, name, email, created_at FROM users WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("%w: reading inserted user: %v", ErrStorage, err)
	}
	return &user, nil
}

// ListUsers returns all users rows.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	if err := s.db.SelectContext(ctx, &users,
		`SELECT id, name, email, created_at FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w: listing users: %v", ErrStorage, err)
	}
	return users, nil
}

// Ping verifies the database file is still reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: pinging sqlite: %v", ErrStorage, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
