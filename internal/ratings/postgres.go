package ratings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryTimeout bounds each query so a slow backend fails the request
// instead of blocking it indefinitely.
const queryTimeout = 5 * time.Second

// PostgresStore is the networked store for multi-process deployments.
// Every call acquires a pooled connection and releases it on all exit
// paths; concurrent upserts for the same pair are resolved by the
// database's ON CONFLICT atomicity, not application locking.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS song_ratings (
		id SERIAL PRIMARY KEY,
		song_id TEXT NOT NULL,
		user_session TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating IN (1, -1)),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(song_id, user_session)
	)`,
}

// OpenPostgres creates a connection pool for databaseURL, verifies the
// connection, and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string, logger *log.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	config.MaxConns = 20
	config.MaxConnIdleTime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// acquire checks a connection out of the pool with the query timeout
// applied. Pool exhaustion fails the individual request.
func (s *PostgresStore) acquire(ctx context.Context) (*pgxpool.Conn, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		cancel()
		s.logger.Error("connection acquire failed", "err", err)
		return nil, nil, nil, fmt.Errorf("%w: acquiring connection: %v", ErrStorage, err)
	}
	return conn, ctx, cancel, nil
}

// queryFailed logs the failure with query context but no parameter
// values, then wraps it as a storage error.
func (s *PostgresStore) queryFailed(op, query string, err error) error {
	s.logger.Error("query failed", "op", op, "query", query, "err", err)
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// SubmitRating upserts a vote via a single conditional write on the
// (song_id, user_session) unique constraint.
func (s *PostgresStore) SubmitRating(ctx context.Context, songID, userSession string, value int) error {
	if err := validateRating(songID, userSession, value); err != nil {
		return err
	}

	conn, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Release()

	query := `
		INSERT INTO song_ratings (song_id, user_session, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (song_id, user_session) DO UPDATE SET rating = $3
	`
	if _, err := conn.Exec(ctx, query, songID, userSession, value); err != nil {
		return s.queryFailed("upserting rating", "song_ratings upsert", err)
	}
	return nil
}

// Aggregate returns the vote summary for a track.
func (s *PostgresStore) Aggregate(ctx context.Context, songID string) (Aggregate, error) {
	conn, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return Aggregate{}, err
	}
	defer cancel()
	defer conn.Release()

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN rating = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN rating = -1 THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM song_ratings WHERE song_id = $1
	`
	var agg Aggregate
	if err := conn.QueryRow(ctx, query, songID).Scan(&agg.ThumbsUp, &agg.ThumbsDown, &agg.Total); err != nil {
		return Aggregate{}, s.queryFailed("aggregating ratings", "song_ratings aggregate", err)
	}
	return agg, nil
}

// ListenerVote returns the listener's stored vote, if any.
func (s *PostgresStore) ListenerVote(ctx context.Context, songID, userSession string) (int, bool, error) {
	conn, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return 0, false, err
	}
	defer cancel()
	defer conn.Release()

	query := `SELECT rating FROM song_ratings WHERE song_id = $1 AND user_session = $2`

	var vote int
	err = conn.QueryRow(ctx, query, songID, userSession).Scan(&vote)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, s.queryFailed("querying listener vote", "song_ratings lookup", err)
	}
	return vote, true, nil
}

// CreateUser inserts a users row and returns it.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email string) (*User, error) {
	if err := validateUser(name, email); err != nil {
		return nil, err
	}

	conn, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer conn.Release()

	query := `
		INSERT INTO users (name, email)
		VALUES ($1, $2)
		RETURNING id, name, email, created_at
	`
	var user User
	err = conn.QueryRow(ctx, query, name, email).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, s.queryFailed("inserting user", "users insert", err)
	}
	return &user, nil
}

// ListUsers returns all users rows.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	conn, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT id, name, email, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, s.queryFailed("listing users", "users list", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt); err != nil {
			return nil, s.queryFailed("scanning user", "users list", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryFailed("reading users", "users list", err)
	}
	return users, nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: pinging postgres: %v", ErrStorage, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
