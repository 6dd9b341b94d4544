package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/shaynemeyer/radio-calico/internal/apiclient"
	"github.com/shaynemeyer/radio-calico/internal/track"
)

// DefaultInterval is the polling cadence for the metadata endpoint.
const DefaultInterval = 30 * time.Second

// Fetcher yields now-playing snapshots. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context) (*track.Snapshot, error)
}

// RatingSource supplies the two halves of a rating-panel refresh.
// *apiclient.Client implements it.
type RatingSource interface {
	Aggregate(ctx context.Context, songID string) (*apiclient.Summary, error)
	UserRating(ctx context.Context, songID string) (int, bool, error)
}

// Display receives the loop's output. Implementations must tolerate
// calls from the loop's goroutines.
type Display interface {
	// ShowTrack replaces the current-track and recent-tracks panels.
	ShowTrack(snap *track.Snapshot)

	// ShowTrackError marks the track panels as failed to load. The
	// rating panel keeps its previous state.
	ShowTrackError()

	// ShowRatingPanel makes the rating panel visible with the aggregate
	// counts and the listener's own vote (hasVote false when absent).
	ShowRatingPanel(summary *apiclient.Summary, vote int, hasVote bool)
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		l.interval = d
	}
}

// Loop polls the metadata endpoint, detects track transitions, and
// refreshes the rating panel on each transition.
type Loop struct {
	fetcher  Fetcher
	ratings  RatingSource
	display  Display
	logger   *log.Logger
	interval time.Duration

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	currentKey string
}

// NewLoop creates a sync loop. It does nothing until Start is called.
func NewLoop(fetcher Fetcher, ratings RatingSource, display Display, logger *log.Logger, opts ...Option) *Loop {
	l := &Loop{
		fetcher:  fetcher,
		ratings:  ratings,
		display:  display,
		logger:   logger,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start performs one immediate poll and schedules recurring polls.
// Calling Start while running is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop cancels the recurring polls. A poll already in flight completes
// but its results are discarded.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	l.cancel()
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context) {
	l.poll(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.poll(ctx)
		}
	}
}

// poll fetches one snapshot. A fetch failure degrades the track display
// and leaves the schedule untouched.
func (l *Loop) poll(ctx context.Context) {
	snap, err := l.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("metadata fetch failed", "err", err)
		l.display.ShowTrackError()
		return
	}

	if ctx.Err() != nil {
		// Stop raced the fetch; discard the result.
		return
	}

	l.display.ShowTrack(snap)

	key := snap.Key()
	l.mu.Lock()
	changed := key != l.currentKey
	if changed {
		l.currentKey = key
	}
	l.mu.Unlock()

	if changed {
		go l.refresh(ctx, key)
	}
}

// refresh pulls the aggregate and the listener's own vote in parallel.
// Both must succeed and the refresh tag must still match the current
// track key, otherwise the previous panel state is left untouched;
// a stale in-flight refresh can never overwrite a newer one.
func (l *Loop) refresh(ctx context.Context, key string) {
	var (
		summary *apiclient.Summary
		vote    int
		hasVote bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = l.ratings.Aggregate(gctx, key)
		return err
	})
	g.Go(func() error {
		var err error
		vote, hasVote, err = l.ratings.UserRating(gctx, key)
		return err
	})

	if err := g.Wait(); err != nil {
		l.logger.Warn("rating refresh failed", "err", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running || key != l.currentKey {
		return
	}
	l.display.ShowRatingPanel(summary, vote, hasVote)
}
