package player

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
)

// HLSTransport reads a live HLS stream: it fetches the media playlist,
// then pulls new segments on the target-duration cadence. It is a
// stream reader, not a decoder; segment bytes are drained and dropped.
type HLSTransport struct {
	playlistURL string
	client      *resty.Client
	logger      *log.Logger
	events      chan TransportEvent

	mu        sync.Mutex
	playlist  *mediaPlaylist
	seen      map[string]bool
	cancel    context.CancelFunc
	loopGen   int
	destroyed bool
}

const defaultTargetDuration = 6 * time.Second

// mediaPlaylist is the parsed state of one playlist fetch.
type mediaPlaylist struct {
	targetDuration time.Duration
	segments       []string
}

// NewHLSTransport creates a transport for the given media playlist URL.
func NewHLSTransport(playlistURL string, logger *log.Logger) *HLSTransport {
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetHeader("User-Agent", "radio-calico-client/1.0")

	return &HLSTransport{
		playlistURL: playlistURL,
		client:      client,
		logger:      logger,
		events:      make(chan TransportEvent, 16),
		seen:        make(map[string]bool),
	}
}

// Attach starts the initial playlist load. The result arrives on the
// event stream as ManifestParsed or a fault.
func (t *HLSTransport) Attach(ctx context.Context) error {
	if _, err := url.ParseRequestURI(t.playlistURL); err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}
	go t.loadManifest(ctx)
	return nil
}

// loadManifest fetches and parses the playlist, emitting the outcome.
func (t *HLSTransport) loadManifest(ctx context.Context) {
	resp, err := t.client.R().SetContext(ctx).Get(t.playlistURL)
	if err != nil {
		t.emit(TransportEvent{Kind: FaultOccurred, Fault: Fault{
			Class: FaultTransport, Fatal: true, Err: err,
		}})
		return
	}
	if resp.IsError() {
		t.emit(TransportEvent{Kind: FaultOccurred, Fault: Fault{
			Class: FaultTransport, Fatal: true,
			Err: fmt.Errorf("playlist fetch returned %s", resp.Status()),
		}})
		return
	}

	playlist, err := parsePlaylist(t.playlistURL, string(resp.Body()))
	if err != nil {
		t.emit(TransportEvent{Kind: FaultOccurred, Fault: Fault{
			Class: FaultDecode, Fatal: true, Err: err,
		}})
		return
	}

	t.mu.Lock()
	t.playlist = playlist
	t.mu.Unlock()

	t.emit(TransportEvent{Kind: ManifestParsed})
}

// Play starts the segment pull loop. It rejects when no playlist has
// been loaded yet.
func (t *HLSTransport) Play(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return fmt.Errorf("transport destroyed")
	}
	if t.playlist == nil {
		return fmt.Errorf("stream not loaded")
	}
	if t.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.loopGen++
	go t.segmentLoop(loopCtx, t.loopGen)
	return nil
}

// Pause stops the segment loop without detaching.
func (t *HLSTransport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// StartLoad resumes loading from the current position after a
// transport-class fault.
func (t *HLSTransport) StartLoad() {
	go t.loadManifest(context.Background())
}

// RecoverMedia resets decoder-side state in place; the playlist and
// network position are kept.
func (t *HLSTransport) RecoverMedia() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]bool)
}

// Destroy tears the transport down and closes the event stream.
func (t *HLSTransport) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.destroyed = true
	close(t.events)
}

// Events exposes the transport event stream.
func (t *HLSTransport) Events() <-chan TransportEvent {
	return t.events
}

// loopExited releases the cancel slot after a loop dies on its own,
// so a later Play can start a fresh loop. Pause and Destroy clear the
// slot themselves, and a newer generation owns its own slot.
func (t *HLSTransport) loopExited(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loopGen != gen || t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil
}

// segmentLoop refreshes the playlist on the target-duration cadence and
// drains each new segment.
func (t *HLSTransport) segmentLoop(ctx context.Context, gen int) {
	defer t.loopExited(gen)

	t.mu.Lock()
	interval := t.playlist.targetDuration
	t.mu.Unlock()

	t.pullNewSegments(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := t.client.R().SetContext(ctx).Get(t.playlistURL)
			if err != nil || resp.IsError() {
				if ctx.Err() != nil {
					return
				}
				if err == nil {
					err = fmt.Errorf("playlist refresh returned %s", resp.Status())
				}
				// Free the slot before the fault is visible, so a
				// recovery Play can never observe the dead loop.
				t.loopExited(gen)
				t.emit(TransportEvent{Kind: FaultOccurred, Fault: Fault{
					Class: FaultTransport, Fatal: true, Err: err,
				}})
				return
			}

			playlist, perr := parsePlaylist(t.playlistURL, string(resp.Body()))
			if perr != nil {
				t.loopExited(gen)
				t.emit(TransportEvent{Kind: FaultOccurred, Fault: Fault{
					Class: FaultDecode, Fatal: true, Err: perr,
				}})
				return
			}

			t.mu.Lock()
			t.playlist = playlist
			t.mu.Unlock()

			t.pullNewSegments(ctx)
		}
	}
}

// pullNewSegments drains segments not seen before. A single failed
// segment is a non-fatal fault; the stream continues.
func (t *HLSTransport) pullNewSegments(ctx context.Context) {
	t.mu.Lock()
	segments := append([]string(nil), t.playlist.segments...)
	t.mu.Unlock()

	for _, seg := range segments {
		t.mu.Lock()
		done := t.seen[seg]
		if !done {
			t.seen[seg] = true
		}
		t.mu.Unlock()
		if done {
			continue
		}

		resp, err := t.client.R().SetContext(ctx).Get(seg)
		if err != nil || resp.IsError() {
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = fmt.Errorf("segment fetch returned %s", resp.Status())
			}
			t.emit(TransportEvent{Kind: FaultOccurred, Fault: Fault{
				Class: FaultTransport, Fatal: false, Err: err,
			}})
		}
	}
}

// emit delivers an event, dropping it when the buffer is full or the
// transport is destroyed.
func (t *HLSTransport) emit(ev TransportEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	select {
	case t.events <- ev:
	default:
		t.logger.Warn("event buffer full, dropping", "kind", ev.Kind)
	}
}

// parsePlaylist reads an HLS media playlist, resolving segment URIs
// against the playlist URL.
func parsePlaylist(base, body string) (*mediaPlaylist, error) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "#EXTM3U" {
		return nil, fmt.Errorf("not an HLS playlist")
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing playlist URL: %w", err)
	}

	playlist := &mediaPlaylist{targetDuration: defaultTargetDuration}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			value := strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")
			secs, err := strconv.Atoi(value)
			if err != nil || secs <= 0 {
				return nil, fmt.Errorf("bad target duration %q", value)
			}
			playlist.targetDuration = time.Duration(secs) * time.Second

		case line == "" || strings.HasPrefix(line, "#"):
			// tags and comments we do not interpret

		default:
			ref, err := url.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("bad segment URI %q", line)
			}
			playlist.segments = append(playlist.segments, baseURL.ResolveReference(ref).String())
		}
	}

	if len(playlist.segments) == 0 {
		return nil, fmt.Errorf("playlist has no segments")
	}
	return playlist, nil
}
