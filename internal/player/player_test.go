package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestTransition(t *testing.T) {
	fatal := func(class FaultClass) Event {
		return Event{Kind: EventFault, Fault: Fault{Class: class, Fatal: true}}
	}

	tests := []struct {
		name       string
		state      State
		event      Event
		wantState  State
		wantAction Action
	}{
		{"attach from idle", Idle, Event{Kind: EventAttach}, Loading, ActionNone},
		{"attach ignored while playing", Playing, Event{Kind: EventAttach}, Playing, ActionNone},
		{"manifest completes loading", Loading, Event{Kind: EventManifestParsed}, Ready, ActionNone},
		{"manifest ignored when ready", Ready, Event{Kind: EventManifestParsed}, Ready, ActionNone},
		{"play from ready starts sync", Ready, Event{Kind: EventPlayStarted}, Playing, ActionStartSync},
		{"play from paused starts sync", Paused, Event{Kind: EventPlayStarted}, Playing, ActionStartSync},
		{"pause stops sync", Playing, Event{Kind: EventPauseRequested}, Paused, ActionStopSync},
		{"pause ignored when ready", Ready, Event{Kind: EventPauseRequested}, Ready, ActionNone},

		{"network fault resumes load", Playing, fatal(FaultTransport), Loading, ActionStartLoad},
		{"network fault while loading", Loading, fatal(FaultTransport), Loading, ActionStartLoad},
		{"media fault recovers in place", Playing, fatal(FaultDecode), Ready, ActionRecoverMedia},
		{"other fault tears down", Playing, fatal(FaultOther), Faulted, ActionTeardown},
		{"fault ignored when idle", Idle, fatal(FaultOther), Idle, ActionNone},
		{"fault ignored when paused", Paused, fatal(FaultTransport), Paused, ActionNone},
		{
			"non-fatal fault is a no-op",
			Playing,
			Event{Kind: EventFault, Fault: Fault{Class: FaultTransport, Fatal: false}},
			Playing, ActionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, action := Transition(tt.state, tt.event)
			if state != tt.wantState || action != tt.wantAction {
				t.Errorf("Transition(%v, %+v) = (%v, %v), want (%v, %v)",
					tt.state, tt.event, state, action, tt.wantState, tt.wantAction)
			}
		})
	}
}

// fakeTransport scripts transport behavior and records calls.
type fakeTransport struct {
	mu           sync.Mutex
	events       chan TransportEvent
	playErr      error
	playCalls    int
	pauseCalls   int
	startLoads   int
	recoveries   int
	destroyCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 16)}
}

func (f *fakeTransport) Attach(ctx context.Context) error { return nil }

func (f *fakeTransport) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls++
	return f.playErr
}

func (f *fakeTransport) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
}

func (f *fakeTransport) StartLoad() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startLoads++
}

func (f *fakeTransport) RecoverMedia() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recoveries++
}

func (f *fakeTransport) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
}

func (f *fakeTransport) Events() <-chan TransportEvent { return f.events }

func (f *fakeTransport) counts() (plays, pauses, loads, recoveries, destroys int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCalls, f.pauseCalls, f.startLoads, f.recoveries, f.destroyCalls
}

// fakeSync counts start/stop calls.
type fakeSync struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeSync) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
}

func (f *fakeSync) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSync) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func waitForState(t *testing.T, p *Player, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", p.State(), want)
}

// startedPlayer brings a player to Playing over a fake transport.
func startedPlayer(t *testing.T) (*Player, *fakeTransport, *fakeSync) {
	t.Helper()

	transport := newFakeTransport()
	syncLoop := &fakeSync{}
	p := New(transport, syncLoop, log.New(io.Discard))

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	transport.events <- TransportEvent{Kind: ManifestParsed}
	waitForState(t, p, Ready)

	if err := p.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle to play: %v", err)
	}
	waitForState(t, p, Playing)
	return p, transport, syncLoop
}

func TestPlayStartsSyncLoop(t *testing.T) {
	p, _, syncLoop := startedPlayer(t)

	starts, stops := syncLoop.counts()
	if starts != 1 || stops != 0 {
		t.Errorf("sync calls = (%d starts, %d stops), want (1, 0)", starts, stops)
	}

	if err := p.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle to pause: %v", err)
	}
	waitForState(t, p, Paused)

	starts, stops = syncLoop.counts()
	if stops != 1 {
		t.Errorf("sync stops = %d after pause, want 1", stops)
	}
}

func TestPlayRejectionStaysReady(t *testing.T) {
	transport := newFakeTransport()
	transport.playErr = errors.New("autoplay blocked")
	syncLoop := &fakeSync{}
	p := New(transport, syncLoop, log.New(io.Discard))

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	transport.events <- TransportEvent{Kind: ManifestParsed}
	waitForState(t, p, Ready)

	if err := p.Toggle(context.Background()); err == nil {
		t.Fatal("Toggle succeeded despite rejected playback start")
	}

	if p.State() != Ready {
		t.Errorf("state = %v, want Ready after rejection", p.State())
	}
	if starts, _ := syncLoop.counts(); starts != 0 {
		t.Errorf("sync started %d times after rejected play", starts)
	}
	if p.Status() != "Error playing stream" {
		t.Errorf("status = %q", p.Status())
	}
}

func TestNetworkFaultRecoversToPlaying(t *testing.T) {
	p, transport, _ := startedPlayer(t)

	transport.events <- TransportEvent{Kind: FaultOccurred, Fault: Fault{
		Class: FaultTransport, Fatal: true, Err: errors.New("segment timeout"),
	}}
	waitForState(t, p, Loading)

	if _, _, loads, _, _ := transport.counts(); loads != 1 {
		t.Errorf("StartLoad calls = %d, want 1", loads)
	}

	// The transport re-parses the manifest; playback must resume with
	// no user interaction.
	transport.events <- TransportEvent{Kind: ManifestParsed}
	waitForState(t, p, Playing)

	if plays, _, _, _, _ := transport.counts(); plays != 2 {
		t.Errorf("Play calls = %d, want 2 (user + auto-resume)", plays)
	}
}

func TestMediaFaultRecoversInPlace(t *testing.T) {
	p, transport, _ := startedPlayer(t)

	transport.events <- TransportEvent{Kind: FaultOccurred, Fault: Fault{
		Class: FaultDecode, Fatal: true, Err: errors.New("buffer stall"),
	}}
	waitForState(t, p, Playing)

	_, _, loads, recoveries, _ := transport.counts()
	if recoveries != 1 {
		t.Errorf("RecoverMedia calls = %d, want 1", recoveries)
	}
	if loads != 0 {
		t.Errorf("StartLoad calls = %d, want 0 for a media fault", loads)
	}
}

func TestUnrecoverableFaultTearsDown(t *testing.T) {
	p, transport, syncLoop := startedPlayer(t)

	transport.events <- TransportEvent{Kind: FaultOccurred, Fault: Fault{
		Class: FaultOther, Fatal: true, Err: errors.New("incompatible stream"),
	}}
	waitForState(t, p, Faulted)

	if _, _, _, _, destroys := transport.counts(); destroys != 1 {
		t.Errorf("Destroy calls = %d, want 1", destroys)
	}
	if _, stops := syncLoop.counts(); stops != 1 {
		t.Errorf("sync stops = %d, want 1", stops)
	}
	if p.Status() != "Fatal error occurred" {
		t.Errorf("status = %q", p.Status())
	}

	// Terminal: play is refused until a full reinitialization.
	if err := p.Toggle(context.Background()); err == nil {
		t.Error("Toggle succeeded from Faulted state")
	}
}

func TestNonFatalFaultIsLoggedOnly(t *testing.T) {
	p, transport, _ := startedPlayer(t)

	transport.events <- TransportEvent{Kind: FaultOccurred, Fault: Fault{
		Class: FaultTransport, Fatal: false, Err: errors.New("one segment 404"),
	}}

	time.Sleep(50 * time.Millisecond)
	if p.State() != Playing {
		t.Errorf("state = %v, want Playing after non-fatal fault", p.State())
	}
}
