// Package player owns the playback session: an explicit state machine
// over an audio transport, with differentiated fault recovery.
package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// State is the playback session state.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Paused
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "faulted"
	}
}

// Event drives the transition function.
type Event struct {
	Kind  EventKind
	Fault Fault
}

// EventKind enumerates transition inputs.
type EventKind int

const (
	EventAttach EventKind = iota
	EventManifestParsed
	EventPlayStarted
	EventPauseRequested
	EventFault
)

// Action is what the player must execute after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionStartSync
	ActionStopSync
	ActionStartLoad
	ActionRecoverMedia
	ActionTeardown
)

// Transition is the pure state-machine core: no transport, no clock, no
// I/O. Unknown combinations keep the current state.
func Transition(state State, ev Event) (State, Action) {
	switch ev.Kind {
	case EventAttach:
		if state == Idle {
			return Loading, ActionNone
		}

	case EventManifestParsed:
		if state == Loading {
			return Ready, ActionNone
		}

	case EventPlayStarted:
		if state == Ready || state == Paused {
			return Playing, ActionStartSync
		}

	case EventPauseRequested:
		if state == Playing {
			return Paused, ActionStopSync
		}

	case EventFault:
		if !ev.Fault.Fatal {
			return state, ActionNone
		}
		if state != Loading && state != Ready && state != Playing {
			return state, ActionNone
		}
		switch ev.Fault.Class {
		case FaultTransport:
			return Loading, ActionStartLoad
		case FaultDecode:
			return Ready, ActionRecoverMedia
		default:
			return Faulted, ActionTeardown
		}
	}
	return state, ActionNone
}

// SyncController is the metadata loop as seen by the player.
type SyncController interface {
	Start()
	Stop()
}

// Player executes the state machine against a real transport.
type Player struct {
	transport Transport
	sync      SyncController
	logger    *log.Logger

	mu     sync.Mutex
	state  State
	status string
	// resume records that playback was interrupted by a recoverable
	// fault and should restart without user interaction.
	resume bool
}

// New creates a Player in the Idle state.
func New(transport Transport, syncLoop SyncController, logger *log.Logger) *Player {
	return &Player{
		transport: transport,
		sync:      syncLoop,
		logger:    logger,
		state:     Idle,
		status:    "Idle",
	}
}

// State returns the current session state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns the user-visible status line.
func (p *Player) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Player) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Start attaches the transport and begins consuming its events. It
// returns once the attach is issued; readiness arrives as an event.
func (p *Player) Start(ctx context.Context) error {
	p.apply(Event{Kind: EventAttach})
	p.setStatus("Loading stream...")

	if err := p.transport.Attach(ctx); err != nil {
		return fmt.Errorf("attaching transport: %w", err)
	}

	go p.consumeEvents(ctx)
	return nil
}

// Toggle is the single user-facing control: play when stopped, pause
// when playing.
func (p *Player) Toggle(ctx context.Context) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	switch state {
	case Playing:
		p.transport.Pause()
		p.apply(Event{Kind: EventPauseRequested})
		p.setStatus("Stream paused")
		return nil

	case Ready, Paused:
		if err := p.transport.Play(ctx); err != nil {
			// Rejected start: stay where we are, no metadata loop.
			p.setStatus("Error playing stream")
			return fmt.Errorf("starting playback: %w", err)
		}
		p.apply(Event{Kind: EventPlayStarted})
		p.setStatus("Playing live stream...")
		return nil

	default:
		return fmt.Errorf("cannot play from state %s", state)
	}
}

// consumeEvents drains the transport event stream until it closes or
// the context ends.
func (p *Player) consumeEvents(ctx context.Context) {
	events := p.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handleTransportEvent(ctx, ev)
		}
	}
}

func (p *Player) handleTransportEvent(ctx context.Context, ev TransportEvent) {
	switch ev.Kind {
	case ManifestParsed:
		wasRecovering := p.apply(Event{Kind: EventManifestParsed})
		p.setStatus("Stream loaded and ready")
		if wasRecovering {
			p.resumePlayback(ctx)
		}

	case FaultOccurred:
		p.handleFault(ctx, ev.Fault)
	}
}

func (p *Player) handleFault(ctx context.Context, fault Fault) {
	if !fault.Fatal {
		p.logger.Warn("non-fatal transport fault", "class", fault.Class, "err", fault.Err)
		return
	}

	p.logger.Error("fatal transport fault", "class", fault.Class, "err", fault.Err)

	p.mu.Lock()
	interrupted := p.state == Playing
	p.mu.Unlock()

	_, action := p.transitionLocked(Event{Kind: EventFault, Fault: fault})

	switch action {
	case ActionStartLoad:
		if interrupted {
			p.setResume(true)
			p.sync.Stop()
		}
		p.setStatus("Network error - retrying...")
		p.transport.StartLoad()

	case ActionRecoverMedia:
		p.setStatus("Media error - attempting recovery...")
		p.transport.RecoverMedia()
		if interrupted {
			p.sync.Stop()
			p.resumePlayback(ctx)
		}

	case ActionTeardown:
		p.setStatus("Fatal error occurred")
		p.sync.Stop()
		p.transport.Destroy()
	}
}

// resumePlayback restarts audio after a recoverable fault, without user
// interaction. A rejected restart leaves the state at Ready.
func (p *Player) resumePlayback(ctx context.Context) {
	p.setResume(false)
	if err := p.transport.Play(ctx); err != nil {
		p.logger.Error("resume after recovery failed", "err", err)
		p.setStatus("Error playing stream")
		return
	}
	p.apply(Event{Kind: EventPlayStarted})
	p.setStatus("Playing live stream...")
}

func (p *Player) setResume(v bool) {
	p.mu.Lock()
	p.resume = v
	p.mu.Unlock()
}

// apply runs the transition function and executes sync-loop actions.
// It reports whether a fault-interrupted playback is pending resume.
func (p *Player) apply(ev Event) bool {
	_, action := p.transitionLocked(ev)

	switch action {
	case ActionStartSync:
		p.sync.Start()
	case ActionStopSync:
		p.sync.Stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resume
}

func (p *Player) transitionLocked(ev Event) (State, Action) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, action := Transition(p.state, ev)
	if next != p.state {
		p.logger.Debug("state transition", "from", p.state, "to", next)
		p.state = next
	}
	return next, action
}
