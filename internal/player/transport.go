package player

import "context"

// FaultClass partitions transport faults by their recovery path.
type FaultClass int

const (
	// FaultTransport is a network-class fault: recover by resuming the
	// load from the current position.
	FaultTransport FaultClass = iota

	// FaultDecode is a media-class fault: recover the decoder in place
	// without re-fetching the network resource.
	FaultDecode

	// FaultOther is unrecoverable: tear down and require a full
	// reinitialization.
	FaultOther
)

func (c FaultClass) String() string {
	switch c {
	case FaultTransport:
		return "transport"
	case FaultDecode:
		return "decode"
	default:
		return "other"
	}
}

// Fault is a transport-reported failure. Non-fatal faults are logged
// only and cause no state transition.
type Fault struct {
	Class FaultClass
	Fatal bool
	Err   error
}

// TransportEventKind enumerates the events a transport reports.
type TransportEventKind int

const (
	// ManifestParsed means the stream manifest was fetched and parsed;
	// media is ready to play.
	ManifestParsed TransportEventKind = iota

	// FaultOccurred carries a Fault.
	FaultOccurred
)

// TransportEvent is one occurrence on the transport's event stream.
type TransportEvent struct {
	Kind  TransportEventKind
	Fault Fault
}

// Transport is the audio transport collaborator owned by the player:
// an adaptive-bitrate stream reader or a platform-native source.
type Transport interface {
	// Attach begins loading the stream. Completion is signalled by a
	// ManifestParsed event, failure by a fault event.
	Attach(ctx context.Context) error

	// Play starts audio. The returned error models an asynchronous
	// start rejection (e.g. the platform refuses unmuted autoplay).
	Play(ctx context.Context) error

	// Pause stops audio without detaching.
	Pause()

	// StartLoad resumes network loading after a transport-class fault.
	StartLoad()

	// RecoverMedia attempts in-place decoder recovery after a
	// decode-class fault.
	RecoverMedia()

	// Destroy tears the transport down. Play requires a new Attach
	// afterwards.
	Destroy()

	// Events exposes the transport's event stream. The channel closes
	// on Destroy.
	Events() <-chan TransportEvent
}
