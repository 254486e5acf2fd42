package engine

import (
	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/protocol"
)

// EventKind enumerates host-visible engine events.
type EventKind int

const (
	// EventStatus carries a human-readable status line.
	EventStatus EventKind = iota
	// EventModelInfo reports a freshly cached model descriptor.
	EventModelInfo
	// EventStreamStarted reports a new live stream id.
	EventStreamStarted
	// EventVisibleToken reports one appended visible-channel chunk.
	EventVisibleToken
	// EventReasoningToken reports one appended hidden-channel chunk.
	EventReasoningToken
	// EventStreamEnded reports successful completion with final buffers.
	EventStreamEnded
	// EventStreamErrored reports stream failure with buffers so far.
	EventStreamErrored
	// EventUnknownMessage reports a tolerated unrecognized message type.
	EventUnknownMessage
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventModelInfo:
		return "model-info"
	case EventStreamStarted:
		return "stream-started"
	case EventVisibleToken:
		return "visible-token"
	case EventReasoningToken:
		return "reasoning-token"
	case EventStreamEnded:
		return "stream-ended"
	case EventStreamErrored:
		return "stream-errored"
	case EventUnknownMessage:
		return "unknown-message"
	default:
		return "unknown"
	}
}

// Event is one host-visible notification. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind EventKind
	Peer channel.PeerID

	Status     string
	Model      *protocol.ModelInfo
	StreamID   string
	Token      string
	Visible    string
	Reasoning  string
	ErrMessage string
	UnknownTag string
}

// Sink receives engine events. Implementations must return quickly and must
// not call back into the engine.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) HandleEvent(e Event) { f(e) }

func (e *Engine) emit(ev Event) {
	if e.sink == nil {
		return
	}
	e.sink.HandleEvent(ev)
}

func (e *Engine) emitStatus(peer channel.PeerID, status string) {
	e.emit(Event{Kind: EventStatus, Peer: peer, Status: status})
}
