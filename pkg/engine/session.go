package engine

import (
	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/protocol"
)

// NegotiationState tracks the per-peer handshake.
type NegotiationState int

const (
	NegotiationInit NegotiationState = iota
	NegotiationNegotiating
	NegotiationCompatible
	NegotiationIncompatible
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationInit:
		return "init"
	case NegotiationNegotiating:
		return "negotiating"
	case NegotiationCompatible:
		return "compatible"
	case NegotiationIncompatible:
		return "incompatible"
	default:
		return "unknown"
	}
}

// peerSession is the engine-owned state for one connected peer. It is never
// shared mutably with the host; hosts observe it through events and
// snapshots.
type peerSession struct {
	id channel.PeerID

	negotiation           NegotiationState
	remoteProtocolVersion string
	incompatibleReason    string

	model          *protocol.ModelInfo
	modelRequested bool

	stream streamState
}

// Negotiation returns the current handshake state for peer.
func (e *Engine) Negotiation(peer channel.PeerID) (NegotiationState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[peer]
	if !ok {
		return NegotiationInit, false
	}
	return s.negotiation, true
}

// Model returns a copy of the cached model descriptor for peer.
func (e *Engine) Model(peer channel.PeerID) (protocol.ModelInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[peer]
	if !ok || s.model == nil {
		return protocol.ModelInfo{}, false
	}
	return *s.model, true
}

// StreamSnapshot is a read-only copy of a peer's stream state.
type StreamSnapshot struct {
	ActiveID   string
	Status     StreamStatus
	Visible    string
	Reasoning  string
	ErrMessage string
}

// Stream returns a snapshot of the peer's stream state.
func (e *Engine) Stream(peer channel.PeerID) (StreamSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[peer]
	if !ok {
		return StreamSnapshot{}, false
	}
	return StreamSnapshot{
		ActiveID:   s.stream.activeID,
		Status:     s.stream.status,
		Visible:    s.stream.visible.String(),
		Reasoning:  s.stream.reasoning.String(),
		ErrMessage: s.stream.errMsg,
	}, true
}
