package engine

import (
	"fmt"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
)

// ProtocolErrorKind classifies local protocol-state violations.
type ProtocolErrorKind string

const (
	// ProtocolNotNegotiated: the action requires a completed handshake.
	ProtocolNotNegotiated ProtocolErrorKind = "not-negotiated"
	// ProtocolIncompatible: the peer rejected our protocol version.
	ProtocolIncompatible ProtocolErrorKind = "incompatible"
)

// ProtocolError rejects an action attempted outside the required negotiation
// state. It is raised locally and never sent to the peer.
type ProtocolError struct {
	Kind ProtocolErrorKind
	Peer channel.PeerID
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s (peer %s)", e.Kind, e.Peer)
}

// SendError wraps a channel send failure. The attempted message is
// considered undelivered; the engine stays usable.
type SendError struct {
	Peer channel.PeerID
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Peer, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
