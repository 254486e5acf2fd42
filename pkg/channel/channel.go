// Package channel abstracts the already-established peer channel the
// protocol engine runs over. Discovery, signaling and transport security are
// outside this module; implementations only move opaque frames between two
// peers that have found each other by other means.
package channel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
)

// Kind identifies the channel implementation.
type Kind int

const (
	KindUnknown Kind = iota
	KindMem
	KindQUIC
)

func (k Kind) String() string {
	switch k {
	case KindMem:
		return "mem"
	case KindQUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// PeerID is an opaque stable peer identity.
type PeerID string

// PeerInfo bundles peer identity and an addressing hint.
type PeerInfo struct {
	ID   PeerID
	Addr string
}

// TempPeerID builds a placeholder id for an inbound peer that has not yet
// introduced itself with a hello.
func TempPeerID(kind Kind, addr net.Addr) PeerID {
	if addr == nil {
		return PeerID(fmt.Sprintf("temp:%s:unknown", kind))
	}
	return PeerID(fmt.Sprintf("temp:%s:%s", kind, addr.String()))
}

// CanonicalPeerIDFromPubKey constructs a canonical peer id from public key
// bytes. The format is: pk:<alg>:<base64url-nopad(pubkey)>
func CanonicalPeerIDFromPubKey(alg string, pub []byte) PeerID {
	alg = strings.ToLower(strings.TrimSpace(alg))
	enc := base64.RawURLEncoding.EncodeToString(pub)
	return PeerID("pk:" + alg + ":" + enc)
}

// Stream is a bidirectional frame stream. Exactly one reader and one writer
// goroutine are expected.
type Stream interface {
	// SendBytes sends one opaque message frame.
	SendBytes([]byte) error
	// RecvBytes blocks for the next message frame.
	RecvBytes() ([]byte, error)
	Close() error
}

// Session is one connection to a peer carrying a single message stream.
type Session interface {
	Peer() PeerInfo
	TransportKind() Kind
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// OpenStream opens (or returns) the session's message stream.
	OpenStream(ctx context.Context) (Stream, error)

	// Close closes the entire session.
	Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
	Accept(ctx context.Context) (Session, error)
	Addr() net.Addr
	Close() error
}

// Transport dials and listens for a specific channel kind.
type Transport interface {
	Kind() Kind
	Listen(ctx context.Context, address string) (Listener, error)
	Dial(ctx context.Context, address string, peer PeerInfo) (Session, error)
}
