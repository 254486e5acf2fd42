// Package peering binds channel sessions to the protocol engine: it owns the
// live stream per peer, feeds inbound frames to the engine and carries the
// engine's outbound frames back onto the wire.
package peering

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/engine"
)

// ErrNotConnected is returned when sending to a peer with no live stream.
var ErrNotConnected = errors.New("peering: peer not connected")

// Hub tracks the live stream for each connected peer and implements
// engine.Sender over them.
type Hub struct {
	mu      sync.Mutex
	streams map[channel.PeerID]channel.Stream
}

func NewHub() *Hub {
	return &Hub{streams: make(map[channel.PeerID]channel.Stream)}
}

// Send delivers one frame to the peer's live stream.
func (h *Hub) Send(peer channel.PeerID, frame []byte) error {
	h.mu.Lock()
	st, ok := h.streams[peer]
	h.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	return st.SendBytes(frame)
}

// Connected reports whether peer currently has a live stream.
func (h *Hub) Connected(peer channel.PeerID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.streams[peer]
	return ok
}

func (h *Hub) register(peer channel.PeerID, st channel.Stream) {
	h.mu.Lock()
	h.streams[peer] = st
	h.mu.Unlock()
}

func (h *Hub) unregister(peer channel.PeerID) {
	h.mu.Lock()
	delete(h.streams, peer)
	h.mu.Unlock()
}

// HandleSession runs one session to completion: it opens the message stream,
// registers the peer with the engine and pumps inbound frames until the
// stream breaks or ctx is cancelled. It blocks; callers run it in its own
// goroutine per session.
func (h *Hub) HandleSession(ctx context.Context, eng *engine.Engine, s channel.Session) {
	st, err := s.OpenStream(ctx)
	if err != nil {
		zap.L().Warn("open stream", zap.Error(err))
		_ = s.Close()
		return
	}

	peer := s.Peer().ID
	if peer == "" {
		peer = channel.TempPeerID(s.TransportKind(), s.RemoteAddr())
	}

	h.register(peer, st)
	defer func() {
		h.unregister(peer)
		_ = s.Close()
		eng.PeerDisconnected(peer)
	}()

	// Registration must precede PeerConnected so the handshake frames it
	// fires have a stream to land on.
	eng.PeerConnected(peer)

	for {
		buf, err := st.RecvBytes()
		if err != nil {
			if ctx.Err() == nil {
				zap.L().Info("session closed",
					zap.String("peer", string(peer)),
					zap.Error(err))
			}
			return
		}
		eng.HandleRaw(peer, buf)
	}
}

// Serve accepts sessions from lis until ctx is cancelled or Accept fails,
// handling each in its own goroutine.
func (h *Hub) Serve(ctx context.Context, eng *engine.Engine, lis channel.Listener) error {
	for {
		s, err := lis.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go h.HandleSession(ctx, eng, s)
	}
}

// Connect dials addr over t and runs the resulting session in its own
// goroutine. It returns once the session is established.
func (h *Hub) Connect(ctx context.Context, eng *engine.Engine, t channel.Transport, addr string, peer channel.PeerInfo) error {
	s, err := t.Dial(ctx, addr, peer)
	if err != nil {
		return err
	}
	go h.HandleSession(ctx, eng, s)
	return nil
}
