// Package engine implements the peer-link session protocol: version
// negotiation, model discovery, prompt submission and token-stream
// reassembly over an already-established message channel.
//
// The engine is event-driven and processes each channel event to completion
// before the next; all entry points serialize on one mutex and never block.
// Event sinks are invoked during processing and must not call back into the
// engine.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/peers"
	"github.com/navedmerchant/mydeviceai-link/pkg/protocol"
)

// Sender delivers one opaque frame to a peer. It either succeeds or fails
// immediately; the engine never retries.
type Sender interface {
	Send(peer channel.PeerID, frame []byte) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(peer channel.PeerID, frame []byte) error

func (f SenderFunc) Send(peer channel.PeerID, frame []byte) error { return f(peer, frame) }

// ErrUnknownPeer is returned for operations on a peer with no live session.
var ErrUnknownPeer = errors.New("engine: unknown peer")

// Options configures the local side of the protocol.
type Options struct {
	ClientID             string
	Impl                 string
	Version              string
	ProtocolVersion      string
	MinCompatibleVersion string
}

func (o Options) withDefaults() Options {
	res := o
	if res.Impl == "" {
		res.Impl = "mydeviceai-link"
	}
	if res.ProtocolVersion == "" {
		res.ProtocolVersion = "1.0.0"
	}
	if res.MinCompatibleVersion == "" {
		res.MinCompatibleVersion = res.ProtocolVersion
	}
	return res
}

// Engine owns one peerSession per connected peer. Sessions are created on
// connect and discarded on disconnect; nothing survives a reconnect.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	sender   Sender
	sink     Sink
	store    *peers.Store // optional
	sessions map[channel.PeerID]*peerSession
}

// New builds an engine. sink and store may be nil.
func New(opts Options, sender Sender, sink Sink, store *peers.Store) *Engine {
	return &Engine{
		opts:     opts.withDefaults(),
		sender:   sender,
		sink:     sink,
		store:    store,
		sessions: make(map[channel.PeerID]*peerSession),
	}
}

// PeerConnected creates the peer session and fires the handshake: a hello
// followed by a version_negotiate. Both sends are fire-and-forget; a send
// failure is reported locally and does not block the transition to
// Negotiating.
func (e *Engine) PeerConnected(peer channel.PeerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &peerSession{id: peer}
	e.sessions[peer] = s
	if e.store != nil {
		e.store.Touch(peer, time.Now())
	}
	e.emitStatus(peer, "connected")

	_ = e.send(peer, protocol.Hello{ClientID: e.opts.ClientID, Impl: e.opts.Impl, Version: e.opts.Version})
	_ = e.send(peer, protocol.VersionNegotiate{
		ProtocolVersion:      e.opts.ProtocolVersion,
		MinCompatibleVersion: e.opts.MinCompatibleVersion,
	})
	s.negotiation = NegotiationNegotiating
	e.recordNegotiation(s)
	e.emitStatus(peer, "negotiating protocol version")
}

// PeerDisconnected discards the peer session and all stream state. The
// stored peer record is left to age out on its own TTL.
func (e *Engine) PeerDisconnected(peer channel.PeerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[peer]; !ok {
		return
	}
	delete(e.sessions, peer)
	e.emitStatus(peer, "disconnected")
}

// HandleRaw decodes one raw channel payload and dispatches it. Malformed
// payloads and messages for unknown peers are dropped and logged, never
// raised as errors.
func (e *Engine) HandleRaw(peer channel.PeerID, raw any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[peer]
	if !ok {
		zap.L().Debug("message for unknown peer dropped", zap.String("peer", string(peer)))
		return
	}
	m, err := protocol.Decode(raw)
	if err != nil {
		zap.L().Warn("payload dropped", zap.String("peer", string(peer)), zap.Error(err))
		return
	}
	if e.store != nil {
		e.store.RecordExchange(peer, rawLen(raw), 0, 1, 0)
	}

	switch m := m.(type) {
	case protocol.Hello:
		// Informational only; either side may say hello at any time.
		zap.L().Info("peer hello",
			zap.String("peer", string(peer)),
			zap.String("client_id", m.ClientID),
			zap.String("impl", m.Impl),
			zap.String("version", m.Version))
		if e.store != nil {
			e.store.SetHello(peer, m.ClientID, m.Impl, m.Version)
		}
	case protocol.VersionAck:
		e.handleVersionAck(s, m)
	case protocol.ModelInfo:
		s.model = &m
		if e.store != nil {
			e.store.SetModel(peer, m.ID, m.DisplayName, m.Installed)
		}
		e.emit(Event{Kind: EventModelInfo, Peer: peer, Model: &m})
	case protocol.Start:
		if m.ID == "" {
			zap.L().Warn("start without id ignored", zap.String("peer", string(peer)))
			return
		}
		if s.stream.activeID != "" && s.stream.activeID != m.ID {
			zap.L().Info("stream superseded",
				zap.String("peer", string(peer)),
				zap.String("old_id", s.stream.activeID),
				zap.String("new_id", m.ID))
		}
		s.stream.start(m.ID)
		e.emit(Event{Kind: EventStreamStarted, Peer: peer, StreamID: m.ID})
	case protocol.Token:
		if !s.stream.appendVisible(m.ID, m.Tok) {
			e.logStaleStream(peer, s, "token", m.ID)
			return
		}
		e.emit(Event{Kind: EventVisibleToken, Peer: peer, StreamID: m.ID, Token: m.Tok})
	case protocol.ReasoningToken:
		if !s.stream.appendReasoning(m.ID, m.Tok) {
			e.logStaleStream(peer, s, "reasoning_token", m.ID)
			return
		}
		e.emit(Event{Kind: EventReasoningToken, Peer: peer, StreamID: m.ID, Token: m.Tok})
	case protocol.End:
		if !s.stream.end(m.ID) {
			e.logStaleStream(peer, s, "end", m.ID)
			return
		}
		e.emit(Event{
			Kind:      EventStreamEnded,
			Peer:      peer,
			StreamID:  m.ID,
			Visible:   s.stream.visible.String(),
			Reasoning: s.stream.reasoning.String(),
		})
	case protocol.ErrorMsg:
		if !s.stream.fail(m.ID, m.Message) {
			e.logStaleStream(peer, s, "error", m.ID)
			return
		}
		e.emit(Event{
			Kind:       EventStreamErrored,
			Peer:       peer,
			StreamID:   m.ID,
			Visible:    s.stream.visible.String(),
			Reasoning:  s.stream.reasoning.String(),
			ErrMessage: m.Message,
		})
	case protocol.Unknown:
		zap.L().Info("unknown message type tolerated", zap.String("peer", string(peer)), zap.String("t", m.T))
		e.emit(Event{Kind: EventUnknownMessage, Peer: peer, UnknownTag: m.T})
	default:
		// Host-bound requests (version_negotiate, get_model, prompt) have no
		// meaning on the requesting side of the wire.
		zap.L().Debug("host-bound message ignored", zap.String("peer", string(peer)), zap.String("t", m.Tag()))
	}
}

func (e *Engine) handleVersionAck(s *peerSession, m protocol.VersionAck) {
	// A repeat ack simply overwrites the recorded outcome.
	if m.Compatible {
		s.negotiation = NegotiationCompatible
		s.remoteProtocolVersion = m.ProtocolVersion
		s.incompatibleReason = ""
		e.emitStatus(s.id, fmt.Sprintf("compatible with host protocol %s", m.ProtocolVersion))
		if !s.modelRequested {
			s.modelRequested = true
			_ = e.send(s.id, protocol.GetModel{})
		}
	} else {
		s.negotiation = NegotiationIncompatible
		s.remoteProtocolVersion = m.ProtocolVersion
		s.incompatibleReason = m.Reason
		if m.Reason != "" {
			e.emitStatus(s.id, fmt.Sprintf("incompatible protocol version: %s", m.Reason))
		} else {
			e.emitStatus(s.id, "incompatible protocol version")
		}
	}
	e.recordNegotiation(s)
}

// SendPrompt submits a generation request. The caller supplies the request
// id and guarantees its uniqueness among outstanding requests.
func (e *Engine) SendPrompt(peer channel.PeerID, p protocol.Prompt) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[peer]
	if !ok {
		return ErrUnknownPeer
	}
	if err := gate(s); err != nil {
		return err
	}
	return e.send(peer, p)
}

// RequestModelInfo asks the host for its model descriptor.
func (e *Engine) RequestModelInfo(peer channel.PeerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[peer]
	if !ok {
		return ErrUnknownPeer
	}
	if err := gate(s); err != nil {
		return err
	}
	return e.send(peer, protocol.GetModel{})
}

// gate enforces the negotiation precondition for prompt/get_model sends.
func gate(s *peerSession) error {
	switch s.negotiation {
	case NegotiationCompatible:
		return nil
	case NegotiationIncompatible:
		return &ProtocolError{Kind: ProtocolIncompatible, Peer: s.id}
	default:
		return &ProtocolError{Kind: ProtocolNotNegotiated, Peer: s.id}
	}
}

func (e *Engine) send(peer channel.PeerID, m protocol.Message) error {
	frame, err := protocol.Marshal(m)
	if err != nil {
		zap.L().Error("encode failed", zap.String("t", m.Tag()), zap.Error(err))
		return err
	}
	if err := e.sender.Send(peer, frame); err != nil {
		zap.L().Warn("send failed",
			zap.String("peer", string(peer)),
			zap.String("t", m.Tag()),
			zap.Error(err))
		e.emitStatus(peer, fmt.Sprintf("failed to send %s", m.Tag()))
		return &SendError{Peer: peer, Err: err}
	}
	if e.store != nil {
		e.store.RecordExchange(peer, 0, uint64(len(frame)), 0, 1)
	}
	return nil
}

func (e *Engine) recordNegotiation(s *peerSession) {
	if e.store == nil {
		return
	}
	e.store.SetNegotiation(s.id, s.negotiation.String(), s.remoteProtocolVersion, s.incompatibleReason)
}

func (e *Engine) logStaleStream(peer channel.PeerID, s *peerSession, kind, id string) {
	zap.L().Info("foreign or stale stream id",
		zap.String("peer", string(peer)),
		zap.String("t", kind),
		zap.String("id", id),
		zap.String("active_id", s.stream.activeID))
}

func rawLen(raw any) uint64 {
	switch v := raw.(type) {
	case string:
		return uint64(len(v))
	case []byte:
		return uint64(len(v))
	default:
		return 0
	}
}
