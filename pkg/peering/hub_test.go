package peering

import (
	"context"
	"testing"
	"time"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/channel/mem"
	"github.com/navedmerchant/mydeviceai-link/pkg/engine"
	"github.com/navedmerchant/mydeviceai-link/pkg/protocol"
)

// scriptedHost accepts one session and plays the host side of the protocol:
// ack the negotiation, answer get_model, and stream a canned reply to the
// first prompt.
func scriptedHost(t *testing.T, lis channel.Listener) {
	t.Helper()
	ctx := context.Background()
	s, err := lis.Accept(ctx)
	if err != nil {
		t.Errorf("accept: %v", err)
		return
	}
	st, err := s.OpenStream(ctx)
	if err != nil {
		t.Errorf("open stream: %v", err)
		return
	}
	reply := func(m protocol.Message) {
		b, err := protocol.Marshal(m)
		if err != nil {
			t.Errorf("marshal %s: %v", m.Tag(), err)
			return
		}
		if err := st.SendBytes(b); err != nil {
			t.Errorf("send %s: %v", m.Tag(), err)
		}
	}
	for {
		buf, err := st.RecvBytes()
		if err != nil {
			return
		}
		m, err := protocol.Decode(buf)
		if err != nil {
			t.Errorf("host decode: %v", err)
			return
		}
		switch m := m.(type) {
		case protocol.Hello:
			// net.Pipe is synchronous: replying here while the client is
			// still sending its handshake would deadlock. Hello needs no
			// answer anyway.
		case protocol.VersionNegotiate:
			reply(protocol.VersionAck{Compatible: true, ProtocolVersion: m.ProtocolVersion})
		case protocol.GetModel:
			reply(protocol.ModelInfo{ID: "qwen3-4b", DisplayName: "Qwen3 4B", Installed: true})
		case protocol.Prompt:
			reply(protocol.Start{ID: m.ID})
			reply(protocol.ReasoningToken{ID: m.ID, Tok: "thinking"})
			reply(protocol.Token{ID: m.ID, Tok: "Hel"})
			reply(protocol.Token{ID: m.ID, Tok: "lo"})
			reply(protocol.End{ID: m.ID})
		}
	}
}

func waitEvent(t *testing.T, events <-chan engine.Event, kind engine.EventKind) engine.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
}

func TestLoopbackSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := mem.New()
	lis, err := tr.Listen(ctx, "host")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go scriptedHost(t, lis)

	events := make(chan engine.Event, 64)
	hub := NewHub()
	eng := engine.New(engine.Options{
		ClientID:        "pk:ed25519:loopback",
		Version:         "0.3.0",
		ProtocolVersion: "1.0.0",
	}, hub, engine.SinkFunc(func(e engine.Event) { events <- e }), nil)

	peer := channel.PeerInfo{ID: "host-peer", Addr: "host"}
	if err := hub.Connect(ctx, eng, tr, "host", peer); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// handshake runs by itself: negotiation acks, model info arrives
	mi := waitEvent(t, events, engine.EventModelInfo)
	if mi.Model == nil || mi.Model.ID != "qwen3-4b" || !mi.Model.Installed {
		t.Fatalf("model info wrong: %+v", mi.Model)
	}
	if st, ok := eng.Negotiation("host-peer"); !ok || st != engine.NegotiationCompatible {
		t.Fatalf("negotiation = %v %v", st, ok)
	}

	p, err := engine.BuildPrompt("r1", "", "say hello", 64)
	if err != nil {
		t.Fatalf("build prompt: %v", err)
	}
	if err := eng.SendPrompt("host-peer", p); err != nil {
		t.Fatalf("send prompt: %v", err)
	}

	ended := waitEvent(t, events, engine.EventStreamEnded)
	if ended.StreamID != "r1" || ended.Visible != "Hello" || ended.Reasoning != "thinking" {
		t.Fatalf("stream result wrong: %+v", ended)
	}

	snap, _ := eng.Stream("host-peer")
	if snap.Status != engine.StreamCompleted || snap.Visible != "Hello" {
		t.Fatalf("snapshot wrong: %+v", snap)
	}
}

func TestSendToUnconnectedPeer(t *testing.T) {
	hub := NewHub()
	if err := hub.Send("nobody", []byte("x")); err != ErrNotConnected {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
	if hub.Connected("nobody") {
		t.Fatalf("phantom connection")
	}
}
