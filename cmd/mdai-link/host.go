package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/config"
	"github.com/navedmerchant/mydeviceai-link/pkg/protocol"
)

const echoTokenSize = 8

// runHost serves the built-in echo host: it acks version negotiation,
// reports a canned model and streams each prompt's last user message back in
// small token chunks.
func runHost(ctx context.Context, cfg *config.Config) int {
	if cfg.Channel.Listen == "" {
		zap.L().Error("host mode requires channel.listen")
		return 1
	}
	tr, err := newTransport(cfg.Channel.Kind)
	if err != nil {
		zap.L().Error("channel setup", zap.Error(err))
		return 1
	}
	lis, err := tr.Listen(ctx, cfg.Channel.Listen)
	if err != nil {
		zap.L().Error("listen", zap.Error(err))
		return 1
	}
	zap.L().Info("echo host listening", zap.String("addr", lis.Addr().String()))
	for {
		s, err := lis.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			zap.L().Error("accept", zap.Error(err))
			return 1
		}
		go serveHostSession(ctx, s, cfg)
	}
}

func serveHostSession(ctx context.Context, s channel.Session, cfg *config.Config) {
	defer s.Close()
	st, err := s.OpenStream(ctx)
	if err != nil {
		zap.L().Warn("open stream", zap.Error(err))
		return
	}
	peer := s.Peer().ID
	reply := func(m protocol.Message) bool {
		b, err := protocol.Marshal(m)
		if err != nil {
			zap.L().Error("encode failed", zap.String("t", m.Tag()), zap.Error(err))
			return false
		}
		if err := st.SendBytes(b); err != nil {
			zap.L().Warn("send failed", zap.String("peer", string(peer)), zap.Error(err))
			return false
		}
		return true
	}

	for {
		buf, err := st.RecvBytes()
		if err != nil {
			zap.L().Info("session closed", zap.String("peer", string(peer)), zap.Error(err))
			return
		}
		m, err := protocol.Decode(buf)
		if err != nil {
			zap.L().Warn("payload dropped", zap.String("peer", string(peer)), zap.Error(err))
			continue
		}
		switch m := m.(type) {
		case protocol.Hello:
			zap.L().Info("client hello",
				zap.String("client_id", m.ClientID),
				zap.String("impl", m.Impl),
				zap.String("version", m.Version))
			reply(protocol.Hello{ClientID: cfg.Client.ID, Impl: "mydeviceai-echo", Version: cfg.Client.Version})
		case protocol.VersionNegotiate:
			if m.ProtocolVersion == cfg.Protocol.Version {
				reply(protocol.VersionAck{Compatible: true, ProtocolVersion: cfg.Protocol.Version})
			} else {
				reply(protocol.VersionAck{
					Compatible:      false,
					ProtocolVersion: cfg.Protocol.Version,
					Reason:          "host speaks " + cfg.Protocol.Version,
				})
			}
		case protocol.GetModel:
			reply(protocol.ModelInfo{ID: "echo", DisplayName: "Echo", Installed: true})
		case protocol.Prompt:
			streamEcho(reply, m)
		default:
			zap.L().Debug("ignored", zap.String("t", m.Tag()))
		}
	}
}

// streamEcho plays back the last user message of p as a token stream.
func streamEcho(reply func(protocol.Message) bool, p protocol.Prompt) {
	var text string
	for _, msg := range p.Messages {
		if msg.Role == "user" {
			text = msg.Content
		}
	}
	if !reply(protocol.Start{ID: p.ID}) {
		return
	}
	if !reply(protocol.ReasoningToken{ID: p.ID, Tok: "echoing request"}) {
		return
	}
	for off := 0; off < len(text); off += echoTokenSize {
		end := off + echoTokenSize
		if end > len(text) {
			end = len(text)
		}
		if !reply(protocol.Token{ID: p.ID, Tok: text[off:end]}) {
			return
		}
	}
	reply(protocol.End{ID: p.ID})
}
