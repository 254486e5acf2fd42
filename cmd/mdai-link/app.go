package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/channel/mem"
	quicchan "github.com/navedmerchant/mydeviceai-link/pkg/channel/quic"
	"github.com/navedmerchant/mydeviceai-link/pkg/config"
	"github.com/navedmerchant/mydeviceai-link/pkg/engine"
	"github.com/navedmerchant/mydeviceai-link/pkg/identity"
	"github.com/navedmerchant/mydeviceai-link/pkg/memkv"
	"github.com/navedmerchant/mydeviceai-link/pkg/observability"
	"github.com/navedmerchant/mydeviceai-link/pkg/peering"
	"github.com/navedmerchant/mydeviceai-link/pkg/peers"
)

func newTransport(kind string) (channel.Transport, error) {
	switch kind {
	case "quic":
		return quicchan.New()
	case "mem":
		return mem.New(), nil
	default:
		return nil, errors.New("unsupported channel kind: " + kind)
	}
}

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.HostMode {
		return runHost(ctx, cfg)
	}

	zap.L().Info("mdai-link started", zap.String("app", cfg.AppName))

	// Load/generate client identity (ed25519); the canonical id becomes
	// clientId unless the config pins one.
	_, canonicalID, err := identity.LoadOrGenEd25519(cfg.Identity)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init identity: " + err.Error() + "\n")
		return 1
	}
	clientID := cfg.Client.ID
	if clientID == "" {
		clientID = string(canonicalID)
		zap.L().Info("derived client id from identity", zap.String("client_id", clientID))
	}

	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	ps := peers.NewStore(kv)

	events := make(chan engine.Event, 256)
	hub := peering.NewHub()
	eng := engine.New(engine.Options{
		ClientID:             clientID,
		Impl:                 cfg.Client.Impl,
		Version:              cfg.Client.Version,
		ProtocolVersion:      cfg.Protocol.Version,
		MinCompatibleVersion: cfg.Protocol.MinCompatible,
	}, hub, engine.SinkFunc(func(e engine.Event) { events <- e }), ps)

	tr, err := newTransport(cfg.Channel.Kind)
	if err != nil {
		zap.L().Error("channel setup", zap.Error(err))
		return 1
	}

	if cfg.Channel.Listen != "" {
		lis, err := tr.Listen(ctx, cfg.Channel.Listen)
		if err != nil {
			zap.L().Error("listen", zap.Error(err))
			return 1
		}
		zap.L().Info("listening", zap.String("addr", lis.Addr().String()))
		go func() {
			if err := hub.Serve(ctx, eng, lis); err != nil && ctx.Err() == nil {
				zap.L().Error("serve", zap.Error(err))
			}
		}()
	}
	if cfg.Channel.Dial != "" {
		pi := channel.PeerInfo{ID: channel.PeerID(cfg.Channel.PeerID), Addr: cfg.Channel.Dial}
		if err := hub.Connect(ctx, eng, tr, cfg.Channel.Dial, pi); err != nil {
			zap.L().Error("dial", zap.Error(err))
			return 1
		}
	}
	if cfg.Channel.Listen == "" && cfg.Channel.Dial == "" {
		zap.L().Error("nothing to do: set channel.listen or channel.dial")
		return 1
	}

	return eventLoop(ctx, eng, events, opts)
}

// eventLoop consumes engine events. In -prompt mode it submits the prompt
// once negotiation completes and exits when the reply stream terminates.
func eventLoop(ctx context.Context, eng *engine.Engine, events <-chan engine.Event, opts Options) int {
	promptPending := opts.Prompt != ""
	for {
		select {
		case <-ctx.Done():
			return 0
		case e := <-events:
			switch e.Kind {
			case engine.EventStatus:
				zap.L().Info("peer status", zap.String("peer", string(e.Peer)), zap.String("status", e.Status))
			case engine.EventModelInfo:
				zap.L().Info("host model",
					zap.String("peer", string(e.Peer)),
					zap.String("id", e.Model.ID),
					zap.String("name", e.Model.DisplayName),
					zap.Bool("installed", e.Model.Installed))
				if promptPending {
					promptPending = false
					if err := submitPrompt(eng, e.Peer, opts); err != nil {
						zap.L().Error("prompt", zap.Error(err))
						return 1
					}
				}
			case engine.EventVisibleToken:
				fmt.Print(e.Token)
			case engine.EventStreamEnded:
				fmt.Println()
				zap.L().Info("stream completed", zap.String("id", e.StreamID))
				if opts.Prompt != "" {
					return 0
				}
			case engine.EventStreamErrored:
				fmt.Println()
				zap.L().Error("stream failed", zap.String("id", e.StreamID), zap.String("message", e.ErrMessage))
				if opts.Prompt != "" {
					return 1
				}
			case engine.EventUnknownMessage:
				zap.L().Info("host sent unknown message", zap.String("t", e.UnknownTag))
			}
		}
	}
}

func submitPrompt(eng *engine.Engine, peer channel.PeerID, opts Options) error {
	id := fmt.Sprintf("req-%d", time.Now().UnixNano())
	p, err := engine.BuildPrompt(id, opts.System, opts.Prompt, opts.MaxTokens)
	if err != nil {
		return err
	}
	return eng.SendPrompt(peer, p)
}
