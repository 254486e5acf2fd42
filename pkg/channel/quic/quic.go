// Package quic carries the peer channel over a QUIC connection with u32-LE
// length-prefixed frames on a single bidirectional stream. TLS here only
// provides the QUIC handshake; peer identity is established at the
// application layer by the hello exchange.
package quic

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
)

const (
	alpn     = "mydeviceai-link"
	maxFrame = 1 << 24
)

// Transport implements channel.Transport over QUIC.
type Transport struct {
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

func New() (*Transport, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	return &Transport{
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		quicConf: &quicgo.Config{},
	}, nil
}

func (t *Transport) Kind() channel.Kind { return channel.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (channel.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	go func() { <-ctx.Done(); _ = l.Close() }()
	return &listener{l: l}, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer channel.PeerInfo) (channel.Session, error) {
	// The certificate is ephemeral and unverifiable by construction; the
	// hello exchange identifies the peer.
	tlsClient := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	go func() { <-ctx.Done(); _ = c.CloseWithError(0, "") }()
	return &session{peer: peer, c: c}, nil
}

type listener struct {
	l *quicgo.Listener
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (channel.Session, error) {
	c, err := l.l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	pi := channel.PeerInfo{
		ID:   channel.TempPeerID(channel.KindQUIC, c.RemoteAddr()),
		Addr: c.RemoteAddr().String(),
	}
	return &session{peer: pi, c: c, inbound: true}, nil
}

func (l *listener) Close() error { return l.l.Close() }

type session struct {
	peer    channel.PeerInfo
	c       quicgo.Connection
	inbound bool

	mu   sync.Mutex
	ctrl *stream
}

func (s *session) Peer() channel.PeerInfo      { return s.peer }
func (s *session) TransportKind() channel.Kind { return channel.KindQUIC }
func (s *session) LocalAddr() net.Addr         { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr        { return s.c.RemoteAddr() }
func (s *session) Close() error                { return s.c.CloseWithError(0, "") }

// OpenStream returns the session's single message stream. The dialer opens
// it; the listener side accepts it.
func (s *session) OpenStream(ctx context.Context) (channel.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl != nil {
		return s.ctrl, nil
	}
	var qs quicgo.Stream
	var err error
	if s.inbound {
		qs, err = s.c.AcceptStream(ctx)
	} else {
		qs, err = s.c.OpenStreamSync(ctx)
	}
	if err != nil {
		return nil, err
	}
	s.ctrl = &stream{qs: qs, br: bufio.NewReader(qs), bw: bufio.NewWriter(qs)}
	return s.ctrl, nil
}

type stream struct {
	qs quicgo.Stream

	sendMu sync.Mutex
	br     *bufio.Reader
	bw     *bufio.Writer
}

func (st *stream) SendBytes(b []byte) error {
	st.sendMu.Lock()
	defer st.sendMu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := st.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := st.bw.Write(b); err != nil {
		return err
	}
	return st.bw.Flush()
}

func (st *stream) RecvBytes() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(st.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n > maxFrame {
		return nil, errors.New("quic: invalid frame size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(st.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (st *stream) Close() error { return st.qs.Close() }

// selfSignedCert generates a short-lived self-signed certificate for the
// QUIC handshake.
func selfSignedCert() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
