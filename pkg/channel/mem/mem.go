// Package mem is an in-process channel over net.Pipe with u32-LE
// length-prefixed frames. It exists for tests and loopback demos.
package mem

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
)

const maxFrame = 1 << 24

// Transport keeps named listeners so dialers can reach them by name.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() channel.Kind { return channel.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (channel.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		<-ctx.Done()
		_ = l.Close()
		t.mu.Lock()
		delete(t.listeners, name)
		t.mu.Unlock()
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string, peer channel.PeerInfo) (channel.Session, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, errors.New("mem: no such listener")
	}
	c1, c2 := net.Pipe()
	srv := newSession(channel.PeerInfo{ID: channel.TempPeerID(channel.KindMem, c1.RemoteAddr()), Addr: name}, c1)
	cli := newSession(peer, c2)
	select {
	case l.newCh <- srv:
	default:
		_ = srv.Close()
		_ = cli.Close()
		return nil, errors.New("mem: listener backlog full")
	}
	go func() { <-ctx.Done(); _ = cli.Close() }()
	return cli, nil
}

type listener struct {
	name    string
	newCh   chan *session
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (channel.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("mem: listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	select {
	case <-l.closeCh:
	default:
		close(l.closeCh)
	}
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type session struct {
	peer channel.PeerInfo
	c    net.Conn

	sendMu sync.Mutex
	br     *bufio.Reader
	bw     *bufio.Writer
}

func newSession(peer channel.PeerInfo, c net.Conn) *session {
	return &session{peer: peer, c: c, br: bufio.NewReader(c), bw: bufio.NewWriter(c)}
}

func (s *session) Peer() channel.PeerInfo      { return s.peer }
func (s *session) TransportKind() channel.Kind { return channel.KindMem }
func (s *session) LocalAddr() net.Addr         { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr        { return s.c.RemoteAddr() }
func (s *session) Close() error                { return s.c.Close() }

func (s *session) OpenStream(context.Context) (channel.Stream, error) { return s, nil }

func (s *session) SendBytes(b []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := s.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := s.bw.Write(b); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *session) RecvBytes() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(s.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n > maxFrame {
		return nil, errors.New("mem: invalid frame size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
