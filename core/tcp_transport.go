package core

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/encodeous/fibbing/state"
	"github.com/google/uuid"
)

// TCPTransport reaches injection points over TCP
type TCPTransport struct {
	Local     state.RouterId
	Endpoints map[state.RouterId]netip.AddrPort
	dialer    net.Dialer
}

func NewTCPTransport(local string, points []state.InjectionCfg) *TCPTransport {
	t := &TCPTransport{
		Local:     state.RouterId(local),
		Endpoints: make(map[state.RouterId]netip.AddrPort),
	}
	for _, p := range points {
		if p.Endpoint.IsValid() {
			t.Endpoints[p.Router] = p.Endpoint
		}
	}
	return t
}

func (t *TCPTransport) Dial(ctx context.Context, router state.RouterId) (state.Session, error) {
	ep, ok := t.Endpoints[router]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for %s", router)
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return nil, err
	}
	sess, err := NewTCPSession(ctx, conn, t.Local, router)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sess, nil
}

// TCPSession is an adjacency over a stream connection
type TCPSession struct {
	id    uuid.UUID
	peer  state.RouterId
	Conn  net.Conn
	mutex sync.Mutex
}

// NewTCPSession exchanges hellos over conn and checks that the peer is the expected router
func NewTCPSession(ctx context.Context, conn net.Conn, local, expected state.RouterId) (*TCPSession, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(state.HandshakeTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if err := WriteFrame(conn, Frame{Hello: local}); err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", expected, err)
	}
	hello, err := ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", expected, err)
	}
	if hello.Hello != expected {
		return nil, fmt.Errorf("handshake with %s: peer identified as %q", expected, hello.Hello)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return &TCPSession{id: uuid.New(), peer: expected, Conn: conn}, nil
}

func (t *TCPSession) Id() uuid.UUID {
	return t.id
}

func (t *TCPSession) Peer() state.RouterId {
	return t.peer
}

func (t *TCPSession) Send(lsas []state.LSA) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return WriteFrame(t.Conn, Frame{LSAs: lsas})
}

// Recv returns the next topology change. Frames carrying anything else are ignored.
func (t *TCPSession) Recv() (state.TopologyChange, error) {
	for {
		f, err := ReadFrame(t.Conn)
		if err != nil {
			return state.TopologyChange{}, err
		}
		if f.Change != nil {
			return *f.Change, nil
		}
	}
}

func (t *TCPSession) Close() error {
	return t.Conn.Close()
}
