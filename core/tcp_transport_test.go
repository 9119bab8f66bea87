package core

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/encodeous/fibbing/state"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// agent plays the router side of the handshake, identifying as id
func agent(t *testing.T, conn net.Conn, id state.RouterId) <-chan error {
	done := make(chan error, 1)
	go func() {
		hello, err := ReadFrame(conn)
		if err != nil {
			done <- err
			return
		}
		if hello.Hello != "controller" {
			done <- errors.New("unexpected hello " + string(hello.Hello))
			return
		}
		done <- WriteFrame(conn, Frame{Hello: id})
	}()
	return done
}

func TestTCPSessionHandshake(t *testing.T) {
	defer goleak.VerifyNone(t)
	local, remote := net.Pipe()
	defer remote.Close()
	done := agent(t, remote, "r4")

	sess, err := NewTCPSession(context.Background(), local, "controller", "r4")
	require.NoError(t, err)
	require.NoError(t, <-done)
	defer sess.Close()
	assert.Equal(t, state.RouterId("r4"), sess.Peer())
	assert.NotEqual(t, uuid.Nil, sess.Id())

	lsas := []state.LSA{{
		Advertisement: state.Advertisement{AdvKey: state.AdvKey{Origin: "fake:1", Neighbor: "r1"}, Cost: 1, Forward: "r2"},
		Seqno:         state.InitialSequenceNumber,
	}}
	sent := make(chan error, 1)
	go func() {
		sent <- sess.Send(lsas)
	}()
	f, err := ReadFrame(remote)
	require.NoError(t, err)
	require.NoError(t, <-sent)
	assert.Equal(t, lsas, f.LSAs)

	change := state.TopologyChange{
		Source: state.Source{Origin: "r4", Seqno: 1},
		Ops:    []state.TopologyOp{{Kind: state.RemoveLink, Router: "r4", Peer: "r1"}},
	}
	go func() {
		// records echoed back by the router are not reports
		_ = WriteFrame(remote, Frame{LSAs: lsas})
		_ = WriteFrame(remote, Frame{Change: &change})
	}()
	got, err := sess.Recv()
	require.NoError(t, err)
	assert.Equal(t, change, got)

	require.NoError(t, sess.Close())
	_, err = ReadFrame(remote)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPSessionRejectsWrongPeer(t *testing.T) {
	defer goleak.VerifyNone(t)
	local, remote := net.Pipe()
	defer remote.Close()
	defer local.Close()
	done := agent(t, remote, "r9")

	_, err := NewTCPSession(context.Background(), local, "controller", "r4")
	require.NoError(t, <-done)
	assert.ErrorContains(t, err, `peer identified as "r9"`)
}

func TestTCPSessionHandshakeTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	local, remote := net.Pipe()
	defer remote.Close()
	defer local.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	// nobody reads the hello
	_, err := NewTCPSession(ctx, local, "controller", "r4")
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestTCPTransportDial(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		if err := <-agent(t, conn, "r4"); err != nil {
			accepted <- err
			return
		}
		// wait for the controller to hang up
		_, err = ReadFrame(conn)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		accepted <- err
	}()

	tr := NewTCPTransport("controller", []state.InjectionCfg{
		{Router: "r4", Endpoint: netip.MustParseAddrPort(l.Addr().String())},
		{Router: "r1"},
	})
	assert.Len(t, tr.Endpoints, 1)

	_, err = tr.Dial(context.Background(), "r1")
	assert.ErrorContains(t, err, "no endpoint configured")

	sess, err := tr.Dial(context.Background(), "r4")
	require.NoError(t, err)
	assert.Equal(t, state.RouterId("r4"), sess.Peer())
	require.NoError(t, sess.Close())
	require.NoError(t, <-accepted)
}
