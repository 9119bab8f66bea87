package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/encodeous/fibbing/state"
)

// IPCGet sends a single command to the controller listening on socket and returns its reply
func IPCGet(socket, command string) (string, error) {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(command + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(res, "\x00"), nil
}

// IPC serves inspection commands over a unix socket
type IPC struct {
	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closed   bool
}

// track registers conn so Cleanup can close it. It returns false once the IPC is shutting down.
func (i *IPC) track(conn net.Conn) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}
	i.conns[conn] = struct{}{}
	return true
}

func (i *IPC) untrack(conn net.Conn) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.conns, conn)
}

func (i *IPC) Init(s *state.State) error {
	if s.Socket == "" {
		return nil
	}
	_ = os.Remove(s.Socket)
	l, err := net.Listen("unix", s.Socket)
	if err != nil {
		return err
	}
	i.listener = l
	i.conns = make(map[net.Conn]struct{})
	s.Log.Info("listening for inspection", "socket", s.Socket)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.Log.Warn("failed to accept ipc connection", "error", err)
				}
				return
			}
			if !i.track(conn) {
				_ = conn.Close()
				return
			}
			i.wg.Add(1)
			go func() {
				defer i.wg.Done()
				defer i.untrack(conn)
				defer conn.Close()
				if err := HandleIPC(s.Env, bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))); err != nil {
					s.Log.Debug("ipc request failed", "error", err)
				}
			}()
		}
	}()
	return nil
}

func (i *IPC) Cleanup(s *state.State) error {
	if i.listener == nil {
		return nil
	}
	err := i.listener.Close()
	// idle clients would otherwise hold the handlers in ReadString
	i.mu.Lock()
	i.closed = true
	for conn := range i.conns {
		_ = conn.Close()
	}
	i.mu.Unlock()
	i.wg.Wait()
	return err
}

// HandleIPC reads one command and writes its reply terminated by a zero byte
func HandleIPC(e *state.Env, rw *bufio.ReadWriter) error {
	line, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	var reply any
	switch fields[0] {
	case "inspect":
		reply, err = e.DispatchWait(func(s *state.State) (any, error) {
			return Inspect(s), nil
		})
	case "trace":
		if len(fields) != 3 {
			return fmt.Errorf("usage: trace <router> <address>")
		}
		addr, perr := netip.ParseAddr(fields[2])
		if perr != nil {
			return perr
		}
		reply, err = e.DispatchWait(func(s *state.State) (any, error) {
			path, err := Trace(s.Topology, Get[*Controller](s).Solution().Fakes, state.RouterId(fields[1]), addr)
			if err != nil {
				return err.Error() + "\n", nil
			}
			return joinHops(path) + "\n", nil
		})
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
	if err != nil {
		return err
	}
	_, err = rw.WriteString(reply.(string))
	if err != nil {
		return err
	}
	err = rw.WriteByte(0)
	if err != nil {
		return err
	}
	return rw.Flush()
}
