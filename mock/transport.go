package mock

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/encodeous/fibbing/state"
	"github.com/google/uuid"
)

var ErrSessionClosed = errors.New("session closed")

// Network is an in-memory state.Transport. Every router keeps the link-state database it was sent.
type Network struct {
	mu      sync.Mutex
	routers map[state.RouterId]*Router
}

func NewNetwork(routers ...state.RouterId) *Network {
	n := &Network{routers: make(map[state.RouterId]*Router)}
	for _, r := range routers {
		n.routers[r] = &Router{
			Id:       r,
			lsdb:     make(map[state.AdvKey]state.LSA),
			sessions: make(map[uuid.UUID]*Session),
		}
	}
	return n
}

func (n *Network) Router(id state.RouterId) *Router {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.routers[id]
}

func (n *Network) Dial(ctx context.Context, router state.RouterId) (state.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := n.Router(router)
	if r == nil {
		return nil, fmt.Errorf("unknown router %s", router)
	}
	s, err := r.accept()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Router emulates the link-state database of a real router
type Router struct {
	Id state.RouterId

	mu       sync.Mutex
	lsdb     map[state.AdvKey]state.LSA
	stale    int
	received int
	refuse   bool
	dials    int
	sessions map[uuid.UUID]*Session
}

func (r *Router) accept() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dials++
	if r.refuse {
		return nil, fmt.Errorf("%s refused the connection", r.Id)
	}
	s := &Session{
		id:     uuid.New(),
		router: r,
		inbox:  make(chan state.TopologyChange, 16),
		closed: make(chan struct{}),
	}
	r.sessions[s.id] = s
	return s, nil
}

// install applies lsas the way a router does: a record replaces the held one only if it is newer
func (r *Router) install(lsas []state.LSA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lsa := range lsas {
		r.received++
		if cur, ok := r.lsdb[lsa.AdvKey]; ok && lsa.Seqno <= cur.Seqno {
			r.stale++
			continue
		}
		r.lsdb[lsa.AdvKey] = lsa
	}
}

// Live returns the records that are not withdrawn, sorted by key
func (r *Router) Live() []state.LSA {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]state.LSA, 0)
	for _, key := range slices.SortedFunc(maps.Keys(r.lsdb), state.AdvKey.Compare) {
		if lsa := r.lsdb[key]; !lsa.IsWithdrawal() {
			out = append(out, lsa)
		}
	}
	return out
}

func (r *Router) Lookup(key state.AdvKey) (state.LSA, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lsa, ok := r.lsdb[key]
	return lsa, ok
}

// Stale is the number of records ignored because they were not newer than the held copy
func (r *Router) Stale() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale
}

func (r *Router) Received() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

func (r *Router) Dials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

func (r *Router) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Refuse makes subsequent dials fail
func (r *Router) Refuse(refuse bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refuse = refuse
}

// Drop closes every open session, as if the adjacency went down
func (r *Router) Drop() {
	r.mu.Lock()
	sessions := slices.Collect(maps.Values(r.sessions))
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// Report sends change to the controller over every open session
func (r *Router) Report(change state.TopologyChange) int {
	r.mu.Lock()
	sessions := slices.Collect(maps.Values(r.sessions))
	r.mu.Unlock()
	n := 0
	for _, s := range sessions {
		select {
		case s.inbox <- change:
			n++
		case <-s.closed:
		}
	}
	return n
}

type Session struct {
	id        uuid.UUID
	router    *Router
	inbox     chan state.TopologyChange
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *Session) Id() uuid.UUID {
	return s.id
}

func (s *Session) Peer() state.RouterId {
	return s.router.Id
}

func (s *Session) Send(lsas []state.LSA) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	s.router.install(lsas)
	return nil
}

func (s *Session) Recv() (state.TopologyChange, error) {
	select {
	case change := <-s.inbox:
		return change, nil
	case <-s.closed:
		return state.TopologyChange{}, ErrSessionClosed
	}
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.router.mu.Lock()
		delete(s.router.sessions, s.id)
		s.router.mu.Unlock()
	})
	return nil
}
