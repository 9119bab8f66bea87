package core

import (
	"net/netip"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/fibbing/state"
	"github.com/google/uuid"
)

// Tracer fans controller events out to observers. Observers must keep draining the channel they register.
type Tracer struct {
	broadcast.Broadcaster
}

// AdjacencyEvent is emitted by an adjacency worker on every state transition
type AdjacencyEvent struct {
	Router  state.RouterId
	Session uuid.UUID
	State   state.AdjacencyState
	Err     error
}

// SyncEvent is emitted after a worker sent records to its peer
type SyncEvent struct {
	Router  state.RouterId
	Version uint64
	Sent    int
	Final   bool
}

// RecomputeEvent is emitted by the controller after every recomputation
type RecomputeEvent struct {
	Version  uint64
	Fakes    int
	Changed  []state.LSA
	Failures map[netip.Prefix]error
	Err      error
}

func (t *Tracer) Init(s *state.State) error {
	t.Broadcaster = broadcast.NewBroadcaster(1024)
	return nil
}

func (t *Tracer) Cleanup(s *state.State) error {
	return t.Broadcaster.Close()
}
