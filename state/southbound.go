package state

import (
	"context"

	"github.com/google/uuid"
)

// Transport opens protocol adjacencies with real routers
type Transport interface {
	// Dial establishes an adjacency with router. It returns once the session is ready to exchange records.
	Dial(ctx context.Context, router RouterId) (Session, error)
}

// Session is a single established adjacency. Send and Recv may be called concurrently with each other.
type Session interface {
	Id() uuid.UUID
	Peer() RouterId
	Send(lsas []LSA) error
	// Recv blocks until the peer reports a real topology change
	Recv() (TopologyChange, error)
	Close() error
}

type AdjacencyState int

const (
	Disconnected AdjacencyState = iota
	Establishing
	Synchronized
)

func (a AdjacencyState) String() string {
	switch a {
	case Disconnected:
		return "Disconnected"
	case Establishing:
		return "Establishing"
	case Synchronized:
		return "Synchronized"
	}
	return "Unknown"
}

// AdvSnapshot is the immutable advertisement set published to adjacency workers
type AdvSnapshot struct {
	Version uint64
	// Current holds every live record
	Current map[AdvKey]LSA
	// Tombstones holds recently withdrawn records
	Tombstones map[AdvKey]LSA
	// Final is set on the last snapshot before shutdown
	Final bool
}
