package state

import "net/netip"

// FakeKey identifies the role a fake node plays, so that its id survives recomputation
type FakeKey struct {
	Prefix  netip.Prefix
	Anchor  RouterId
	Forward RouterId
}

// FakeArena allocates fake node ids. Ids are never handed out twice.
type FakeArena struct {
	first    uint64
	next     uint64
	assigned map[FakeKey]NodeId
	pending  map[FakeKey]NodeId
}

func NewFakeArena() *FakeArena {
	return NewFakeArenaFrom(1)
}

// NewFakeArenaFrom allocates ids starting at first
func NewFakeArenaFrom(first uint64) *FakeArena {
	return &FakeArena{
		first:    first,
		next:     first,
		assigned: make(map[FakeKey]NodeId),
		pending:  make(map[FakeKey]NodeId),
	}
}

// Get returns the id previously committed for key, or allocates a new one
func (a *FakeArena) Get(key FakeKey) NodeId {
	if id, ok := a.assigned[key]; ok {
		a.pending[key] = id
		return id
	}
	if id, ok := a.pending[key]; ok {
		return id
	}
	id := FakeNodeId(a.next)
	a.next++
	a.pending[key] = id
	return id
}

// Commit keeps the ids handed out since the last Commit and forgets every other key
func (a *FakeArena) Commit() {
	a.assigned = a.pending
	a.pending = make(map[FakeKey]NodeId)
}

// First is the first id the arena allocated
func (a *FakeArena) First() uint64 {
	return a.first
}
