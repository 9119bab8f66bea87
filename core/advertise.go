package core

import (
	"maps"
	"slices"
	"time"

	"github.com/encodeous/fibbing/state"
)

type tombstone struct {
	lsa    state.LSA
	expiry time.Time
}

// Advertiser tracks the records currently advertised southbound and sequences every change to them
type Advertiser struct {
	version    uint64
	seqnos     map[state.NodeId]uint32
	current    map[state.AdvKey]state.LSA
	tombstones map[state.AdvKey]tombstone
}

func NewAdvertiser() *Advertiser {
	return &Advertiser{
		seqnos:     make(map[state.NodeId]uint32),
		current:    make(map[state.AdvKey]state.LSA),
		tombstones: make(map[state.AdvKey]tombstone),
	}
}

func (a *Advertiser) nextSeqno(origin state.NodeId) uint32 {
	seqno, ok := a.seqnos[origin]
	if !ok {
		seqno = state.InitialSequenceNumber
	} else {
		seqno++
	}
	a.seqnos[origin] = seqno
	return seqno
}

// Update replaces the advertised set with next. New and modified records, and withdrawals of records missing from next,
// are returned sorted by key. Unchanged records keep their sequence number.
func (a *Advertiser) Update(next map[state.AdvKey]state.Advertisement, now time.Time) []state.LSA {
	changed := make([]state.LSA, 0)
	for _, key := range slices.SortedFunc(maps.Keys(next), state.AdvKey.Compare) {
		adv := next[key]
		if cur, ok := a.current[key]; ok && cur.Advertisement == adv {
			continue
		}
		lsa := state.LSA{Advertisement: adv, Seqno: a.nextSeqno(key.Origin)}
		delete(a.tombstones, key)
		a.current[key] = lsa
		changed = append(changed, lsa)
	}
	for _, key := range slices.SortedFunc(maps.Keys(a.current), state.AdvKey.Compare) {
		if _, ok := next[key]; ok {
			continue
		}
		lsa := state.LSA{
			Advertisement: state.Advertisement{AdvKey: key, Cost: state.LSInfinity},
			Seqno:         a.nextSeqno(key.Origin),
		}
		delete(a.current, key)
		a.tombstones[key] = tombstone{lsa: lsa, expiry: now.Add(state.TombstoneTTL)}
		changed = append(changed, lsa)
	}
	slices.SortFunc(changed, func(x, y state.LSA) int {
		return x.AdvKey.Compare(y.AdvKey)
	})
	if len(changed) > 0 {
		a.version++
	}
	return changed
}

// WithdrawAll withdraws every advertised record
func (a *Advertiser) WithdrawAll(now time.Time) []state.LSA {
	return a.Update(nil, now)
}

// GC drops expired tombstones and returns how many were dropped
func (a *Advertiser) GC(now time.Time) int {
	n := 0
	for key, ts := range a.tombstones {
		if now.After(ts.expiry) {
			delete(a.tombstones, key)
			n++
		}
	}
	if n > 0 {
		a.version++
	}
	// fake node ids are never reused, so an origin without records is gone for good
	live := make(map[state.NodeId]struct{}, len(a.seqnos))
	for key := range a.current {
		live[key.Origin] = struct{}{}
	}
	for key := range a.tombstones {
		live[key.Origin] = struct{}{}
	}
	maps.DeleteFunc(a.seqnos, func(origin state.NodeId, _ uint32) bool {
		_, ok := live[origin]
		return !ok
	})
	return n
}

// Snapshot returns an immutable copy of the advertised state for the adjacency workers
func (a *Advertiser) Snapshot(final bool) *state.AdvSnapshot {
	snap := &state.AdvSnapshot{
		Version:    a.version,
		Current:    maps.Clone(a.current),
		Tombstones: make(map[state.AdvKey]state.LSA, len(a.tombstones)),
		Final:      final,
	}
	for key, ts := range a.tombstones {
		snap.Tombstones[key] = ts.lsa
	}
	return snap
}

// Current returns the live records sorted by key
func (a *Advertiser) Current() []state.LSA {
	return slices.SortedFunc(maps.Values(a.current), func(x, y state.LSA) int {
		return x.AdvKey.Compare(y.AdvKey)
	})
}

func (a *Advertiser) Tombstones() int {
	return len(a.tombstones)
}

func (a *Advertiser) Version() uint64 {
	return a.version
}
