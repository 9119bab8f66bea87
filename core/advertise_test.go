package core

import (
	"testing"
	"time"

	"github.com/encodeous/fibbing/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertiserSequencesNewRecords(t *testing.T) {
	a := NewAdvertiser()
	sol := &Solution{Fakes: []state.FakeNode{{Id: state.FakeNodeId(1), Prefix: d1, Anchor: "r1", Forward: "r2", StubCost: 1}}}
	changed := a.Update(sol.Advertisements(), time.Now())
	require.Len(t, changed, 2)
	for _, lsa := range changed {
		assert.Equal(t, state.FakeNodeId(1), lsa.Origin)
		assert.False(t, lsa.IsWithdrawal())
	}
	// records of one origin are sequenced one after the other
	assert.ElementsMatch(t,
		[]uint32{state.InitialSequenceNumber, state.InitialSequenceNumber + 1},
		[]uint32{changed[0].Seqno, changed[1].Seqno})
	assert.Equal(t, uint64(1), a.Version())

	// nothing changes, nothing is sent
	assert.Empty(t, a.Update(sol.Advertisements(), time.Now()))
	assert.Equal(t, uint64(1), a.Version())
}

func TestAdvertiserSeqnoIncreasesPerOrigin(t *testing.T) {
	a := NewAdvertiser()
	fake := state.FakeNode{Id: state.FakeNodeId(1), Prefix: d1, Anchor: "r1", Forward: "r2", StubCost: 1}
	first := a.Update((&Solution{Fakes: []state.FakeNode{fake}}).Advertisements(), time.Now())
	fake.StubCost = 5
	second := a.Update((&Solution{Fakes: []state.FakeNode{fake}}).Advertisements(), time.Now())
	require.Len(t, second, 1)
	assert.Equal(t, uint32(5), second[0].Cost)
	for _, lsa := range first {
		assert.Greater(t, second[0].Seqno, lsa.Seqno)
	}
}

func TestAdvertiserWithdrawsOnlySupportingFakes(t *testing.T) {
	topo := chainTopology(t)
	arena := state.NewFakeArena()
	keep := state.PathRequirement{Prefix: d1, Path: []state.RouterId{"a", "b", "c", "d", "e"}}
	drop := state.PathRequirement{Prefix: d2, Path: []state.RouterId{"b", "c", "d", "e"}}
	a := NewAdvertiser()
	now := time.Now()

	before := solve(t, topo, arena, keep, drop)
	a.Update(before.Advertisements(), now)
	after := solve(t, topo, arena, keep)
	changed := a.Update(after.Advertisements(), now)

	supporting := (&Solution{Fakes: before.FakesFor(d2)}).Advertisements()
	want := make(map[state.AdvKey]bool)
	for key := range supporting {
		want[key] = true
	}
	got := make(map[state.AdvKey]bool)
	for _, lsa := range changed {
		assert.True(t, lsa.IsWithdrawal(), "%s", lsa)
		got[lsa.AdvKey] = true
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("withdrawn records (-want +got):\n%s", diff)
	}

	snap := a.Snapshot(false)
	assert.Len(t, snap.Tombstones, len(supporting))
	assert.Len(t, snap.Current, len(after.Advertisements()))
	for key := range supporting {
		assert.NotContains(t, snap.Current, key)
	}
}

func TestAdvertiserRevivesTombstone(t *testing.T) {
	a := NewAdvertiser()
	adv := (&Solution{Fakes: []state.FakeNode{{Id: state.FakeNodeId(1), Prefix: d1, Anchor: "r1", Forward: "r2"}}}).Advertisements()
	a.Update(adv, time.Now())
	withdrawn := a.Update(nil, time.Now())
	assert.Equal(t, 2, a.Tombstones())
	revived := a.Update(adv, time.Now())
	assert.Equal(t, 0, a.Tombstones())
	require.Len(t, revived, 2)
	for i := range revived {
		assert.Greater(t, revived[i].Seqno, withdrawn[i].Seqno)
	}
}

func TestAdvertiserGC(t *testing.T) {
	a := NewAdvertiser()
	now := time.Now()
	a.Update((&Solution{Fakes: []state.FakeNode{{Id: state.FakeNodeId(1), Prefix: d1, Anchor: "r1", Forward: "r2"}}}).Advertisements(), now)
	a.WithdrawAll(now)
	assert.Equal(t, 0, a.GC(now))
	assert.Equal(t, 2, a.GC(now.Add(state.TombstoneTTL+time.Second)))
	assert.Empty(t, a.Snapshot(false).Tombstones)
	assert.Empty(t, a.seqnos)
}

func TestAdvertiserGCKeepsLiveOrigins(t *testing.T) {
	a := NewAdvertiser()
	now := time.Now()
	a.Update((&Solution{Fakes: []state.FakeNode{
		{Id: state.FakeNodeId(1), Prefix: d1, Anchor: "r1", Forward: "r2"},
		{Id: state.FakeNodeId(2), Prefix: d2, Anchor: "r1", Forward: "r2"},
	}}).Advertisements(), now)
	a.Update((&Solution{Fakes: []state.FakeNode{
		{Id: state.FakeNodeId(2), Prefix: d2, Anchor: "r1", Forward: "r2"},
	}}).Advertisements(), now)

	// fake:1 keeps its sequence numbers while its tombstones are advertised
	a.GC(now)
	assert.Contains(t, a.seqnos, state.FakeNodeId(1))
	assert.Equal(t, 2, a.GC(now.Add(state.TombstoneTTL+time.Second)))
	assert.NotContains(t, a.seqnos, state.FakeNodeId(1))
	assert.Contains(t, a.seqnos, state.FakeNodeId(2))
	assert.Len(t, a.Current(), 2)
}

func TestSnapshotIsImmutable(t *testing.T) {
	a := NewAdvertiser()
	a.Update((&Solution{Fakes: []state.FakeNode{{Id: state.FakeNodeId(1), Prefix: d1, Anchor: "r1", Forward: "r2"}}}).Advertisements(), time.Now())
	snap := a.Snapshot(false)
	a.WithdrawAll(time.Now())
	assert.Len(t, snap.Current, 2)
	assert.Empty(t, snap.Tombstones)
	final := a.Snapshot(true)
	assert.True(t, final.Final)
	assert.Empty(t, final.Current)
	assert.Len(t, final.Tombstones, 2)
}
