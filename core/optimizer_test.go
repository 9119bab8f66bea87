package core

import (
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/encodeous/fibbing/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solve(t *testing.T, topo *state.Topology, arena *state.FakeArena, reqs ...state.PathRequirement) *Solution {
	t.Helper()
	sol, err := OSPFSimple{}.Solve(topo, reqs, arena)
	require.NoError(t, err)
	return sol
}

func TestSolveSteersIngress(t *testing.T) {
	topo := sigcommTopology(t)
	sol := solve(t, topo, state.NewFakeArena(), state.PathRequirement{
		Prefix: d1,
		Path:   []state.RouterId{"r1", "r2", "r3"},
	})
	assert.Empty(t, sol.Failures)
	assert.Equal(t, []state.FakeNode{{
		Id:       state.FakeNodeId(1),
		Prefix:   d1,
		Anchor:   "r1",
		Forward:  "r2",
		StubCost: 1,
	}}, sol.Fakes)

	g := NewGraph(topo, sol.Fakes)
	route, ok := g.ShortestPaths("r1").RouteTo(d1)
	require.True(t, ok)
	assert.Equal(t, state.RouterId("r2"), route.NextHop)
	assert.Equal(t, uint64(2), route.Cost)

	path, err := g.ForwardingPath("r1", d1)
	require.NoError(t, err)
	assert.Equal(t, []state.RouterId{"r1", "r2", "r3"}, path)

	// other routers keep their routes
	path, err = g.ForwardingPath("r4", d1)
	require.NoError(t, err)
	assert.Equal(t, []state.RouterId{"r4", "r3"}, path)
	path, err = g.ForwardingPath("r2", d1)
	require.NoError(t, err)
	assert.Equal(t, []state.RouterId{"r2", "r3"}, path)
}

func TestSolveLeavesUnrelatedSubnets(t *testing.T) {
	topo := sigcommTopology(t)
	sol := solve(t, topo, state.NewFakeArena(), state.PathRequirement{
		Prefix: d1,
		Path:   []state.RouterId{"r1", "r2", "r3"},
	})
	base := NewGraph(topo, nil)
	fibbed := NewGraph(topo, sol.Fakes)
	for _, r := range topo.Routers() {
		want, _ := base.ShortestPaths(r).RouteTo(d2)
		got, _ := fibbed.ShortestPaths(r).RouteTo(d2)
		assert.Equal(t, want, got, "route of %s", r)
	}
}

func TestSolveAlreadySatisfied(t *testing.T) {
	topo := sigcommTopology(t)
	sol := solve(t, topo, state.NewFakeArena(), state.PathRequirement{
		Prefix: d2,
		Path:   []state.RouterId{"r1", "r4", "r3"},
	})
	assert.Empty(t, sol.Fakes)
	assert.Empty(t, sol.Failures)
	assert.Empty(t, sol.Advertisements())
}

func TestSolveSingleRouterPath(t *testing.T) {
	sol := solve(t, sigcommTopology(t), state.NewFakeArena(), state.PathRequirement{
		Prefix: d1,
		Path:   []state.RouterId{"r3"},
	})
	assert.Empty(t, sol.Fakes)
	assert.Empty(t, sol.Failures)
}

func TestSolveIsIdempotent(t *testing.T) {
	topo := chainTopology(t)
	arena := state.NewFakeArena()
	reqs := []state.PathRequirement{
		{Prefix: d1, Path: []state.RouterId{"a", "b", "c", "d", "e"}},
		{Prefix: d2, Path: []state.RouterId{"b", "c", "d", "e"}},
	}
	first := solve(t, topo, arena, reqs...)
	second := solve(t, topo, arena, reqs...)
	if diff := cmp.Diff(first.Advertisements(), second.Advertisements()); diff != "" {
		t.Errorf("recompute changed advertisements (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.Fakes, second.Fakes)
}

func TestSolveReusesIdsOfUnchangedRequirements(t *testing.T) {
	topo := chainTopology(t)
	arena := state.NewFakeArena()
	r1 := state.PathRequirement{Prefix: d1, Path: []state.RouterId{"a", "b", "c", "d", "e"}}
	r2 := state.PathRequirement{Prefix: d2, Path: []state.RouterId{"b", "c", "d", "e"}}

	both := solve(t, topo, arena, r1, r2)
	require.Len(t, both.FakesFor(d2), 1)
	only := solve(t, topo, arena, r1)
	assert.Equal(t, both.FakesFor(d1), only.Fakes)

	// a withdrawn role gets a fresh id when it comes back
	again := solve(t, topo, arena, r1, r2)
	for _, f := range again.FakesFor(d2) {
		for _, old := range both.FakesFor(d2) {
			assert.NotEqual(t, old.Id, f.Id)
		}
	}
}

func TestSolveMultiHopPath(t *testing.T) {
	topo := chainTopology(t)
	sol := solve(t, topo, state.NewFakeArena(), state.PathRequirement{
		Prefix: d1,
		Path:   []state.RouterId{"a", "b", "c", "d", "e"},
	})
	require.Empty(t, sol.Failures)
	assert.Equal(t, []state.FakeNode{
		{Id: state.FakeNodeId(1), Prefix: d1, Anchor: "b", Forward: "c", StubCost: 18},
		{Id: state.FakeNodeId(2), Prefix: d1, Anchor: "a", Forward: "b", StubCost: 18},
	}, sol.Fakes)

	g := NewGraph(topo, sol.Fakes)
	path, err := g.ForwardingPath("a", d1)
	require.NoError(t, err)
	assert.Equal(t, []state.RouterId{"a", "b", "c", "d", "e"}, path)
	path, err = g.ForwardingPath("a", d2)
	require.NoError(t, err)
	assert.Equal(t, []state.RouterId{"a", "e"}, path)
}

func TestSolveUnsatisfiable(t *testing.T) {
	topo := sigcommTopology(t)
	cases := []struct {
		name string
		req  state.PathRequirement
	}{
		{"no link", state.PathRequirement{Prefix: d1, Path: []state.RouterId{"r1", "r3"}}},
		{"wrong egress", state.PathRequirement{Prefix: d1, Path: []state.RouterId{"r1", "r2"}}},
		{"unknown router", state.PathRequirement{Prefix: d1, Path: []state.RouterId{"r9", "r3"}}},
		{"detached subnet", state.PathRequirement{Prefix: netip.MustParsePrefix("10.9.0.0/16"), Path: []state.RouterId{"r3"}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sol := solve(t, topo, state.NewFakeArena(), c.req)
			assert.ErrorIs(t, sol.Failures[c.req.Prefix.Masked()], state.ErrUnsatisfiablePath)
			assert.Empty(t, sol.Fakes)
		})
	}
}

func TestSolveRefusesToDivertDownstream(t *testing.T) {
	// b would need a distance below its own stub distance through c
	topo := buildTopology(t,
		[]state.Link{
			{A: "a", B: "b", Cost: 1},
			{A: "b", B: "c", Cost: 1},
			{A: "a", B: "c", Cost: 5},
		},
		[]state.Subnet{{Prefix: d1, Router: "c"}, {Prefix: d2, Router: "c"}})
	bad := state.PathRequirement{Prefix: d1, Path: []state.RouterId{"b", "a", "c"}}
	good := state.PathRequirement{Prefix: d2, Path: []state.RouterId{"a", "b", "c"}}
	sol := solve(t, topo, state.NewFakeArena(), bad, good)

	require.Len(t, sol.Failures, 1)
	assert.ErrorIs(t, sol.Failures[d1], state.ErrUnsatisfiablePath)
	assert.Empty(t, sol.FakesFor(d1))

	path, err := NewGraph(topo, sol.Fakes).ForwardingPath("a", d2)
	require.NoError(t, err)
	assert.Equal(t, []state.RouterId{"a", "b", "c"}, path)
}

func TestSolveNeverMutatesTopology(t *testing.T) {
	topo := sigcommTopology(t)
	before := topo.Clone()
	solve(t, topo, state.NewFakeArena(), state.PathRequirement{Prefix: d1, Path: []state.RouterId{"r1", "r2", "r3"}})
	assert.Equal(t, before.Links(), topo.Links())
	assert.Equal(t, before.Subnets(), topo.Subnets())
	assert.Equal(t, before.Routers(), topo.Routers())
}

func TestSolveRandomTopologies(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1337))
	satisfied := 0
	for trial := range 300 {
		topo := randomTopology(t, rng, 4+rng.IntN(6))
		req := randomPath(rng, topo)
		arena := state.NewFakeArena()
		sol, err := OSPFSimple{}.Solve(topo, []state.PathRequirement{req}, arena)
		require.NoError(t, err, "trial %d: %s", trial, req)
		if ferr, failed := sol.Failures[req.Prefix]; failed {
			require.ErrorIs(t, ferr, state.ErrUnsatisfiablePath)
			require.Empty(t, sol.Fakes)
			continue
		}
		satisfied++

		g := NewGraph(topo, sol.Fakes)
		path, err := g.ForwardingPath(req.Ingress(), req.Prefix)
		require.NoError(t, err, "trial %d", trial)
		require.Equal(t, req.Path, path, "trial %d", trial)

		base := NewGraph(topo, nil)
		for _, r := range topo.Routers() {
			_, err := g.ForwardingPath(r, req.Prefix)
			require.NoError(t, err, "trial %d: loop from %s", trial, r)
			for _, s := range topo.Subnets() {
				if s.Prefix == req.Prefix {
					continue
				}
				want, _ := base.ShortestPaths(r).RouteTo(s.Prefix)
				got, _ := g.ShortestPaths(r).RouteTo(s.Prefix)
				require.Equal(t, want, got, "trial %d: %s towards %s", trial, r, s.Prefix)
			}
		}

		again, err := OSPFSimple{}.Solve(topo, []state.PathRequirement{req}, arena)
		require.NoError(t, err)
		if diff := cmp.Diff(sol.Advertisements(), again.Advertisements()); diff != "" {
			t.Fatalf("trial %d: recompute churned (-first +second):\n%s", trial, diff)
		}
	}
	assert.Positive(t, satisfied)
}

func TestSolveRequirementsAreIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 9))
	for trial := range 500 {
		topo := randomTopology(t, rng, 6+rng.IntN(6))
		a, b := randomPath(rng, topo), randomPath(rng, topo)
		if a.Prefix == b.Prefix {
			continue
		}
		both, err := OSPFSimple{}.Solve(topo, []state.PathRequirement{a, b}, state.NewFakeArena())
		require.NoError(t, err, "trial %d", trial)
		g := NewGraph(topo, both.Fakes)
		for _, req := range []state.PathRequirement{a, b} {
			alone := solve(t, topo, state.NewFakeArena(), req)
			_, failedAlone := alone.Failures[req.Prefix]
			ferr, failed := both.Failures[req.Prefix]
			require.Equal(t, failedAlone, failed, "trial %d: %s", trial, req)
			if failed {
				require.ErrorIs(t, ferr, state.ErrUnsatisfiablePath)
				require.Empty(t, both.FakesFor(req.Prefix))
				continue
			}
			require.Len(t, both.FakesFor(req.Prefix), len(alone.Fakes), "trial %d: %s", trial, req)
			path, err := g.ForwardingPath(req.Ingress(), req.Prefix)
			require.NoError(t, err, "trial %d", trial)
			require.Equal(t, req.Path, path, "trial %d", trial)
		}
	}
}

func TestSolveMasksPrefix(t *testing.T) {
	topo := sigcommTopology(t)
	req := state.PathRequirement{Prefix: netip.MustParsePrefix("10.0.1.7/24"), Path: []state.RouterId{"r1", "r2", "r3"}}
	sol := solve(t, topo, state.NewFakeArena(), req)
	assert.Empty(t, sol.Failures)
	require.Len(t, sol.FakesFor(d1), 1)

	path, err := NewGraph(topo, sol.Fakes).ForwardingPath("r1", d1)
	require.NoError(t, err)
	assert.Equal(t, []state.RouterId{"r1", "r2", "r3"}, path)
}

func TestAdvertisementsOfFakeNode(t *testing.T) {
	sol := &Solution{Fakes: []state.FakeNode{{
		Id: state.FakeNodeId(3), Prefix: d1, Anchor: "r1", Forward: "r2", StubCost: 4,
	}}}
	want := map[state.AdvKey]state.Advertisement{
		{Origin: "fake:3", Neighbor: "r1"}: {
			AdvKey:  state.AdvKey{Origin: "fake:3", Neighbor: "r1"},
			Cost:    state.FakeLinkCost,
			Forward: "r2",
		},
		{Origin: "fake:3", Neighbor: "10.0.1.0/24"}: {
			AdvKey: state.AdvKey{Origin: "fake:3", Neighbor: "10.0.1.0/24"},
			Cost:   4,
		},
	}
	if diff := cmp.Diff(want, sol.Advertisements()); diff != "" {
		t.Errorf("advertisements (-want +got):\n%s", diff)
	}
}
