package core

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/encodeous/fibbing/state"
	"github.com/stretchr/testify/require"
)

var (
	d1 = netip.MustParsePrefix("10.0.1.0/24")
	d2 = netip.MustParsePrefix("10.0.2.0/24")
)

// sigcommTopology is the four router cycle used to demonstrate fibbing:
//
//	r2 ---1--- r3 (d1, d2)
//	|          |
//	10         1
//	|          |
//	r1 ---1--- r4
func sigcommTopology(t *testing.T) *state.Topology {
	t.Helper()
	return buildTopology(t,
		[]state.Link{
			{A: "r1", B: "r2", Cost: 10},
			{A: "r1", B: "r4", Cost: 1},
			{A: "r2", B: "r3", Cost: 1},
			{A: "r3", B: "r4", Cost: 1},
		},
		[]state.Subnet{
			{Prefix: d1, Router: "r3", Cost: 1},
			{Prefix: d2, Router: "r3", Cost: 1},
		})
}

func buildTopology(t *testing.T, links []state.Link, subnets []state.Subnet) *state.Topology {
	t.Helper()
	routers := make(map[state.RouterId]struct{})
	ops := make([]state.TopologyOp, 0)
	addRouter := func(r state.RouterId) {
		if _, ok := routers[r]; !ok {
			routers[r] = struct{}{}
			ops = append(ops, state.TopologyOp{Kind: state.AddRouter, Router: r})
		}
	}
	for _, l := range links {
		addRouter(l.A)
		addRouter(l.B)
	}
	for _, l := range links {
		ops = append(ops, state.TopologyOp{Kind: state.AddLink, Router: l.A, Peer: l.B, Cost: l.Cost})
	}
	for _, s := range subnets {
		addRouter(s.Router)
		ops = append(ops, state.TopologyOp{Kind: state.AddSubnet, Router: s.Router, Prefix: s.Prefix, Cost: s.Cost})
	}
	topo := state.NewTopology()
	_, _, err := topo.Apply(state.TopologyChange{Ops: ops})
	require.NoError(t, err)
	return topo
}

// randomTopology builds a connected graph with one /24 attached to every router
func randomTopology(t *testing.T, rng *rand.Rand, n int) *state.Topology {
	t.Helper()
	name := func(i int) state.RouterId {
		return state.RouterId(fmt.Sprintf("r%d", i))
	}
	seen := make(map[state.Pair[state.RouterId, state.RouterId]]struct{})
	links := make([]state.Link, 0)
	addLink := func(a, b int) {
		if a == b {
			return
		}
		key := state.MakeSortedPair(name(a), name(b))
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, state.Link{A: name(a), B: name(b), Cost: uint32(rng.IntN(10) + 1)})
	}
	for i := 1; i < n; i++ {
		addLink(i, rng.IntN(i))
	}
	for range n {
		addLink(rng.IntN(n), rng.IntN(n))
	}
	subnets := make([]state.Subnet, 0, n)
	for i := range n {
		subnets = append(subnets, state.Subnet{
			Prefix: netip.PrefixFrom(netip.AddrFrom4([4]byte{10, 1, byte(i), 0}), 24),
			Router: name(i),
			Cost:   uint32(rng.IntN(3)),
		})
	}
	return buildTopology(t, links, subnets)
}

// randomPath walks the topology without revisiting routers, and returns the path towards the subnet of its last router
func randomPath(rng *rand.Rand, topo *state.Topology) state.PathRequirement {
	routers := topo.Routers()
	cur := routers[rng.IntN(len(routers))]
	path := []state.RouterId{cur}
	visited := map[state.RouterId]struct{}{cur: {}}
	length := rng.IntN(len(routers)) + 1
	for len(path) < length {
		options := make([]state.RouterId, 0)
		for _, n := range topo.Neighbours(cur) {
			if _, ok := visited[n.V1]; !ok {
				options = append(options, n.V1)
			}
		}
		if len(options) == 0 {
			break
		}
		cur = options[rng.IntN(len(options))]
		visited[cur] = struct{}{}
		path = append(path, cur)
	}
	for _, s := range topo.Subnets() {
		if s.Router == cur {
			return state.PathRequirement{Prefix: s.Prefix, Path: path}
		}
	}
	panic("every router has a subnet")
}

// chainTopology needs two fake nodes to pin d1 onto a, b, c, d, e
//
//	a --10-- b --10-- c --10-- d --10-- e (d1, d2)
//	a --20-- e
//	b --20-- e
func chainTopology(t *testing.T) *state.Topology {
	t.Helper()
	return buildTopology(t,
		[]state.Link{
			{A: "a", B: "b", Cost: 10},
			{A: "b", B: "c", Cost: 10},
			{A: "c", B: "d", Cost: 10},
			{A: "d", B: "e", Cost: 10},
			{A: "a", B: "e", Cost: 20},
			{A: "b", B: "e", Cost: 20},
		},
		[]state.Subnet{
			{Prefix: d1, Router: "e"},
			{Prefix: d2, Router: "e"},
		})
}
