package core

import (
	"container/heap"
	"fmt"
	"net/netip"

	"github.com/encodeous/fibbing/state"
)

type edge struct {
	to   state.NodeId
	cost uint32
}

type stub struct {
	node state.NodeId
	cost uint32
}

// Graph is the link-state database as seen by real routers: real routers, fake nodes and the subnets they advertise
type Graph struct {
	adj   map[state.NodeId][]edge
	stubs map[netip.Prefix][]stub
	fakes map[state.NodeId]state.FakeNode
}

func NewGraph(topo *state.Topology, fakes []state.FakeNode) *Graph {
	g := &Graph{
		adj:   make(map[state.NodeId][]edge),
		stubs: make(map[netip.Prefix][]stub),
		fakes: make(map[state.NodeId]state.FakeNode),
	}
	for _, r := range topo.Routers() {
		for _, n := range topo.Neighbours(r) {
			g.adj[r.Node()] = append(g.adj[r.Node()], edge{n.V1.Node(), n.V2})
		}
	}
	for _, s := range topo.Subnets() {
		g.stubs[s.Prefix] = append(g.stubs[s.Prefix], stub{s.Router.Node(), s.Cost})
	}
	for _, f := range fakes {
		g.AddFake(f)
	}
	return g
}

func (g *Graph) AddFake(f state.FakeNode) {
	g.fakes[f.Id] = f
	g.adj[f.Anchor.Node()] = append(g.adj[f.Anchor.Node()], edge{f.Id, state.FakeLinkCost})
	g.adj[f.Id] = []edge{{f.Anchor.Node(), state.FakeLinkCost}}
	g.stubs[f.Prefix] = append(g.stubs[f.Prefix], stub{f.Id, f.StubCost})
}

// DropFakes removes every fake node advertising prefix
func (g *Graph) DropFakes(prefix netip.Prefix) {
	for id, f := range g.fakes {
		if f.Prefix != prefix {
			continue
		}
		delete(g.fakes, id)
		delete(g.adj, id)
		anchor := f.Anchor.Node()
		edges := g.adj[anchor][:0]
		for _, e := range g.adj[anchor] {
			if e.to != id {
				edges = append(edges, e)
			}
		}
		g.adj[anchor] = edges
	}
	stubs := g.stubs[prefix][:0]
	for _, s := range g.stubs[prefix] {
		if !s.node.IsFake() {
			stubs = append(stubs, s)
		}
	}
	g.stubs[prefix] = stubs
}

// SPF is the shortest path tree computed by a single router
type SPF struct {
	g     *Graph
	src   state.RouterId
	dist  map[state.NodeId]uint64
	first map[state.NodeId]state.NodeId
}

type Route struct {
	Prefix netip.Prefix
	Cost   uint64
	// NextHop is the real router packets are sent to, empty if the subnet is attached locally
	NextHop state.RouterId
	// Via is the node advertising the subnet
	Via state.NodeId
}

func (r Route) Local() bool {
	return r.NextHop == ""
}

func (r Route) String() string {
	if r.Local() {
		return fmt.Sprintf("%s local (cost: %d)", r.Prefix, r.Cost)
	}
	return fmt.Sprintf("%s nh %s via %s (cost: %d)", r.Prefix, r.NextHop, r.Via, r.Cost)
}

type spfItem struct {
	node  state.NodeId
	dist  uint64
	first state.NodeId
}

type spfQueue []spfItem

func (q spfQueue) Len() int { return len(q) }
func (q spfQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q spfQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *spfQueue) Push(x any)   { *q = append(*q, x.(spfItem)) }
func (q *spfQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// ShortestPaths runs Dijkstra from src. Equal cost paths are broken by the lowest first hop id.
// Fake nodes are never transit.
func (g *Graph) ShortestPaths(src state.RouterId) *SPF {
	s := &SPF{
		g:     g,
		src:   src,
		dist:  make(map[state.NodeId]uint64),
		first: make(map[state.NodeId]state.NodeId),
	}
	done := make(map[state.NodeId]struct{})
	q := &spfQueue{{node: src.Node()}}
	s.dist[src.Node()] = 0
	for q.Len() > 0 {
		cur := heap.Pop(q).(spfItem)
		if _, ok := done[cur.node]; ok {
			continue
		}
		done[cur.node] = struct{}{}
		if cur.node.IsFake() {
			continue
		}
		for _, e := range g.adj[cur.node] {
			if _, ok := done[e.to]; ok {
				continue
			}
			cand := s.dist[cur.node] + uint64(e.cost)
			first := s.first[cur.node]
			if cur.node == src.Node() {
				first = e.to
			}
			d, seen := s.dist[e.to]
			if !seen || cand < d || (cand == d && first < s.first[e.to]) {
				s.dist[e.to] = cand
				s.first[e.to] = first
				heap.Push(q, spfItem{node: e.to, dist: cand, first: first})
			}
		}
	}
	return s
}

// Dist returns the cost of the shortest path to n
func (s *SPF) Dist(n state.NodeId) (uint64, bool) {
	d, ok := s.dist[n]
	return d, ok
}

// RouteTo selects the route to prefix the source router installs
func (s *SPF) RouteTo(prefix netip.Prefix) (Route, bool) {
	var best Route
	var bestFirst state.NodeId
	found := false
	for _, st := range s.g.stubs[prefix] {
		d, ok := s.dist[st.node]
		if !ok {
			continue
		}
		total := d + uint64(st.cost)
		first := s.first[st.node]
		if found {
			if total > best.Cost {
				continue
			}
			if total == best.Cost && (first > bestFirst || first == bestFirst && st.node >= best.Via) {
				continue
			}
		}
		found = true
		bestFirst = first
		best = Route{Prefix: prefix, Cost: total, Via: st.node}
	}
	if !found {
		return Route{}, false
	}
	switch {
	case bestFirst == "":
		// attached to the source router
	case bestFirst.IsFake():
		best.NextHop = s.g.fakes[bestFirst].Forward
	default:
		best.NextHop = bestFirst.Router()
	}
	return best, true
}

// ForwardingPath follows next hops hop-by-hop from src until the subnet is delivered
func (g *Graph) ForwardingPath(src state.RouterId, prefix netip.Prefix) ([]state.RouterId, error) {
	path := []state.RouterId{src}
	seen := map[state.RouterId]struct{}{src: {}}
	cur := src
	for {
		route, ok := g.ShortestPaths(cur).RouteTo(prefix)
		if !ok {
			return path, fmt.Errorf("%s has no route to %s", cur, prefix)
		}
		if route.Local() {
			return path, nil
		}
		cur = route.NextHop
		path = append(path, cur)
		if _, ok := seen[cur]; ok {
			return path, fmt.Errorf("forwarding loop towards %s at %s", prefix, cur)
		}
		seen[cur] = struct{}{}
	}
}
