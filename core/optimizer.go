package core

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"

	"github.com/encodeous/fibbing/state"
)

// Optimizer computes the fake topology that steers real routers along the required paths
type Optimizer interface {
	Solve(topo *state.Topology, reqs []state.PathRequirement, arena *state.FakeArena) (*Solution, error)
}

type Solution struct {
	Fakes []state.FakeNode
	// Failures holds requirements that could not be enforced, the others are still part of the solution
	Failures map[netip.Prefix]error
}

// Advertisements returns the link-state records describing the fake topology
func (s *Solution) Advertisements() map[state.AdvKey]state.Advertisement {
	out := make(map[state.AdvKey]state.Advertisement, len(s.Fakes)*2)
	for _, f := range s.Fakes {
		link := state.Advertisement{
			AdvKey:  state.AdvKey{Origin: f.Id, Neighbor: string(f.Anchor)},
			Cost:    state.FakeLinkCost,
			Forward: f.Forward,
		}
		prefix := state.Advertisement{
			AdvKey: state.AdvKey{Origin: f.Id, Neighbor: f.Prefix.String()},
			Cost:   f.StubCost,
		}
		out[link.AdvKey] = link
		out[prefix.AdvKey] = prefix
	}
	return out
}

// FakesFor returns the fake nodes supporting prefix
func (s *Solution) FakesFor(prefix netip.Prefix) []state.FakeNode {
	out := make([]state.FakeNode, 0)
	for _, f := range s.Fakes {
		if f.Prefix == prefix {
			out = append(out, f)
		}
	}
	return out
}

// OSPFSimple places at most one fake node on each router of a required path.
//
// The path is walked from the egress back to the ingress. A router that does not already
// forward to its successor gets a fake node anchored on it, forwarding to the successor,
// and advertising the subnet one unit cheaper than the router's current best route.
// The fake node must not be so cheap that a router further down the path turns back towards it.
type OSPFSimple struct{}

func (o OSPFSimple) Solve(topo *state.Topology, reqs []state.PathRequirement, arena *state.FakeArena) (*Solution, error) {
	reqs = slices.Clone(reqs)
	for i := range reqs {
		reqs[i].Prefix = reqs[i].Prefix.Masked()
	}
	slices.SortFunc(reqs, func(a, b state.PathRequirement) int {
		return state.ComparePrefix(a.Prefix, b.Prefix)
	})
	g := NewGraph(topo, nil)
	sol := &Solution{
		Fakes:    make([]state.FakeNode, 0),
		Failures: make(map[netip.Prefix]error),
	}
	for _, req := range reqs {
		fakes, err := o.solveOne(topo, g, req, arena)
		if err != nil {
			g.DropFakes(req.Prefix)
			sol.Failures[req.Prefix] = err
			continue
		}
		sol.Fakes = append(sol.Fakes, fakes...)
	}
	for _, req := range reqs {
		if _, failed := sol.Failures[req.Prefix]; failed {
			continue
		}
		if err := verifyRequirement(topo, g, req); err != nil {
			// fake nodes only carry their own prefix, the other requirements are unaffected
			g.DropFakes(req.Prefix)
			sol.Fakes = slices.DeleteFunc(sol.Fakes, func(f state.FakeNode) bool {
				return f.Prefix == req.Prefix
			})
			sol.Failures[req.Prefix] = unsatisfiable(req, "verification failed: %v", err)
		}
	}
	slices.SortFunc(sol.Fakes, func(a, b state.FakeNode) int {
		return cmp.Compare(a.Id, b.Id)
	})
	arena.Commit()
	return sol, nil
}

func unsatisfiable(req state.PathRequirement, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", state.ErrUnsatisfiablePath, req, fmt.Sprintf(format, args...))
}

func (o OSPFSimple) solveOne(topo *state.Topology, g *Graph, req state.PathRequirement, arena *state.FakeArena) ([]state.FakeNode, error) {
	path := req.Path
	if len(path) == 0 {
		return nil, unsatisfiable(req, "empty path")
	}
	for _, r := range path {
		if !topo.HasRouter(r) {
			return nil, unsatisfiable(req, "router %s does not exist", r)
		}
	}
	sub, ok := topo.Subnet(req.Prefix)
	if !ok {
		return nil, unsatisfiable(req, "destination is not attached")
	}
	if sub.Router != req.Egress() {
		return nil, unsatisfiable(req, "destination is attached to %s", sub.Router)
	}
	for i := 0; i+1 < len(path); i++ {
		if _, ok := topo.LinkCost(path[i], path[i+1]); !ok {
			return nil, unsatisfiable(req, "no link from %s to %s", path[i], path[i+1])
		}
	}

	fakes := make([]state.FakeNode, 0)
	for i := len(path) - 2; i >= 0; i-- {
		cur, next := path[i], path[i+1]
		route, ok := g.ShortestPaths(cur).RouteTo(req.Prefix)
		if !ok {
			return nil, unsatisfiable(req, "%s cannot reach the destination", cur)
		}
		if route.NextHop == next {
			continue
		}
		// lowest distance cur may advertise without a downstream router preferring to go back through cur
		lo := uint64(state.FakeLinkCost)
		for _, down := range path[i+1:] {
			spf := g.ShortestPaths(down)
			dr, _ := spf.RouteTo(req.Prefix)
			back, ok := spf.Dist(cur.Node())
			if !ok {
				return nil, unsatisfiable(req, "%s cannot reach %s", down, cur)
			}
			if dr.Cost >= back {
				lo = max(lo, dr.Cost-back+1)
			}
		}
		if route.Cost == 0 || route.Cost-1 < lo {
			return nil, unsatisfiable(req, "%s cannot be steered to %s without diverting downstream routers", cur, next)
		}
		target := route.Cost - 1
		f := state.FakeNode{
			Id:       arena.Get(state.FakeKey{Prefix: req.Prefix, Anchor: cur, Forward: next}),
			Prefix:   req.Prefix,
			Anchor:   cur,
			Forward:  next,
			StubCost: uint32(target - uint64(state.FakeLinkCost)),
		}
		g.AddFake(f)
		fakes = append(fakes, f)
	}
	return fakes, nil
}

// verifyRequirement checks that every router on the path forwards to its successor, and that no router loops
func verifyRequirement(topo *state.Topology, g *Graph, req state.PathRequirement) error {
	for i, r := range req.Path {
		route, ok := g.ShortestPaths(r).RouteTo(req.Prefix)
		if !ok {
			return fmt.Errorf("%s has no route", r)
		}
		if i == len(req.Path)-1 {
			if !route.Local() {
				return fmt.Errorf("egress %s forwards to %s", r, route.NextHop)
			}
			continue
		}
		if route.NextHop != req.Path[i+1] {
			return fmt.Errorf("%s forwards to %s instead of %s", r, route.NextHop, req.Path[i+1])
		}
	}
	for _, r := range topo.Routers() {
		if _, ok := g.ShortestPaths(r).RouteTo(req.Prefix); !ok {
			continue // partitioned from the egress
		}
		if _, err := g.ForwardingPath(r, req.Prefix); err != nil {
			return err
		}
	}
	return nil
}
