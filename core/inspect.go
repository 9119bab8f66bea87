package core

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/encodeous/fibbing/state"
)

// Trace follows the forwarding path of addr from src over the real topology and fakes
func Trace(topo *state.Topology, fakes []state.FakeNode, src state.RouterId, addr netip.Addr) ([]state.RouterId, error) {
	sub, ok := topo.Resolve(addr)
	if !ok {
		return nil, fmt.Errorf("no subnet contains %s", addr)
	}
	if !topo.HasRouter(src) {
		return nil, fmt.Errorf("unknown router %s", src)
	}
	return NewGraph(topo, fakes).ForwardingPath(src, sub.Prefix)
}

func joinHops(hops []state.RouterId) string {
	s := make([]string, 0, len(hops))
	for _, h := range hops {
		s = append(s, string(h))
	}
	return strings.Join(s, " -> ")
}

// DescribeSolution renders the fake nodes of sol, the forwarding path of every requirement and the resulting route table
func DescribeSolution(topo *state.Topology, reqs []state.PathRequirement, sol *Solution) string {
	sb := strings.Builder{}
	sb.WriteString("Fake Nodes:\n")
	rt := make([]string, 0)
	for _, f := range sol.Fakes {
		rt = append(rt, fmt.Sprintf(" - %s", f))
	}
	if len(rt) == 0 {
		rt = append(rt, "   (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	sb.WriteString("\n\nRequirements:\n")
	g := NewGraph(topo, sol.Fakes)
	rt = make([]string, 0)
	for _, req := range reqs {
		rt = append(rt, fmt.Sprintf(" - %s", req))
		if err, failed := sol.Failures[req.Prefix]; failed {
			rt = append(rt, fmt.Sprintf("   Not enforced: %s", err))
			continue
		}
		path, err := g.ForwardingPath(req.Ingress(), req.Prefix)
		if err != nil {
			rt = append(rt, fmt.Sprintf("   Broken: %s", err))
			continue
		}
		rt = append(rt, fmt.Sprintf("   Forwarding: %s", joinHops(path)))
	}
	if len(reqs) == 0 {
		rt = append(rt, "   (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	sb.WriteString("\n\nRoute Table:\n")
	rt = make([]string, 0)
	for _, r := range topo.Routers() {
		spf := g.ShortestPaths(r)
		for _, s := range topo.Subnets() {
			if route, ok := spf.RouteTo(s.Prefix); ok {
				rt = append(rt, fmt.Sprintf(" - %s: %s", r, route))
			}
		}
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")
	return sb.String()
}

// Inspect renders the controller state. It must run on the main loop.
func Inspect(s *state.State) string {
	sb := strings.Builder{}

	sb.WriteString("Topology:\n")
	rt := make([]string, 0)
	for _, l := range s.Topology.Links() {
		rt = append(rt, fmt.Sprintf(" - %s", l))
	}
	for _, sub := range s.Topology.Subnets() {
		rt = append(rt, fmt.Sprintf(" - %s at %s (cost: %d)", sub.Prefix, sub.Router, sub.Cost))
	}
	if len(rt) == 0 {
		rt = append(rt, "   (empty)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	reqs := s.Registry.All()
	c, running := s.Modules[moduleName[*Controller]()].(*Controller)
	if !running {
		sb.WriteString("\n\nRequirements:\n")
		rt = make([]string, 0)
		for _, req := range reqs {
			rt = append(rt, fmt.Sprintf(" - %s", req))
		}
		if len(rt) == 0 {
			rt = append(rt, "   (none)")
		}
		sb.WriteString(strings.Join(rt, "\n") + "\n")
		return sb.String()
	}

	sb.WriteString("\n\n")
	sb.WriteString(DescribeSolution(s.Topology, reqs, c.Solution()))

	sb.WriteString("\n\nAdvertised Records:\n")
	rt = make([]string, 0)
	for _, lsa := range c.Advertised() {
		rt = append(rt, fmt.Sprintf(" - %s", lsa))
	}
	if len(rt) == 0 {
		rt = append(rt, "   (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")
	sb.WriteString(fmt.Sprintf("   Version: %d, Tombstones: %d\n", c.adv.Version(), c.adv.Tombstones()))
	if c.lastErr != nil {
		sb.WriteString(fmt.Sprintf("   Last recomputation failed: %s\n", c.lastErr))
	}

	sb.WriteString("\n\nAdjacencies:\n")
	rt = make([]string, 0)
	for _, st := range Get[*Southbound](s).Status() {
		rt = append(rt, fmt.Sprintf(" - %s: %s (session: %s, version: %d, held: %d)", st.Router, st.State, st.Session, st.Version, st.Held))
	}
	if len(rt) == 0 {
		rt = append(rt, "   (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	if n := len(c.Solution().Failures); n > 0 {
		sb.WriteString(fmt.Sprintf("\n%d requirement(s) not enforced\n", n))
	}
	return sb.String()
}
