package state

import (
	"cmp"
	"fmt"
	"maps"
	"net/netip"
	"slices"

	"github.com/gaissmai/bart"
)

// Topology is the real network graph. It is owned by the main loop, the optimizer only ever sees clones.
type Topology struct {
	routers map[RouterId]struct{}
	adj     map[RouterId]map[RouterId]uint32
	subnets map[netip.Prefix]Subnet
	// egress resolves addresses to the subnet they belong to
	egress *bart.Table[Subnet]
}

func NewTopology() *Topology {
	return &Topology{
		routers: make(map[RouterId]struct{}),
		adj:     make(map[RouterId]map[RouterId]uint32),
		subnets: make(map[netip.Prefix]Subnet),
		egress:  new(bart.Table[Subnet]),
	}
}

func (t *Topology) Clone() *Topology {
	c := NewTopology()
	for r := range t.routers {
		c.routers[r] = struct{}{}
	}
	for r, n := range t.adj {
		c.adj[r] = maps.Clone(n)
	}
	for p, s := range t.subnets {
		c.subnets[p] = s
		c.egress.Insert(p, s)
	}
	return c
}

// Apply applies the change atomically. On failure, the topology is left untouched.
func (t *Topology) Apply(change TopologyChange) (prev, next *Topology, err error) {
	work := t.Clone()
	for _, op := range change.Ops {
		if err := work.apply(op); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrMalformedTopologyEvent, op, err)
		}
	}
	prev = t.Clone()
	*t = *work
	return prev, t.Clone(), nil
}

func (t *Topology) apply(op TopologyOp) error {
	switch op.Kind {
	case AddRouter:
		if err := NameValidator(string(op.Router)); err != nil {
			return err
		}
		t.routers[op.Router] = struct{}{}
	case RemoveRouter:
		if !t.HasRouter(op.Router) {
			return fmt.Errorf("unknown router %s", op.Router)
		}
		for n := range t.adj[op.Router] {
			delete(t.adj[n], op.Router)
		}
		delete(t.adj, op.Router)
		for p, s := range t.subnets {
			if s.Router == op.Router {
				t.removeSubnet(p)
			}
		}
		delete(t.routers, op.Router)
	case AddLink:
		if err := t.checkLinkEnds(op); err != nil {
			return err
		}
		if op.Cost == 0 || op.Cost >= LSInfinity {
			return fmt.Errorf("link cost %d out of range", op.Cost)
		}
		t.setLink(op.Router, op.Peer, op.Cost)
		t.setLink(op.Peer, op.Router, op.Cost)
	case RemoveLink:
		if err := t.checkLinkEnds(op); err != nil {
			return err
		}
		if _, ok := t.LinkCost(op.Router, op.Peer); !ok {
			return fmt.Errorf("no link between %s and %s", op.Router, op.Peer)
		}
		delete(t.adj[op.Router], op.Peer)
		delete(t.adj[op.Peer], op.Router)
	case AddSubnet:
		if !t.HasRouter(op.Router) {
			return fmt.Errorf("unknown router %s", op.Router)
		}
		if !op.Prefix.IsValid() {
			return fmt.Errorf("invalid prefix %s", op.Prefix)
		}
		if op.Cost >= LSInfinity {
			return fmt.Errorf("subnet cost %d out of range", op.Cost)
		}
		prefix := op.Prefix.Masked()
		if cur, ok := t.subnets[prefix]; ok && cur.Router != op.Router {
			return fmt.Errorf("%s is already attached to %s", prefix, cur.Router)
		}
		sub := Subnet{Prefix: prefix, Router: op.Router, Cost: op.Cost}
		t.subnets[prefix] = sub
		t.egress.Insert(prefix, sub)
	case RemoveSubnet:
		prefix := op.Prefix.Masked()
		cur, ok := t.subnets[prefix]
		if !ok {
			return fmt.Errorf("unknown subnet %s", op.Prefix)
		}
		if op.Router != "" && cur.Router != op.Router {
			return fmt.Errorf("%s is attached to %s, not %s", prefix, cur.Router, op.Router)
		}
		t.removeSubnet(prefix)
	default:
		return fmt.Errorf("unknown op %d", int(op.Kind))
	}
	return nil
}

func (t *Topology) checkLinkEnds(op TopologyOp) error {
	if !t.HasRouter(op.Router) {
		return fmt.Errorf("unknown router %s", op.Router)
	}
	if !t.HasRouter(op.Peer) {
		return fmt.Errorf("unknown router %s", op.Peer)
	}
	if op.Router == op.Peer {
		return fmt.Errorf("self link on %s", op.Router)
	}
	return nil
}

func (t *Topology) setLink(a, b RouterId, cost uint32) {
	n, ok := t.adj[a]
	if !ok {
		n = make(map[RouterId]uint32)
		t.adj[a] = n
	}
	n[b] = cost
}

func (t *Topology) removeSubnet(prefix netip.Prefix) {
	delete(t.subnets, prefix)
	t.egress.Delete(prefix)
}

func (t *Topology) HasRouter(r RouterId) bool {
	_, ok := t.routers[r]
	return ok
}

// Routers returns all routers in ascending order
func (t *Topology) Routers() []RouterId {
	return slices.Sorted(maps.Keys(t.routers))
}

// Neighbours returns the routers adjacent to r and the link costs, in ascending order
func (t *Topology) Neighbours(r RouterId) []Pair[RouterId, uint32] {
	out := make([]Pair[RouterId, uint32], 0, len(t.adj[r]))
	for n, c := range t.adj[r] {
		out = append(out, Pair[RouterId, uint32]{n, c})
	}
	slices.SortFunc(out, func(a, b Pair[RouterId, uint32]) int {
		return cmp.Compare(a.V1, b.V1)
	})
	return out
}

func (t *Topology) LinkCost(a, b RouterId) (uint32, bool) {
	c, ok := t.adj[a][b]
	return c, ok
}

// Links returns every real link once, sorted by endpoints
func (t *Topology) Links() []Link {
	out := make([]Link, 0)
	for a, n := range t.adj {
		for b, c := range n {
			if a < b {
				out = append(out, Link{A: a, B: b, Cost: c})
			}
		}
	}
	slices.SortFunc(out, func(x, y Link) int {
		return cmp.Or(cmp.Compare(x.A, y.A), cmp.Compare(x.B, y.B))
	})
	return out
}

func (t *Topology) Subnet(prefix netip.Prefix) (Subnet, bool) {
	s, ok := t.subnets[prefix.Masked()]
	return s, ok
}

// Subnets returns every attached subnet, sorted by prefix
func (t *Topology) Subnets() []Subnet {
	out := slices.Collect(maps.Values(t.subnets))
	slices.SortFunc(out, func(a, b Subnet) int {
		return ComparePrefix(a.Prefix, b.Prefix)
	})
	return out
}

// Resolve returns the longest matching subnet of addr
func (t *Topology) Resolve(addr netip.Addr) (Subnet, bool) {
	return t.egress.Lookup(addr)
}

// Egress returns the router that the longest matching subnet of addr is attached to
func (t *Topology) Egress(addr netip.Addr) (RouterId, bool) {
	s, ok := t.Resolve(addr)
	return s.Router, ok
}

// DiameterBound is an upper bound on the cost of any simple real path to any subnet
func (t *Topology) DiameterBound() uint64 {
	var total uint64
	for _, l := range t.Links() {
		total += uint64(l.Cost)
	}
	var stub uint32
	for _, s := range t.subnets {
		stub = max(stub, s.Cost)
	}
	return total + uint64(stub)
}

// Ops returns a change that rebuilds this topology from scratch
func (t *Topology) Ops() []TopologyOp {
	ops := make([]TopologyOp, 0)
	for _, r := range t.Routers() {
		ops = append(ops, TopologyOp{Kind: AddRouter, Router: r})
	}
	for _, l := range t.Links() {
		ops = append(ops, TopologyOp{Kind: AddLink, Router: l.A, Peer: l.B, Cost: l.Cost})
	}
	for _, s := range t.Subnets() {
		ops = append(ops, TopologyOp{Kind: AddSubnet, Router: s.Router, Prefix: s.Prefix, Cost: s.Cost})
	}
	return ops
}
