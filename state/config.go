package state

import (
	"net/netip"
	"slices"
	"time"
)

type LinkCfg struct {
	A    RouterId
	B    RouterId
	Cost uint32
}

type SubnetCfg struct {
	Prefix netip.Prefix
	Router RouterId
	Cost   uint32 `yaml:",omitempty"`
}

type RequirementCfg struct {
	Prefix netip.Prefix
	Path   []RouterId
}

// CentralCfg describes the real network and the requirements enforced on it
type CentralCfg struct {
	Routers      []RouterId
	Links        []LinkCfg
	Subnets      []SubnetCfg
	Requirements []RequirementCfg `yaml:",omitempty"`
}

// InjectionCfg is a router the controller keeps an adjacency with
type InjectionCfg struct {
	Router   RouterId
	Endpoint netip.AddrPort `yaml:",omitempty"` // address of the southbound agent of this router
	Cost     uint32         `yaml:",omitempty"` // cost of the link attaching the controller, defaults to InjectionCost
}

// LocalCfg represents controller-level configuration
type LocalCfg struct {
	Id        string         // unique id for this controller, used as the log prefix and in the southbound hello
	LogPath   string         `yaml:"log_path,omitempty"`  // if not empty, the controller will also log to this file
	Injection []InjectionCfg `yaml:"injection,omitempty"` // if empty, an adjacency is kept with every router
	RetryMin  *time.Duration `yaml:"retry_min,omitempty"` // initial adjacency retry delay
	RetryMax  *time.Duration `yaml:"retry_max,omitempty"` // maximum adjacency retry delay
	Socket    string         `yaml:"socket,omitempty"`    // if not empty, the controller can be inspected over this unix socket
}

// Change returns the topology change that builds the configured network from scratch
func (c *CentralCfg) Change() TopologyChange {
	ops := make([]TopologyOp, 0, len(c.Routers)+len(c.Links)+len(c.Subnets))
	for _, r := range c.Routers {
		ops = append(ops, TopologyOp{Kind: AddRouter, Router: r})
	}
	for _, l := range c.Links {
		ops = append(ops, TopologyOp{Kind: AddLink, Router: l.A, Peer: l.B, Cost: l.Cost})
	}
	for _, s := range c.Subnets {
		ops = append(ops, TopologyOp{Kind: AddSubnet, Router: s.Router, Prefix: s.Prefix, Cost: s.Cost})
	}
	return TopologyChange{Ops: ops}
}

// BuildTopology builds the configured network
func (c *CentralCfg) BuildTopology() (*Topology, error) {
	topo := NewTopology()
	_, _, err := topo.Apply(c.Change())
	if err != nil {
		return nil, err
	}
	return topo, nil
}

func (c *CentralCfg) PathRequirements() []PathRequirement {
	out := make([]PathRequirement, 0, len(c.Requirements))
	for _, r := range c.Requirements {
		out = append(out, PathRequirement{
			Prefix: r.Prefix.Masked(),
			Path:   slices.Clone(r.Path),
		})
	}
	return out
}

// InjectionPoints returns the configured injection points with defaults applied
func (l *LocalCfg) InjectionPoints(routers []RouterId) []InjectionCfg {
	points := slices.Clone(l.Injection)
	if len(points) == 0 {
		for _, r := range routers {
			points = append(points, InjectionCfg{Router: r})
		}
	}
	for i := range points {
		if points[i].Cost == 0 {
			points[i].Cost = InjectionCost
		}
	}
	return points
}

func (l *LocalCfg) RetryBounds() (time.Duration, time.Duration) {
	lo, hi := AdjacencyRetryMin, AdjacencyRetryMax
	if l.RetryMin != nil {
		lo = *l.RetryMin
	}
	if l.RetryMax != nil {
		hi = *l.RetryMax
	}
	return lo, max(lo, hi)
}
