package state

import (
	"cmp"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// RouterId identifies a real router, typically its loopback address.
type RouterId string

// NodeId identifies a vertex of the advertised graph, either a real router or a fake node.
type NodeId string

const fakePrefix = "fake:"

func FakeNodeId(n uint64) NodeId {
	return NodeId(fakePrefix + strconv.FormatUint(n, 10))
}

func (n NodeId) IsFake() bool {
	return strings.HasPrefix(string(n), fakePrefix)
}

func (n NodeId) Router() RouterId {
	if n.IsFake() {
		panic("fake node " + string(n) + " is not a router")
	}
	return RouterId(n)
}

func (r RouterId) Node() NodeId {
	return NodeId(r)
}

// ComparePrefix orders prefixes by address, then by length
func ComparePrefix(a, b netip.Prefix) int {
	return cmp.Or(a.Addr().Compare(b.Addr()), cmp.Compare(a.Bits(), b.Bits()))
}

type Link struct {
	A, B RouterId
	Cost uint32
}

// Key returns the link endpoints in canonical order
func (l Link) Key() Pair[RouterId, RouterId] {
	return MakeSortedPair(l.A, l.B)
}

func (l Link) String() string {
	return fmt.Sprintf("%s <-> %s (%d)", l.A, l.B, l.Cost)
}

// Subnet is a destination network attached to exactly one router
type Subnet struct {
	Prefix netip.Prefix
	Router RouterId
	Cost   uint32
}

type FakeNode struct {
	Id     NodeId
	Prefix netip.Prefix
	// Anchor is the real router the fake node is attached to
	Anchor RouterId
	// Forward is where Anchor actually sends traffic it routes through this node
	Forward  RouterId
	StubCost uint32
}

func (f FakeNode) String() string {
	return fmt.Sprintf("%s (anchor: %s, fwd: %s, prefix: %s, stub: %d)", f.Id, f.Anchor, f.Forward, f.Prefix, f.StubCost)
}

type PathRequirement struct {
	Prefix netip.Prefix
	Path   []RouterId
}

func (p PathRequirement) Ingress() RouterId {
	return p.Path[0]
}

func (p PathRequirement) Egress() RouterId {
	return p.Path[len(p.Path)-1]
}

func (p PathRequirement) String() string {
	hops := make([]string, 0, len(p.Path))
	for _, r := range p.Path {
		hops = append(hops, string(r))
	}
	return fmt.Sprintf("%s via [%s]", p.Prefix, strings.Join(hops, ", "))
}

type AdvKey struct {
	Origin   NodeId
	Neighbor string // router id or prefix
}

func (k AdvKey) Compare(o AdvKey) int {
	return cmp.Or(cmp.Compare(k.Origin, o.Origin), cmp.Compare(k.Neighbor, o.Neighbor))
}

// Advertisement is a single link-state record of the fake topology
type Advertisement struct {
	AdvKey
	Cost    uint32
	Forward RouterId
}

// LSA is an Advertisement as sent southbound
type LSA struct {
	Advertisement
	Seqno uint32
}

func (l LSA) IsWithdrawal() bool {
	return l.Cost == LSInfinity
}

func (l LSA) String() string {
	if l.IsWithdrawal() {
		return fmt.Sprintf("(%s -> %s withdrawn, seqno: %#x)", l.Origin, l.Neighbor, l.Seqno)
	}
	if l.Forward != "" {
		return fmt.Sprintf("(%s -> %s cost: %d, fwd: %s, seqno: %#x)", l.Origin, l.Neighbor, l.Cost, l.Forward, l.Seqno)
	}
	return fmt.Sprintf("(%s -> %s cost: %d, seqno: %#x)", l.Origin, l.Neighbor, l.Cost, l.Seqno)
}

// Source identifies a topology report by its originating router and sequence number
type Source struct {
	Origin RouterId
	Seqno  uint32
}

func (s Source) IsZero() bool {
	return s.Origin == ""
}

type OpKind int

const (
	AddRouter OpKind = iota
	RemoveRouter
	AddLink
	RemoveLink
	AddSubnet
	RemoveSubnet
)

func (k OpKind) String() string {
	switch k {
	case AddRouter:
		return "add-router"
	case RemoveRouter:
		return "remove-router"
	case AddLink:
		return "add-link"
	case RemoveLink:
		return "remove-link"
	case AddSubnet:
		return "add-subnet"
	case RemoveSubnet:
		return "remove-subnet"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// TopologyOp is a single real topology mutation.
// Router is always set; Peer and Cost are used by link ops, Prefix and Cost by subnet ops.
type TopologyOp struct {
	Kind   OpKind
	Router RouterId
	Peer   RouterId
	Prefix netip.Prefix
	Cost   uint32
}

func (o TopologyOp) String() string {
	switch o.Kind {
	case AddLink, RemoveLink:
		return fmt.Sprintf("%s %s <-> %s (%d)", o.Kind, o.Router, o.Peer, o.Cost)
	case AddSubnet, RemoveSubnet:
		return fmt.Sprintf("%s %s @ %s (%d)", o.Kind, o.Prefix, o.Router, o.Cost)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Router)
}

// TopologyChange is applied atomically
type TopologyChange struct {
	Source Source
	Ops    []TopologyOp
}
