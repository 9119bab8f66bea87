package state

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
)

// Registry holds the path requirements declared by the administrator, at most one per subnet.
type Registry struct {
	reqs map[netip.Prefix]PathRequirement
}

func NewRegistry() *Registry {
	return &Registry{reqs: make(map[netip.Prefix]PathRequirement)}
}

// ValidateRequirement checks that req describes a simple path of existing routers ending at the router req.Prefix is attached to
func ValidateRequirement(topo *Topology, req PathRequirement) error {
	if !req.Prefix.IsValid() {
		return fmt.Errorf("%w: invalid prefix %s", ErrInvalidRequirement, req.Prefix)
	}
	if len(req.Path) == 0 {
		return fmt.Errorf("%w: empty path for %s", ErrInvalidRequirement, req.Prefix)
	}
	seen := make(map[RouterId]struct{}, len(req.Path))
	for _, r := range req.Path {
		if !topo.HasRouter(r) {
			return fmt.Errorf("%w: unknown router %s in path for %s", ErrInvalidRequirement, r, req.Prefix)
		}
		if _, ok := seen[r]; ok {
			return fmt.Errorf("%w: path for %s visits %s twice", ErrInvalidRequirement, req.Prefix, r)
		}
		seen[r] = struct{}{}
	}
	sub, ok := topo.Subnet(req.Prefix)
	if !ok {
		return fmt.Errorf("%w: %s is not attached to any router", ErrInvalidRequirement, req.Prefix)
	}
	if sub.Router != req.Egress() {
		return fmt.Errorf("%w: %s is attached to %s, but the path ends at %s", ErrInvalidRequirement, req.Prefix, sub.Router, req.Egress())
	}
	return nil
}

// Add registers req. The registry is left unchanged if req is invalid or conflicts with an existing requirement.
// It returns true if the registry changed.
func (r *Registry) Add(topo *Topology, req PathRequirement) (bool, error) {
	req.Prefix = req.Prefix.Masked()
	if err := ValidateRequirement(topo, req); err != nil {
		return false, err
	}
	if cur, ok := r.reqs[req.Prefix]; ok {
		if slices.Equal(cur.Path, req.Path) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s is already registered as %s", ErrConflictingRequirement, req, cur)
	}
	req.Path = slices.Clone(req.Path)
	r.reqs[req.Prefix] = req
	return true, nil
}

// Remove is idempotent, it returns true if a requirement was removed
func (r *Registry) Remove(prefix netip.Prefix) bool {
	prefix = prefix.Masked()
	_, ok := r.reqs[prefix]
	delete(r.reqs, prefix)
	return ok
}

func (r *Registry) Get(prefix netip.Prefix) (PathRequirement, bool) {
	req, ok := r.reqs[prefix.Masked()]
	return req, ok
}

func (r *Registry) Len() int {
	return len(r.reqs)
}

// All returns a copy of every requirement, sorted by prefix
func (r *Registry) All() []PathRequirement {
	out := make([]PathRequirement, 0, len(r.reqs))
	for _, p := range slices.SortedFunc(maps.Keys(r.reqs), ComparePrefix) {
		req := r.reqs[p]
		req.Path = slices.Clone(req.Path)
		out = append(out, req)
	}
	return out
}
