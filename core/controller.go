package core

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/fibbing/perf"
	"github.com/encodeous/fibbing/state"
	"github.com/jellydator/ttlcache/v3"
)

// Controller is the coordinator. It is the only writer of the topology, the registry and the advertised fake topology.
type Controller struct {
	Optimizer Optimizer
	arena     *state.FakeArena
	adv       *Advertiser
	solution  *Solution
	// dedup suppresses a topology report received over several adjacencies
	dedup   *ttlcache.Cache[state.Source, state.RouterId]
	lastErr error
	lastRun time.Time
}

func (c *Controller) Init(s *state.State) error {
	s.Log.Debug("init controller")
	if c.Optimizer == nil {
		c.Optimizer = OSPFSimple{}
	}
	// routers may still hold records of an earlier instance, whose sequence numbers this one does not know
	c.arena = state.NewFakeArenaFrom(uint64(time.Now().UnixNano()))
	c.adv = NewAdvertiser()
	c.solution = &Solution{Failures: make(map[netip.Prefix]error)}
	c.dedup = ttlcache.New[state.Source, state.RouterId](
		ttlcache.WithTTL[state.Source, state.RouterId](state.EventDedupTTL),
		ttlcache.WithDisableTouchOnHit[state.Source, state.RouterId](),
	)
	s.RepeatTask(c.gc, state.GcDelay)

	// a failed initial computation leaves nothing advertised, it is retried on the next change
	_ = c.Recompute(s)
	return nil
}

func (c *Controller) Cleanup(s *state.State) error {
	withdrawn := c.adv.WithdrawAll(time.Now())
	s.Log.Info("withdrawing fake topology", "records", len(withdrawn))
	Get[*Southbound](s).Publish(c.adv.Snapshot(true))
	c.dedup.DeleteAll()
	return nil
}

// Recompute solves the current requirements from scratch and publishes the resulting advertisement diff.
// Requirements that cannot be enforced are logged and skipped. If the solution as a whole is rejected, the
// previously advertised set stays in place.
func (c *Controller) Recompute(s *state.State) error {
	start := time.Now()
	reqs := s.Registry.All()
	sol, err := c.Optimizer.Solve(s.Topology.Clone(), reqs, c.arena)
	elapsed := time.Since(start)
	perf.RecomputeLatency.Add(float64(elapsed.Microseconds()))
	c.lastRun = start
	c.lastErr = err
	if err != nil {
		s.Log.Error("recomputation failed, keeping previous advertisements", "error", err)
		c.emit(s, RecomputeEvent{Version: c.adv.Version(), Fakes: len(c.solution.Fakes), Err: err})
		return err
	}
	for _, prefix := range slices.SortedFunc(maps.Keys(sol.Failures), state.ComparePrefix) {
		s.Log.Warn("requirement not enforced", "prefix", prefix, "error", sol.Failures[prefix])
	}
	changed := c.adv.Update(sol.Advertisements(), time.Now())
	c.solution = sol
	perf.ChangedPerRecompute.Add(float64(len(changed)))
	if elapsed > state.RecomputeWarnThreshold {
		s.Log.Warn("recomputation took a long time!", "elapsed", elapsed, "requirements", len(reqs))
	}
	s.Log.Debug("recomputed", "fakes", len(sol.Fakes), "changed", len(changed), "elapsed", elapsed)
	if len(changed) > 0 {
		Get[*Southbound](s).Publish(c.adv.Snapshot(false))
	}
	c.emit(s, RecomputeEvent{
		Version:  c.adv.Version(),
		Fakes:    len(sol.Fakes),
		Changed:  changed,
		Failures: maps.Clone(sol.Failures),
	})
	return nil
}

func (c *Controller) emit(s *state.State, ev any) {
	if t, ok := s.Modules[moduleName[*Tracer]()]; ok {
		t.(*Tracer).Submit(ev)
	}
}

// RegisterRequirement adds req and recomputes. A requirement that cannot currently be enforced stays registered,
// and the reason is returned.
func (c *Controller) RegisterRequirement(s *state.State, req state.PathRequirement) error {
	added, err := s.Registry.Add(s.Topology, req)
	if err != nil {
		return err
	}
	if !added {
		return c.failureOf(req.Prefix)
	}
	s.Log.Info("registered requirement", "requirement", req)
	if err := c.Recompute(s); err != nil {
		s.Registry.Remove(req.Prefix)
		return fmt.Errorf("requirement %s rejected: %w", req, err)
	}
	return c.failureOf(req.Prefix)
}

func (c *Controller) failureOf(prefix netip.Prefix) error {
	return c.solution.Failures[prefix.Masked()]
}

func (c *Controller) RemoveRequirement(s *state.State, prefix netip.Prefix) error {
	if !s.Registry.Remove(prefix) {
		return nil
	}
	s.Log.Info("removed requirement", "prefix", prefix)
	return c.Recompute(s)
}

// ApplyTopologyChange ingests a real topology change and recomputes
func (c *Controller) ApplyTopologyChange(s *state.State, change state.TopologyChange) error {
	prev, next, err := s.Topology.Apply(change)
	if err != nil {
		return err
	}
	perf.TopologyChanges.Add(1)
	Get[*Southbound](s).Reconcile(s)
	s.Log.Info("topology changed", "ops", len(change.Ops),
		"routers", fmt.Sprintf("%d -> %d", len(prev.Routers()), len(next.Routers())),
		"links", fmt.Sprintf("%d -> %d", len(prev.Links()), len(next.Links())),
		"subnets", fmt.Sprintf("%d -> %d", len(prev.Subnets()), len(next.Subnets())),
	)
	return c.Recompute(s)
}

// HandleTopologyReport ingests a change reported by a router over an adjacency.
// Reports are never fatal to the main loop.
func (c *Controller) HandleTopologyReport(s *state.State, from state.RouterId, change state.TopologyChange) error {
	if !change.Source.IsZero() {
		if item := c.dedup.Get(change.Source); item != nil {
			s.Log.Debug("duplicate topology report", "from", from, "first", item.Value(), "origin", change.Source.Origin, "seqno", change.Source.Seqno)
			return nil
		}
		c.dedup.Set(change.Source, from, ttlcache.DefaultTTL)
	}
	if err := c.ApplyTopologyChange(s, change); err != nil {
		s.Log.Warn("rejected topology report", "from", from, "error", err)
	}
	return nil
}

func (c *Controller) gc(s *state.State) error {
	c.dedup.DeleteExpired()
	if n := c.adv.GC(time.Now()); n > 0 {
		s.Log.Debug("dropped expired tombstones", "count", n)
		Get[*Southbound](s).Publish(c.adv.Snapshot(false))
	}
	return nil
}

// Solution returns the last accepted solution
func (c *Controller) Solution() *Solution {
	return c.solution
}

func (c *Controller) Advertised() []state.LSA {
	return c.adv.Current()
}
