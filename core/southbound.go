package core

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/encodeous/fibbing/state"
	"golang.org/x/sync/errgroup"
)

// Southbound owns one adjacency worker per injection point
type Southbound struct {
	workers []*adjacency
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	tracer  *Tracer
	lo, hi  time.Duration
	// dynamic is set when no injection point is configured, the workers then follow the router set
	dynamic bool
	latest  *state.AdvSnapshot
}

func (sb *Southbound) Init(s *state.State) error {
	s.Log.Debug("init southbound")
	// workers outlive the main context so that they can flush the final withdrawals
	ctx, cancel := context.WithCancel(context.Background())
	sb.cancel = cancel
	sb.group, sb.ctx = errgroup.WithContext(ctx)
	sb.tracer = Get[*Tracer](s)
	sb.lo, sb.hi = s.RetryBounds()
	sb.dynamic = len(s.Injection) == 0
	for _, point := range s.InjectionPoints(s.Topology.Routers()) {
		sb.spawn(s.Env, point.Router)
	}
	s.Log.Info("started adjacency workers", "count", len(sb.workers))
	return nil
}

func (sb *Southbound) spawn(e *state.Env, router state.RouterId) {
	w := newAdjacency(e, router, sb.tracer, sb.lo, sb.hi)
	ctx, cancel := context.WithCancel(sb.ctx)
	w.stop = cancel
	sb.workers = append(sb.workers, w)
	if sb.latest != nil {
		w.offer(sb.latest)
	}
	sb.group.Go(func() error {
		w.run(ctx)
		return nil
	})
}

// Reconcile starts a worker for every new router and stops the workers of removed routers.
// Configured injection points are left alone.
func (sb *Southbound) Reconcile(s *state.State) {
	if !sb.dynamic {
		return
	}
	routers := s.Topology.Routers()
	for _, r := range routers {
		if !slices.ContainsFunc(sb.workers, func(w *adjacency) bool { return w.router == r }) {
			s.Log.Info("starting adjacency with new router", "router", r)
			sb.spawn(s.Env, r)
		}
	}
	sb.workers = slices.DeleteFunc(sb.workers, func(w *adjacency) bool {
		if slices.Contains(routers, w.router) {
			return false
		}
		s.Log.Info("stopping adjacency with removed router", "router", w.router)
		w.stop()
		return true
	})
}

// Publish hands snap to every worker without blocking. Workers only ever see the latest snapshot.
func (sb *Southbound) Publish(snap *state.AdvSnapshot) {
	sb.latest = snap
	for _, w := range sb.workers {
		w.offer(snap)
	}
}

func (sb *Southbound) Cleanup(s *state.State) error {
	ctx, cancel := context.WithTimeout(context.Background(), state.ShutdownTimeout)
	defer cancel()
	for _, w := range sb.workers {
		select {
		case <-w.flushed:
		case <-ctx.Done():
			s.Log.Warn("timed out flushing withdrawals", "router", w.router)
		}
	}
	sb.cancel()
	return sb.group.Wait()
}

// Status returns the state of every adjacency, sorted by router
func (sb *Southbound) Status() []AdjacencyStatus {
	out := make([]AdjacencyStatus, 0, len(sb.workers))
	for _, w := range sb.workers {
		out = append(out, w.status())
	}
	slices.SortFunc(out, func(a, b AdjacencyStatus) int {
		return cmp.Compare(a.Router, b.Router)
	})
	return out
}
