package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/encodeous/fibbing/perf"
	"github.com/encodeous/fibbing/state"
	"github.com/google/uuid"
)

var errFlushed = errors.New("final snapshot flushed")

type AdjacencyStatus struct {
	Router  state.RouterId
	State   state.AdjacencyState
	Session uuid.UUID
	// Version is the last snapshot version the peer was synchronized to
	Version uint64
	// Held is the number of live records the peer holds from us
	Held int
}

// adjacency keeps a single router synchronized with the advertised fake topology
type adjacency struct {
	env     *state.Env
	router  state.RouterId
	tracer  *Tracer
	log     *slog.Logger
	backoff *backoff.ExponentialBackOff
	stop    context.CancelFunc

	mailbox chan *state.AdvSnapshot
	latest  *state.AdvSnapshot
	// sent is what the peer holds from us. It carries over to the next session until the full sync replaces it.
	sent map[state.AdvKey]state.LSA

	flushed   chan struct{}
	flushOnce sync.Once

	mu  sync.Mutex
	cur AdjacencyStatus
}

func newAdjacency(env *state.Env, router state.RouterId, tracer *Tracer, lo, hi time.Duration) *adjacency {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = lo
	bo.MaxInterval = hi
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &adjacency{
		env:     env,
		router:  router,
		tracer:  tracer,
		log:     env.Log.With("router", router),
		backoff: bo,
		mailbox: make(chan *state.AdvSnapshot, 1),
		sent:    make(map[state.AdvKey]state.LSA),
		flushed: make(chan struct{}),
		cur:     AdjacencyStatus{Router: router, State: state.Disconnected},
	}
}

// offer replaces any snapshot the worker has not picked up yet. Only the coordinator calls it.
func (a *adjacency) offer(snap *state.AdvSnapshot) {
	for {
		select {
		case a.mailbox <- snap:
			return
		default:
		}
		select {
		case <-a.mailbox:
		default:
		}
	}
}

func (a *adjacency) status() AdjacencyStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur
}

func (a *adjacency) transition(to state.AdjacencyState, session uuid.UUID, err error) {
	a.mu.Lock()
	from := a.cur.State
	a.cur.State = to
	a.cur.Session = session
	if to != state.Synchronized {
		a.cur.Held = 0
	}
	a.mu.Unlock()
	if from != to {
		a.log.Debug("adjacency state changed", "from", from, "to", to)
	}
	a.tracer.Submit(AdjacencyEvent{Router: a.router, Session: session, State: to, Err: err})
}

func (a *adjacency) run(ctx context.Context) {
	defer a.transition(state.Disconnected, uuid.Nil, nil)
	for ctx.Err() == nil {
		a.transition(state.Establishing, uuid.Nil, nil)
		dctx, cancel := context.WithTimeout(ctx, state.HandshakeTimeout)
		sess, err := a.env.Transport.Dial(dctx, a.router)
		cancel()
		if err == nil {
			err = a.serve(ctx, sess)
			if errors.Is(err, errFlushed) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		err = fmt.Errorf("%w: %s: %w", state.ErrAdjacencyLost, a.router, err)
		perf.AdjacencyDrops.Add(1)
		a.transition(state.Disconnected, uuid.Nil, err)
		delay := a.backoff.NextBackOff()
		a.log.Warn("adjacency lost, retrying", "error", err, "retry", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// serve synchronizes the peer until the session fails or the final snapshot is flushed
func (a *adjacency) serve(ctx context.Context, sess state.Session) error {
	recvErr := make(chan error, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		a.read(sess, recvErr)
	}()
	defer func() {
		_ = sess.Close()
		<-readerDone
	}()

	// the peer may still hold records from an earlier session, so it gets everything we know about
	select {
	case snap := <-a.mailbox:
		a.latest = snap
	default:
	}
	if a.latest != nil {
		if err := a.sync(sess, a.latest, true); err != nil {
			return err
		}
	}
	a.backoff.Reset()
	a.transition(state.Synchronized, sess.Id(), nil)
	a.log.Info("adjacency synchronized", "session", sess.Id())
	if a.latest != nil && a.latest.Final {
		return a.flush()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvErr:
			return err
		case snap := <-a.mailbox:
			a.latest = snap
			if err := a.sync(sess, snap, false); err != nil {
				return err
			}
			if snap.Final {
				return a.flush()
			}
		}
	}
}

func (a *adjacency) flush() error {
	a.flushOnce.Do(func() {
		close(a.flushed)
	})
	a.log.Debug("flushed final withdrawals")
	return errFlushed
}

func (a *adjacency) read(sess state.Session, recvErr chan<- error) {
	for {
		change, err := sess.Recv()
		if err != nil {
			recvErr <- err
			return
		}
		a.env.Dispatch(func(s *state.State) error {
			return Get[*Controller](s).HandleTopologyReport(s, a.router, change)
		})
	}
}

// sync sends the records of snap the peer does not hold yet. A full sync replays every record and tombstone,
// and withdraws what the peer held from an earlier session that snap no longer knows about.
func (a *adjacency) sync(sess state.Session, snap *state.AdvSnapshot, full bool) error {
	batch := make([]state.LSA, 0)
	for key, lsa := range snap.Current {
		if held, ok := a.sent[key]; full || !ok || held != lsa {
			batch = append(batch, lsa)
		}
	}
	for key, lsa := range snap.Tombstones {
		held, ok := a.sent[key]
		if full || (ok && held != lsa) {
			batch = append(batch, lsa)
		}
	}
	for key, held := range a.sent {
		_, current := snap.Current[key]
		_, tombstone := snap.Tombstones[key]
		if current || tombstone {
			continue
		}
		switch {
		case full && !held.IsWithdrawal():
			// the tombstone was collected while the peer was unreachable
			batch = append(batch, state.LSA{
				Advertisement: state.Advertisement{AdvKey: key, Cost: state.LSInfinity},
				Seqno:         held.Seqno + 1,
			})
		case held.IsWithdrawal():
			delete(a.sent, key)
		}
	}
	if len(batch) > 0 {
		slices.SortFunc(batch, func(x, y state.LSA) int {
			return x.AdvKey.Compare(y.AdvKey)
		})
		if err := sess.Send(batch); err != nil {
			return err
		}
		perf.LSAsSentPerSecond.Add(float64(len(batch)))
	}
	if full {
		clear(a.sent)
	}
	for _, lsa := range batch {
		a.sent[lsa.AdvKey] = lsa
	}
	held := 0
	for lsa := range maps.Values(a.sent) {
		if !lsa.IsWithdrawal() {
			held++
		}
	}
	a.mu.Lock()
	a.cur.Version = snap.Version
	a.cur.Held = held
	a.mu.Unlock()
	a.tracer.Submit(SyncEvent{Router: a.router, Version: snap.Version, Sent: len(batch), Final: snap.Final})
	return nil
}
