package core

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync/atomic"

	"github.com/encodeous/fibbing/state"
)

var ErrStopped = errors.New("controller stopped")

// Fibber is the northbound API of the controller.
// Before Run, calls are applied on the calling goroutine. Once Run is looping, they are dispatched to the main loop and waited on.
type Fibber struct {
	s        *state.State
	dispatch chan func(*state.State) error
	started  atomic.Bool
	running  atomic.Bool
	done     chan struct{}
}

func NewFibber(ccfg state.CentralCfg, ncfg state.LocalCfg, transport state.Transport, logger *slog.Logger) (*Fibber, error) {
	topo, err := ccfg.BuildTopology()
	if err != nil {
		return nil, err
	}
	registry := state.NewRegistry()
	for _, req := range ccfg.PathRequirements() {
		if _, err := registry.Add(topo, req); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	dispatch := make(chan func(*state.State) error, state.DispatchBuffer)
	s := &state.State{
		Modules:  make(map[string]state.NyModule),
		Topology: topo,
		Registry: registry,
		Env: &state.Env{
			DispatchChannel: dispatch,
			CentralCfg:      ccfg,
			LocalCfg:        ncfg,
			Transport:       transport,
			Context:         ctx,
			Cancel:          cancel,
			Log:             logger,
		},
	}
	return &Fibber{s: s, dispatch: dispatch, done: make(chan struct{})}, nil
}

func (f *Fibber) Log() *slog.Logger {
	return f.s.Log
}

// Start establishes the adjacencies and computes the initial fake topology
func (f *Fibber) Start() error {
	if f.started.Swap(true) {
		return errors.New("controller already started")
	}
	f.s.Log.Info("init modules")
	if err := initModules(f.s); err != nil {
		f.s.Cancel(err)
		Stop(f.s)
		return err
	}
	f.s.Log.Info("init modules complete")
	return nil
}

// Run blocks in the main loop until Stop is called or a dispatched function fails
func (f *Fibber) Run() error {
	if !f.started.Load() {
		return errors.New("controller not started")
	}
	if f.s.Stopping.Load() {
		return ErrStopped
	}
	if f.running.Swap(true) {
		return errors.New("controller already running")
	}
	defer close(f.done)
	_ = MainLoop(f.s, f.dispatch)
	cause := context.Cause(f.s.Context)
	if errors.Is(cause, ErrStopped) || errors.Is(cause, errShutdownSignal) {
		return nil
	}
	return cause
}

// Stop withdraws every fake record and tears the adjacencies down. It returns once shutdown is complete.
func (f *Fibber) Stop() {
	f.s.Cancel(ErrStopped)
	if f.running.Load() {
		<-f.done
		return
	}
	Stop(f.s)
}

func (f *Fibber) exec(fun func(s *state.State) error) error {
	if f.s.Stopping.Load() {
		return ErrStopped
	}
	if f.s.Started.Load() {
		_, err := f.s.DispatchWait(func(s *state.State) (any, error) {
			return nil, fun(s)
		})
		if err != nil && f.s.Stopping.Load() {
			return ErrStopped
		}
		return err
	}
	return fun(f.s)
}

func (f *Fibber) controller(s *state.State) (*Controller, bool) {
	c, ok := s.Modules[moduleName[*Controller]()]
	if !ok {
		return nil, false
	}
	return c.(*Controller), true
}

// RegisterRequirement pins the forwarding path towards prefix. It fails with state.ErrConflictingRequirement if
// prefix already has a different path. If the path cannot currently be enforced, the requirement stays registered
// and the state.ErrUnsatisfiablePath reason is returned.
func (f *Fibber) RegisterRequirement(prefix netip.Prefix, path []state.RouterId) error {
	req := state.PathRequirement{Prefix: prefix, Path: path}
	return f.exec(func(s *state.State) error {
		if c, ok := f.controller(s); ok {
			return c.RegisterRequirement(s, req)
		}
		_, err := s.Registry.Add(s.Topology, req)
		return err
	})
}

func (f *Fibber) RemoveRequirement(prefix netip.Prefix) error {
	return f.exec(func(s *state.State) error {
		if c, ok := f.controller(s); ok {
			return c.RemoveRequirement(s, prefix)
		}
		s.Registry.Remove(prefix)
		return nil
	})
}

func (f *Fibber) ApplyTopologyChange(change state.TopologyChange) error {
	return f.exec(func(s *state.State) error {
		if c, ok := f.controller(s); ok {
			return c.ApplyTopologyChange(s, change)
		}
		_, _, err := s.Topology.Apply(change)
		return err
	})
}

// Describe renders the topology, the requirements, the advertised records and the adjacencies
func (f *Fibber) Describe() string {
	var out string
	err := f.exec(func(s *state.State) error {
		out = Inspect(s)
		return nil
	})
	if err != nil {
		return "unavailable: " + err.Error()
	}
	return out
}

// Status returns the state of every adjacency
func (f *Fibber) Status() []AdjacencyStatus {
	var out []AdjacencyStatus
	_ = f.exec(func(s *state.State) error {
		if sb, ok := s.Modules[moduleName[*Southbound]()]; ok {
			out = sb.(*Southbound).Status()
		}
		return nil
	})
	return out
}

// Subscribe registers ch for controller events. The returned function unregisters it, and must be called before Stop.
// ch must be drained continuously.
func (f *Fibber) Subscribe(ch chan<- any) (func(), error) {
	if !f.started.Load() {
		return nil, errors.New("controller not started")
	}
	t := Get[*Tracer](f.s)
	t.Register(ch)
	return func() {
		if !f.s.Stopping.Load() {
			t.Unregister(ch)
		}
	}, nil
}
