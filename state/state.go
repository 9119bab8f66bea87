package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	Modules map[string]NyModule
	// ModuleOrder is the order modules were initialized in, they are cleaned up in reverse
	ModuleOrder []string
	Topology    *Topology
	Registry    *Registry
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	CentralCfg
	LocalCfg
	Transport Transport
	Context   context.Context
	Cancel    context.CancelCauseFunc
	Log       *slog.Logger
	Started   atomic.Bool
	Stopping  atomic.Bool
}
