package core

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/encodeous/fibbing/perf"
	"github.com/encodeous/fibbing/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

var errShutdownSignal = errors.New("received shutdown signal")

func setupDebugging(addr string) {
	if addr == "" {
		return
	}
	go func() {
		log.Println(http.ListenAndServe(addr, nil))
	}()
}

func ReadCentralConfig(centralPath string) (*state.CentralCfg, error) {
	var centralCfg state.CentralCfg
	file, err := os.ReadFile(centralPath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &centralCfg)
	if err != nil {
		return nil, err
	}
	return &centralCfg, nil
}

func ReadNodeConfig(nodePath string) (*state.LocalCfg, error) {
	var nodeCfg state.LocalCfg
	file, err := os.ReadFile(nodePath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &nodeCfg)
	if err != nil {
		return nil, err
	}
	return &nodeCfg, nil
}

// LoadConfig reads and validates both configuration files
func LoadConfig(centralPath, nodePath string) (*state.CentralCfg, *state.LocalCfg, error) {
	centralCfg, err := ReadCentralConfig(centralPath)
	if err != nil {
		return nil, nil, err
	}
	nodeCfg, err := ReadNodeConfig(nodePath)
	if err != nil {
		return nil, nil, err
	}
	err = state.CentralConfigValidator(centralCfg)
	if err != nil {
		return nil, nil, err
	}
	err = state.NodeConfigValidator(nodeCfg)
	if err != nil {
		return nil, nil, err
	}
	err = state.InjectionValidator(centralCfg, nodeCfg)
	if err != nil {
		return nil, nil, err
	}
	return centralCfg, nodeCfg, nil
}

// Bootstrap runs the controller until it is interrupted
func Bootstrap(centralPath, nodePath, logPath, debugAddr string, verbose bool) {
	setupDebugging(debugAddr)
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	centralCfg, nodeCfg, err := LoadConfig(centralPath, nodePath)
	if err != nil {
		panic(err)
	}
	if logPath != "" {
		nodeCfg.LogPath = logPath
	}
	err = Start(*centralCfg, *nodeCfg, level)
	if err != nil {
		panic(err)
	}
}

// NewLogger builds the console logger, fanned out to the log file if one is configured
func NewLogger(ncfg state.LocalCfg, logLevel slog.Level, console io.Writer) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(console, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: ncfg.Id,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if ncfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(ncfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(ncfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start runs the controller against the TCP southbound agents configured in ncfg
func Start(ccfg state.CentralCfg, ncfg state.LocalCfg, logLevel slog.Level) error {
	logger, err := NewLogger(ncfg, logLevel, os.Stderr)
	if err != nil {
		return err
	}
	transport := NewTCPTransport(ncfg.Id, ncfg.InjectionPoints(ccfg.Routers))
	f, err := NewFibber(ccfg, ncfg, transport, logger)
	if err != nil {
		return err
	}
	err = f.Start()
	if err != nil {
		return err
	}
	f.Log().Info("Fibbing controller has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			f.s.Cancel(errShutdownSignal)
		case <-f.s.Context.Done():
			return
		}
	}()
	return f.Run()
}

func initModules(s *state.State) error {
	var modules []state.NyModule
	modules = append(modules, &Tracer{})
	modules = append(modules, &Southbound{})
	modules = append(modules, &Controller{})
	modules = append(modules, &IPC{})

	for _, module := range modules {
		name := reflect.TypeOf(module).String()
		s.Modules[name] = module
		s.ModuleOrder = append(s.ModuleOrder, name)
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.RecomputeWarnThreshold {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	if s.DispatchChannel != nil {
		close(s.DispatchChannel)
		s.DispatchChannel = nil
	}
	s.Log.Info("cleaning up modules")
	for _, moduleName := range slices.Backward(s.ModuleOrder) {
		err := s.Modules[moduleName].Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
