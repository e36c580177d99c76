package main

import (
	"context"
	"fmt"
	"os"

	goredis "github.com/go-redis/redis/v8"

	"github.com/oriys/flow/internal/config"
	"github.com/oriys/flow/internal/debugger"
	"github.com/oriys/flow/internal/dispatcher"
	"github.com/oriys/flow/internal/executor"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/logging"
	"github.com/oriys/flow/internal/manifest"
	"github.com/oriys/flow/internal/metrics"
	"github.com/oriys/flow/internal/observability"
	"github.com/oriys/flow/internal/remoteexec"
	"github.com/oriys/flow/internal/remoteexec/queue"
	"github.com/oriys/flow/internal/stdlib"
	"github.com/oriys/flow/internal/submission"
)

// loadConfig reads --config if given, else returns defaults with
// FLOW_-prefixed environment overrides applied, the same layered
// approach spec'd for internal/config. It also applies the logging
// format/level from that config to the operational logger, so
// --config's logging section (and its FLOW_LOG_* env overrides) take
// effect before any other subsystem logs a line.
func loadConfig() *config.Config {
	var cfg *config.Config
	if configFile != "" {
		c, err := config.LoadFromFile(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "flowr: reading config %s: %v, using defaults\n", configFile, err)
			cfg = config.Default()
		} else {
			cfg = c
		}
	} else {
		cfg = config.Default()
	}
	config.ApplyEnv(cfg)
	logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)
	return cfg
}

// newRunners builds the per-implementation-kind runner map every
// subcommand dispatches against: native is always available; WASM and
// remote are wired in only when usable, so a manifest that never
// declares those kinds works with no extra setup.
func newRunners(ctx context.Context, cfg *config.Config) (map[graph.ImplKind]dispatcher.Runner, *executor.NativeExecutor, func()) {
	ne := executor.NewNativeExecutor(cfg.Executor.Native.Workers)
	stdlib.Register(ne)

	runners := map[graph.ImplKind]dispatcher.Runner{graph.ImplNative: ne}
	var cleanups []func()

	we, err := executor.NewWasmExecutor(ctx, executor.WasmConfig{
		CodeDir:  cfg.Executor.Wasm.CodeDir,
		Fuel:     cfg.Executor.Wasm.Fuel,
		CacheCap: cfg.Executor.Wasm.CacheSz,
	})
	if err != nil {
		logging.Op().Warn("flowr: wasm executor unavailable, wasm functions will fail to dispatch", "error", err)
	} else {
		runners[graph.ImplWasm] = we
		cleanups = append(cleanups, func() { _ = we.Close(ctx) })
	}

	if cfg.Executor.Remote.Enabled {
		c, err := remoteexec.Dial(cfg.Executor.Remote.Addr)
		if err != nil {
			logging.Op().Warn("flowr: remote executor unavailable", "addr", cfg.Executor.Remote.Addr, "error", err)
		} else {
			c.Retries = cfg.Executor.Remote.Retries
			if cfg.Executor.Remote.Queue != "" {
				rc := goredis.NewClient(&goredis.Options{Addr: cfg.Executor.Remote.Queue})
				notifier := queue.NewNotifier(rc)
				c.WithNotifier(notifier, cfg.Executor.Remote.Addr)
				cleanups = append(cleanups, func() { _ = notifier.Close() })
			}
			runners[graph.ImplRemote] = c
			cleanups = append(cleanups, func() { _ = c.Close() })
		}
	}

	closeAll := func() {
		for _, c := range cleanups {
			c()
		}
	}
	return runners, ne, closeAll
}

// buildObserver composes metrics/logging/debugger observers in the
// order the submission layer fans them out, matching the teacher's
// layered-middleware style.
func buildObserver(cfg *config.Config, sess *debugger.Session) dispatcher.Observer {
	var obs dispatcher.MultiObserver
	if cfg.Metrics.Enabled {
		obs = append(obs, metrics.NewObserver(metrics.Global()))
	}
	logger := logging.Default()
	if cfg.Logging.JobLog != "" {
		if err := logger.SetOutput(cfg.Logging.JobLog); err != nil {
			logging.Op().Warn("flowr: opening job log failed", "path", cfg.Logging.JobLog, "error", err)
		}
	}
	obs = append(obs, logging.NewObserver(logger))
	if sess != nil {
		obs = append(obs, sess)
	}
	return obs
}

func initObservability(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Tracing.Enabled {
		return func() {}
	}
	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	}); err != nil {
		logging.Op().Warn("flowr: tracing init failed", "error", err)
		return func() {}
	}
	return func() { _ = observability.Shutdown(ctx) }
}

func loaderFor(cfg *config.Config, ne *executor.NativeExecutor) *manifest.Loader {
	return manifest.NewLoader([]string{"."}, cfg.Dispatcher.PortCapacity, ne)
}

func submitOptions(runners map[graph.ImplKind]dispatcher.Runner, cfg *config.Config, observer dispatcher.Observer) submission.Options {
	return submission.Options{
		Runners:         runners,
		MaxParallelJobs: cfg.Dispatcher.MaxParallelJobs,
		Observer:        observer,
		RootFunctionID:  0,
		ArgsPort:        0,
	}
}
