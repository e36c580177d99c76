package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oriys/flow/internal/logging"
	"github.com/oriys/flow/internal/metrics"
	"github.com/oriys/flow/internal/submission"
)

func runCmd() *cobra.Command {
	var maxJobs int
	var withDebugger bool
	var withMetrics bool

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Load a manifest and drive it to quiescence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(args[0], args[1:], maxJobs, withDebugger, withMetrics)
		},
	}

	cmd.Flags().IntVar(&maxJobs, "jobs", 0, "max_parallel_jobs (0 = unlimited)")
	cmd.Flags().BoolVar(&withDebugger, "debugger", false, "enable the debugger on stdin/stdout")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "emit a metrics summary on exit")

	return cmd
}

func runManifest(uri string, flowArgs []string, maxJobs int, withDebugger, withMetrics bool) error {
	cfg := loadConfig()
	if maxJobs > 0 {
		cfg.Dispatcher.MaxParallelJobs = maxJobs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := initObservability(ctx, cfg)
	defer shutdownTracing()

	runners, ne, closeRunners := newRunners(ctx, cfg)
	defer closeRunners()

	var sess *debuggerSession
	if withDebugger {
		sess = startDebugSession()
	}

	observer := buildObserver(cfg, sess.session())

	sub, err := submission.Submit(ctx, loaderFor(cfg, ne), uri, flowArgs, submitOptions(runners, cfg, observer))
	if err != nil {
		return fmt.Errorf("flowr: load %s: %w", uri, err)
	}

	if sess != nil {
		sess.sess.SetGraph(sub.Graph())
		go sess.serve()
	}

	result, err := sub.Wait(ctx)
	if err != nil {
		return fmt.Errorf("flowr: run failed: %w", err)
	}

	if withMetrics {
		if b, err := metrics.Global().JSON(); err == nil {
			fmt.Println(string(b))
		}
	}

	if submErr := submission.ResultError(result); submErr != nil {
		logging.Op().Error("flowr: submission ended with an error", "error", submErr)
		return submErr
	}
	return nil
}
