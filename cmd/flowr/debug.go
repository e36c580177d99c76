package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/flow/internal/debugger"
)

// debuggerSession wires a debugger.Session to a protocol server reading
// commands from stdin and writing responses to stdout, per spec.md §6's
// "minimal, not the hard part" textual debugger protocol.
type debuggerSession struct {
	sess *debugger.Session
}

// session returns the underlying *debugger.Session, or nil if d is nil,
// so callers can pass it straight to buildObserver without a branch.
func (d *debuggerSession) session() *debugger.Session {
	if d == nil {
		return nil
	}
	return d.sess
}

func startDebugSession() *debuggerSession {
	d := &debuggerSession{}
	d.sess = debugger.NewSession(nil, func(reason debugger.PauseReason) {
		fmt.Fprintf(os.Stdout, "paused: %s\n", reason.Detail)
	})
	return d
}

// serve reads debugger protocol commands from stdin until EOF; run on
// its own goroutine since the dispatcher goroutine may be parked inside
// Session.pause while this one keeps reading commands.
func (d *debuggerSession) serve() {
	proto := debugger.NewProtocol(d.sess, os.Stdout)
	if err := proto.Serve(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "debugger protocol error: %v\n", err)
	}
}

func debugCmd() *cobra.Command {
	var maxJobs int
	var withMetrics bool

	cmd := &cobra.Command{
		Use:   "debug <manifest>",
		Short: "Load a manifest with the debugger enabled",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(args[0], args[1:], maxJobs, true, withMetrics)
		},
	}

	cmd.Flags().IntVar(&maxJobs, "jobs", 0, "max_parallel_jobs (0 = unlimited)")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "emit a metrics summary on exit")

	return cmd
}
