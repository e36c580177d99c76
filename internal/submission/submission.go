// Package submission implements the Submission & Lifecycle component
// (C7): it ties the manifest loader, dispatcher, and observers together
// behind a single Submit/Cancel surface, modeled on the teacher's
// Executor.Invoke/GracefulShutdown pattern -- an in-flight WaitGroup plus
// an atomic "closing" flag instead of re-deriving that shutdown dance
// here.
package submission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/oriys/flow/internal/dispatcher"
	"github.com/oriys/flow/internal/flowerr"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/manifest"
	"github.com/oriys/flow/internal/value"
)

// Options configures one Submission.
type Options struct {
	Runners         map[graph.ImplKind]dispatcher.Runner
	MaxParallelJobs int
	Observer        dispatcher.Observer // typically a dispatcher.MultiObserver

	// RootFunctionID and ArgsPort identify where the submission's args
	// (§6 "submission input: a manifest URI plus an array of string
	// arguments delivered to the root function's args input") are
	// written before the scheduler begins. If RootFunctionID is not a
	// valid function id in the loaded graph, args are silently not
	// delivered -- a manifest with no args sink legitimately ignores them.
	RootFunctionID int
	ArgsPort       int
}

// Submission is one run of a manifest to quiescence or cancellation.
type Submission struct {
	ID string

	g    *graph.Graph
	d    *dispatcher.Dispatcher
	opts Options

	cancel  context.CancelFunc
	closing atomic.Bool
	wg      sync.WaitGroup

	mu     sync.Mutex
	result *dispatcher.Result
	err    error
	done   chan struct{}
}

// Submit loads uri via loader, writes args onto the root function's args
// port, and starts driving the run in the background; call Wait to block
// for completion or Cancel to request early termination.
func Submit(ctx context.Context, loader *manifest.Loader, uri string, args []string, opts Options) (*Submission, error) {
	g, err := loader.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	if fs, ok := g.States[opts.RootFunctionID]; ok {
		argValues := make([]value.Value, len(args))
		for i, a := range args {
			argValues[i] = value.NewString(a)
		}
		if _, err := fs.Write(opts.ArgsPort, value.NewArray(argValues)); err != nil {
			return nil, fmt.Errorf("submission: write args to function %d port %d: %w", opts.RootFunctionID, opts.ArgsPort, err)
		}
	}

	observer := opts.Observer
	if observer == nil {
		observer = dispatcher.NopObserver{}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Submission{
		ID:     uuid.NewString(),
		g:      g,
		d:      dispatcher.New(g, opts.Runners, opts.MaxParallelJobs, observer),
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		result, err := s.d.Run(runCtx)
		s.mu.Lock()
		s.result, s.err = result, err
		s.mu.Unlock()
	}()

	return s, nil
}

// Cancel requests early termination: the dispatcher stops pulling new
// jobs and in-flight jobs are allowed to finish or are abandoned by
// their executor's own context handling (§5).
func (s *Submission) Cancel() {
	if s.closing.CompareAndSwap(false, true) {
		s.d.Cancel()
		s.cancel()
	}
}

// Wait blocks until the run reaches quiescence, cancellation, or failure.
func (s *Submission) Wait(ctx context.Context) (*dispatcher.Result, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Graph exposes the loaded graph, e.g. for the debugger's inspect command.
func (s *Submission) Graph() *graph.Graph { return s.g }

// ResultError reports ErrCancelled for a cancelled submission and the
// run's own error for a failed one (nil otherwise), matching the
// sentinel error contract other components use.
func ResultError(result *dispatcher.Result) error {
	if result == nil {
		return nil
	}
	switch result.Status {
	case dispatcher.StatusCancelled:
		return flowerr.ErrCancelled
	case dispatcher.StatusFailed:
		return result.Err
	default:
		return nil
	}
}
