// Package dispatcher implements the Ready Set / Dispatcher (C5): it owns
// the ready set, the block graph, and all function-state mutation from a
// single goroutine, so the invariants of §3 need no additional locking at
// this layer. Function bodies run off-dispatcher on their own goroutines;
// completions flow back over a channel, exactly the "simple event loop"
// design of spec.md §9.
package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/oriys/flow/internal/flowerr"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/logging"
	"github.com/oriys/flow/internal/router"
	"github.com/oriys/flow/internal/value"
)

// Runner is the polymorphic contract every executor kind (native, wasm,
// remote) satisfies. The dispatcher holds one Runner per implementation
// kind and knows nothing about how a job is actually carried out (§4.6,
// §9 "polymorphism over implementations").
type Runner interface {
	Run(ctx context.Context, job graph.Job, def *graph.FunctionDef) (value.Value, error)
}

// Status is the terminal state of a submission run.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusCancelled
)

// Result summarises a completed run for the submission layer (C7).
type Result struct {
	Status        Status
	Err           error
	JobCount      int64
	MaxConcurrent int
	PerFunction   map[int]int64
}

// Dispatcher drives one graph to quiescence or failure.
type Dispatcher struct {
	g               *graph.Graph
	runners         map[graph.ImplKind]Runner
	maxParallelJobs int
	observer        Observer

	events    chan event
	cancelled atomic.Bool

	ready        []int
	inReadyQueue map[int]bool
	running      map[uint64]int // generation -> function id
	runningCount map[int]int    // function id -> concurrent invocation count

	generation uint64
	jobCount   int64
	maxSeen    int
}

type eventKind int

const (
	evInputReady eventKind = iota
	evBlockCleared
	evCompletion
	evCancel
)

type event struct {
	kind       eventKind
	functionID int
	completion *graph.Completion
}

// New builds a Dispatcher for g. maxParallelJobs <= 0 means unlimited.
// runners maps each implementation kind present in the graph to the
// executor that carries it out; observer may be nil.
func New(g *graph.Graph, runners map[graph.ImplKind]Runner, maxParallelJobs int, observer Observer) *Dispatcher {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Dispatcher{
		g:               g,
		runners:         runners,
		maxParallelJobs: maxParallelJobs,
		observer:        observer,
		events:          make(chan event, 256),
		inReadyQueue:    make(map[int]bool),
		running:         make(map[uint64]int),
		runningCount:    make(map[int]int),
	}
}

// Cancel requests cooperative cancellation: the dispatcher stops pulling
// new jobs; in-flight jobs are allowed to finish.
func (d *Dispatcher) Cancel() {
	if d.cancelled.CompareAndSwap(false, true) {
		d.events <- event{kind: evCancel}
	}
}

// Run drives the graph to quiescence, cancellation, or a fatal error.
func (d *Dispatcher) Run(ctx context.Context) (*Result, error) {
	perFunction := make(map[int]int64, len(d.g.Defs))

	// Seed the ready set with every function already satisfied at start
	// (via `once`/`always` initialisers applied at graph.New time).
	for _, id := range d.g.SortedIDs() {
		d.checkReady(id)
	}

	for {
		if d.cancelled.Load() {
			return &Result{Status: StatusCancelled, Err: flowerr.ErrCancelled, JobCount: d.jobCount, MaxConcurrent: d.maxSeen, PerFunction: perFunction}, nil
		}

		d.fillRunning(ctx)

		if len(d.ready) == 0 && len(d.running) == 0 {
			return &Result{Status: StatusSucceeded, JobCount: d.jobCount, MaxConcurrent: d.maxSeen, PerFunction: perFunction}, nil
		}

		select {
		case <-ctx.Done():
			return &Result{Status: StatusCancelled, Err: ctx.Err(), JobCount: d.jobCount, MaxConcurrent: d.maxSeen, PerFunction: perFunction}, nil
		case ev := <-d.events:
			switch ev.kind {
			case evCancel:
				// handled at loop top on the next iteration
			case evInputReady, evBlockCleared:
				d.checkReady(ev.functionID)
			case evCompletion:
				fatalErr := d.handleCompletion(ctx, *ev.completion, perFunction)
				if fatalErr != nil {
					return &Result{Status: StatusFailed, Err: fatalErr, JobCount: d.jobCount, MaxConcurrent: d.maxSeen, PerFunction: perFunction}, nil
				}
			}
		}
	}
}

// checkReady enqueues id if it is currently satisfied, not blocked, and
// not already queued/running.
func (d *Dispatcher) checkReady(id int) {
	if d.inReadyQueue[id] {
		return
	}
	def := d.g.Defs[id]
	if def.NonReentrant && d.runningCount[id] > 0 {
		return
	}
	if d.g.Blocks.IsBlocked(id) {
		return
	}
	fs := d.g.States[id]
	if fs.HasPending() {
		// Held output takes priority over starting a fresh run; delivery
		// is retried by wakeBlockClears via retryPendingDelivery.
		return
	}
	if !fs.Satisfied() {
		return
	}
	d.ready = append(d.ready, id)
	d.inReadyQueue[id] = true
	fs.SetRunState(graph.Ready)
}

// fillRunning dispatches as many ready functions as the parallelism cap
// allows, FIFO for fairness.
func (d *Dispatcher) fillRunning(ctx context.Context) {
	for len(d.ready) > 0 && (d.maxParallelJobs <= 0 || len(d.running) < d.maxParallelJobs) {
		id := d.ready[0]
		d.ready = d.ready[1:]
		d.inReadyQueue[id] = false

		def := d.g.Defs[id]
		fs := d.g.States[id]

		if def.NonReentrant && d.runningCount[id] > 0 {
			// Should not happen given checkReady's guard, but keep the
			// invariant airtight against future readiness-recompute paths.
			continue
		}

		values, err := fs.TakeInputs()
		if err != nil {
			logging.Op().Error("dispatcher: take_inputs on ready function failed", "function", def.Name, "error", err)
			continue
		}

		gen := atomic.AddUint64(&d.generation, 1)
		job := graph.Job{FunctionID: id, Generation: gen, JobID: NewJobID(), Values: values}

		d.running[gen] = id
		d.runningCount[id]++
		fs.SetRunState(graph.Running)
		d.jobCount++
		if len(d.running) > d.maxSeen {
			d.maxSeen = len(d.running)
		}

		d.observer.BeforeDispatch(job, def)
		d.dispatch(ctx, job, def)

		// TakeInputs just drained one value from every port, so each can
		// accept again: re-attempt delivery for writers blocked on it (§4.4).
		for port := range def.Inputs {
			d.wakeBlockClears(id, port)
		}
	}
}

// dispatch launches the job's executor on its own goroutine; the
// dispatcher goroutine never blocks on a function body (§5).
func (d *Dispatcher) dispatch(ctx context.Context, job graph.Job, def *graph.FunctionDef) {
	runner, ok := d.runners[def.Implementation.Kind]
	if !ok {
		d.events <- event{kind: evCompletion, completion: &graph.Completion{
			Job: job,
			Err: fmt.Errorf("%w: no runner registered for implementation kind of %s", flowerr.ErrImplementationUnresolved, def),
		}}
		return
	}
	go func() {
		out, err := runner.Run(ctx, job, def)
		d.events <- event{kind: evCompletion, completion: &graph.Completion{Job: job, Output: out, Err: err}}
	}()
}

// handleCompletion ingests one out-of-order completion (§4.5). It returns
// a non-nil error only for fatal (non-recoverable) failures, per §7.
func (d *Dispatcher) handleCompletion(ctx context.Context, c graph.Completion, perFunction map[int]int64) error {
	id := c.Job.FunctionID
	delete(d.running, c.Job.Generation)
	d.runningCount[id]--
	fs := d.g.States[id]
	def := d.g.Defs[id]

	d.observer.AfterComplete(c)

	if c.Err != nil {
		return d.handleFailure(id, def, c)
	}

	fs.IncRunCount()
	perFunction[id]++

	outcome, err := router.Route(d.g, id, c.Output)
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}

	if outcome.Blocked {
		fs.HoldPending(&graph.PendingOutput{Output: c.Output})
		for _, b := range outcome.Blocks {
			d.g.Blocks.Add(b.BlockedID, b.BlockerID, b.Port)
			d.observer.OnBlockCreated(b)
		}
		return nil
	}

	for _, dl := range outcome.Delivered {
		d.observer.OnWrite(dl.DestID, dl.Port, dl.NewlySatisfied)
		if dl.NewlySatisfied {
			d.wakeBlockClears(dl.DestID, dl.Port)
			d.checkReady(dl.DestID)
		}
	}

	// The completed function itself may be immediately ready again
	// (loop-backs, `always` initialisers already refilled by TakeInputs).
	d.checkReady(id)

	return nil
}

// wakeBlockClears re-attempts delivery for every writer previously
// blocked on (blockerID=destID, port) now that it has drained, in
// lower-function-id-first order (§4.4 tie-break).
func (d *Dispatcher) wakeBlockClears(destID, port int) {
	cleared := d.g.Blocks.ClearForPort(destID, port)
	if len(cleared) == 0 {
		return
	}
	d.observer.OnBlockCleared(cleared, destID, port)
	for _, writerID := range cleared {
		d.retryPendingDelivery(writerID)
	}
}

// retryPendingDelivery re-runs the router against a writer's held output
// now that at least one of its blocks cleared; it may still be blocked on
// a different destination, in which case it goes back to holding.
func (d *Dispatcher) retryPendingDelivery(writerID int) {
	fs := d.g.States[writerID]
	pending := fs.TakePending()
	if pending == nil {
		return
	}

	outcome, err := router.Route(d.g, writerID, pending.Output)
	if err != nil {
		logging.Op().Error("dispatcher: retry delivery failed", "function", d.g.Defs[writerID].Name, "error", err)
		fs.HoldPending(pending)
		return
	}

	if outcome.Blocked {
		fs.HoldPending(pending)
		for _, b := range outcome.Blocks {
			d.g.Blocks.Add(b.BlockedID, b.BlockerID, b.Port)
			d.observer.OnBlockCreated(b)
		}
		return
	}

	for _, dl := range outcome.Delivered {
		d.observer.OnWrite(dl.DestID, dl.Port, dl.NewlySatisfied)
		if dl.NewlySatisfied {
			d.wakeBlockClears(dl.DestID, dl.Port)
			d.checkReady(dl.DestID)
		}
	}
	d.checkReady(writerID)
}

// handleFailure converts an executor failure into a fatal submission
// error (§7 default). Every failure is fatal: FunctionDef has no
// recoverable flag, so no failure is demoted to skip-and-continue.
func (d *Dispatcher) handleFailure(id int, def *graph.FunctionDef, c graph.Completion) error {
	ff := &flowerr.FunctionFailure{
		FunctionID:   id,
		FunctionName: def.Name,
		Cause:        c.Err,
	}
	logging.Op().Error("dispatcher: function failed", "function", def.Name, "id", id, "job_id", c.Job.JobID, "error", c.Err)
	return ff
}

// NewJobID returns a sortable, globally-unique id suitable for debugger
// and metrics correlation (distinct from the dispatch generation counter,
// which only needs to be unique and monotonic within one run).
func NewJobID() string {
	return ulid.Make().String()
}
