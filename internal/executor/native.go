package executor

import (
	"context"
	"fmt"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

// NativeFunc is the signature every in-process function body implements.
// It receives the job's already-gathered input values (one per input
// port, in port order, per graph.Job.Values) and produces the single
// output value the router then walks apart by FromSub.
type NativeFunc func(ctx context.Context, job graph.Job, def *graph.FunctionDef) (value.Value, error)

// NativeExecutor is the dispatcher.Runner for graph.ImplNative: a symbol
// table of registered Go functions plus a bounded worker semaphore, the
// same fixed-size-pool shape the teacher uses for its own in-process
// invocation path.
type NativeExecutor struct {
	funcs map[string]NativeFunc
	sem   chan struct{}
}

// NewNativeExecutor builds a NativeExecutor with a pool of the given
// size; 0 or negative means unbounded.
func NewNativeExecutor(workers int) *NativeExecutor {
	e := &NativeExecutor{funcs: make(map[string]NativeFunc)}
	if workers > 0 {
		e.sem = make(chan struct{}, workers)
	}
	return e
}

// Register binds a symbol name (the manifest's implementation.location
// for a native function) to its Go implementation. Not safe to call
// concurrently with Run; registration happens once at startup before
// any manifest is loaded against this executor.
func (e *NativeExecutor) Register(symbol string, fn NativeFunc) {
	e.funcs[symbol] = fn
}

// Has reports whether symbol is registered, satisfying
// manifest.NativeRegistry for load-time ImplementationUnresolved checks.
func (e *NativeExecutor) Has(symbol string) bool {
	_, ok := e.funcs[symbol]
	return ok
}

func (e *NativeExecutor) Run(ctx context.Context, job graph.Job, def *graph.FunctionDef) (value.Value, error) {
	fn, ok := e.funcs[def.Implementation.Location]
	if !ok {
		return value.Value{}, fmt.Errorf("native: no symbol registered for %q", def.Implementation.Location)
	}

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return value.Value{}, ctx.Err()
		}
	}

	return traced(ctx, def, func(ctx context.Context) (value.Value, error) {
		return fn(ctx, job, def)
	})
}
