// Package executor implements the polymorphic Executors (C6): one
// dispatcher.Runner per implementation kind a manifest can declare for a
// function (native, WASM, remote, §4.6). The dispatcher holds one Runner
// per kind and never learns how a job is actually carried out; this
// package is where that "how" lives.
//
// # Invocation pipeline
//
// Every Runner wraps its actual call with the same three side effects,
// mirroring the teacher's Invoke pipeline:
//
//  1. A span via observability.StartSpan, closed with SetSpanOK/SetSpanError.
//  2. The call itself, under the caller's context so a manifest-wide
//     cancellation aborts it promptly.
//  3. Metrics and logging are NOT recorded here -- that happens once,
//     uniformly, in the dispatcher.Observer the submission layer wires up
//     (internal/metrics.Observer, internal/logging.Observer), so a
//     function's cost is counted exactly once regardless of which Runner
//     executed it.
//
// # Concurrency
//
// All Runners must be safe for concurrent use: the dispatcher launches
// each job's Run call on its own goroutine and may have many in flight
// at once (§5).
package executor

import (
	"context"
	"fmt"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/observability"
	"github.com/oriys/flow/internal/value"
)

// traced wraps a Runner's actual work with the standard span, matching
// every concrete Runner's tracing shape without repeating it three times.
func traced(ctx context.Context, def *graph.FunctionDef, work func(context.Context) (value.Value, error)) (value.Value, error) {
	ctx, span := observability.StartSpan(ctx, "flow.run",
		observability.AttrFunctionID.String(fmt.Sprint(def.ID)),
		observability.AttrFunctionName.String(def.Name),
		observability.AttrImplKind.String(implKindString(def.Implementation.Kind)),
	)
	defer span.End()

	out, err := work(ctx)
	if err != nil {
		observability.SetSpanError(span, err)
		return value.Value{}, err
	}
	observability.SetSpanOK(span)
	return out, nil
}

func implKindString(k graph.ImplKind) string {
	switch k {
	case graph.ImplNative:
		return "native"
	case graph.ImplWasm:
		return "wasm"
	case graph.ImplRemote:
		return "remote"
	default:
		return "unknown"
	}
}
