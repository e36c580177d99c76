// Package stdlib provides the small set of native context functions
// needed to express spec.md §8's end-to-end scenarios: a sink
// (stdout), a pure producer/consumer pair (sequence, add), and the two
// loopback-accumulator shapes (accumulate, count) built from §4.2's
// initialiser refill + a self-edge, exactly the pattern E5 describes.
// Every function here is pure in the sense spec.md §3 invariant 4
// requires: all "memory" between invocations is threaded explicitly
// through a value carried on a self-loop edge, never held in the Go
// function's own closure state.
package stdlib

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/oriys/flow/internal/executor"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

// Register binds every stdlib function to ne under its conventional
// symbol name.
func Register(ne *executor.NativeExecutor) {
	ne.Register("stdout", Stdout)
	ne.Register("sequence", Sequence)
	ne.Register("add", Add)
	ne.Register("accumulate", Accumulate)
	ne.Register("count", Count)
}

// Stdout is a sink: it renders its single input and writes it followed
// by a newline to os.Stdout, and produces no output of its own.
func Stdout(_ context.Context, job graph.Job, _ *graph.FunctionDef) (value.Value, error) {
	fmt.Fprintln(os.Stdout, render(job.Values[0]))
	return value.NewNull(), nil
}

func render(v value.Value) string {
	switch v.Kind() {
	case value.Number:
		n := v.Number()
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case value.String:
		return v.Str()
	case value.Bool:
		return strconv.FormatBool(v.Bool())
	case value.Null:
		return "null"
	default:
		return v.String()
	}
}

// Sequence is a loopback producer. Its single input port carries an
// object {current, step, limit}, initialised `once` with the starting
// triple. While current <= limit it emits {value: current, next: {...}}
// -- "value" feeds the downstream consumer, "next" feeds back to the
// function's own input via a self-loop edge marked optional. The last
// value (when current+step exceeds limit) is emitted without "next", so
// the optional self-loop edge is skipped and the sequence ends without a
// RoutingError. A starting triple already past limit yields {}.
func Sequence(_ context.Context, job graph.Job, _ *graph.FunctionDef) (value.Value, error) {
	state := job.Values[0].Fields()
	current := state["current"].Number()
	step := state["step"].Number()
	limit := state["limit"].Number()

	if current > limit {
		return value.NewObject(map[string]value.Value{}), nil
	}

	out := map[string]value.Value{"value": value.NewNumber(current)}
	if current+step <= limit {
		out["next"] = value.NewObject(map[string]value.Value{
			"current": value.NewNumber(current + step),
			"step":    value.NewNumber(step),
			"limit":   value.NewNumber(limit),
		})
	}
	return value.NewObject(out), nil
}

// Add takes a flowing number on port 0 and a constant (typically an
// `always` initialiser, auto-refilled by graph.FunctionState) on port
// 1, and emits their sum.
func Add(_ context.Context, job graph.Job, _ *graph.FunctionDef) (value.Value, error) {
	return value.NewNumber(job.Values[0].Number() + job.Values[1].Number()), nil
}

// Accumulate buffers a flowing element (port 0) into an object
// {items, chunk_size} carried on a self-loop (port 1, initialised
// `once` with an empty items array and the desired chunk size). Once
// items reaches chunk_size it emits {emit: items} to the downstream
// consumer and resets the loopback state; otherwise it only emits the
// grown state back to itself.
func Accumulate(_ context.Context, job graph.Job, _ *graph.FunctionDef) (value.Value, error) {
	elem := job.Values[0]
	state := job.Values[1].Fields()
	chunkSize := int(state["chunk_size"].Number())
	items := append(state["items"].Elements(), elem)

	if len(items) >= chunkSize {
		return value.NewObject(map[string]value.Value{
			"emit": value.NewArray(items),
			"next_state": value.NewObject(map[string]value.Value{
				"items":      value.NewArray(nil),
				"chunk_size": value.NewNumber(float64(chunkSize)),
			}),
		}), nil
	}
	return value.NewObject(map[string]value.Value{
		"next_state": value.NewObject(map[string]value.Value{
			"items":      value.NewArray(items),
			"chunk_size": value.NewNumber(float64(chunkSize)),
		}),
	}), nil
}

// Count is the minimal loopback accumulator of E5: port 0 carries the
// running count (initialised `once = 0`, fed back to itself via a
// self-loop edge), port 1 receives each external value to be counted
// (no initialiser). Every invocation increments the count by one and
// emits it, regardless of the external value's own content.
func Count(_ context.Context, job graph.Job, _ *graph.FunctionDef) (value.Value, error) {
	current := job.Values[0].Number()
	return value.NewObject(map[string]value.Value{
		"count": value.NewNumber(current + 1),
	}), nil
}
