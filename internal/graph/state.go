package graph

import (
	"fmt"
	"sync"

	"github.com/oriys/flow/internal/value"
)

// RunState is one of the six states a function can occupy (§3).
type RunState int

const (
	Initial RunState = iota
	Ready
	Running
	WaitingOnInput
	BlockedOnOutput
	Terminated
)

func (s RunState) String() string {
	switch s {
	case Initial:
		return "initial"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case WaitingOnInput:
		return "waiting_on_input"
	case BlockedOnOutput:
		return "blocked_on_output"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrPortFull is returned by Write when the destination port is at
// capacity; callers must consult CanAccept before writing and treat a
// full port as a block condition, never retry Write in a loop.
var ErrPortFull = fmt.Errorf("graph: input port full")

// ErrNotAllSatisfied is returned by TakeInputs when called on a function
// whose ports are not all satisfied; it is a programmer error to call it
// otherwise (invariant 1).
var ErrNotAllSatisfied = fmt.Errorf("graph: not all inputs satisfied")

// PendingOutput holds a run's output that could not be fully delivered,
// per invariant 3 (partial delivery never occurs -- the whole set waits).
// Retrying delivery means re-running the router against the same Output
// value once the blocking port drains; the connection list is static, so
// the resulting write plan is deterministic and need not be cached.
type PendingOutput struct {
	Output value.Value
}

// FunctionState is the per-function runtime record: C2's input queues,
// pending-output holding area, and the function's position in the state
// machine of §3.
type FunctionState struct {
	mu       sync.Mutex
	def      *FunctionDef
	capacity int
	queues   [][]value.Value
	run      RunState
	pending  *PendingOutput // set while BlockedOnOutput
	runCount int64          // successful invocations; used by debugger/metrics
}

// NewFunctionState builds runtime state for def with the given per-port
// queue capacity (capacity=1 gives strict dataflow semantics; deeper
// queues are an allowed optimisation, per §4.2).
func NewFunctionState(def *FunctionDef, capacity int) *FunctionState {
	if capacity < 1 {
		capacity = 1
	}
	fs := &FunctionState{
		def:      def,
		capacity: capacity,
		queues:   make([][]value.Value, len(def.Inputs)),
		run:      Initial,
	}
	return fs
}

// ApplyOnceInitialisers writes every `once` initialiser's value exactly
// one time; called once at engine start (invariant 5).
func (fs *FunctionState) ApplyOnceInitialisers() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i, in := range fs.def.Inputs {
		if in.Init != nil && in.Init.Kind == InitOnce {
			fs.queues[i] = append(fs.queues[i], in.Init.Value)
		}
	}
}

// CanAccept reports whether portIndex is below capacity.
func (fs *FunctionState) CanAccept(portIndex int) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.queues[portIndex]) < fs.capacity
}

// Write enqueues v on portIndex. It returns (transitioned, err) where
// transitioned reports whether the port went from empty to non-empty
// (unsatisfied -> satisfied). Write never overwrites or drops a value
// (invariant 2): if the port is full it returns ErrPortFull and the
// caller (router/dispatcher) must treat this as a block, not retry here.
func (fs *FunctionState) Write(portIndex int, v value.Value) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if portIndex < 0 || portIndex >= len(fs.queues) {
		return false, fmt.Errorf("graph: port index %d out of range for %s", portIndex, fs.def)
	}
	if len(fs.queues[portIndex]) >= fs.capacity {
		return false, ErrPortFull
	}
	wasEmpty := len(fs.queues[portIndex]) == 0
	fs.queues[portIndex] = append(fs.queues[portIndex], v)
	return wasEmpty, nil
}

// Satisfied reports whether every input port currently holds a value.
func (fs *FunctionState) Satisfied() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.satisfiedLocked()
}

func (fs *FunctionState) satisfiedLocked() bool {
	for _, q := range fs.queues {
		if len(q) == 0 {
			return false
		}
	}
	return true
}

// TakeInputs drains exactly one value from every port to form a job's
// input set (invariant 1: never called, by contract, unless all ports
// are satisfied). Always initialisers are refilled immediately after the
// drain so the next readiness check observes them.
func (fs *FunctionState) TakeInputs() ([]value.Value, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.satisfiedLocked() {
		return nil, ErrNotAllSatisfied
	}
	out := make([]value.Value, len(fs.queues))
	for i := range fs.queues {
		out[i] = fs.queues[i][0]
		fs.queues[i] = fs.queues[i][1:]
	}
	for i, in := range fs.def.Inputs {
		if in.Init != nil && in.Init.Kind == InitAlways {
			fs.queues[i] = append(fs.queues[i], in.Init.Value)
		}
	}
	return out, nil
}

// RunState returns the current state.
func (fs *FunctionState) RunState() RunState {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.run
}

// SetRunState transitions the function's state; the dispatcher is the
// sole caller.
func (fs *FunctionState) SetRunState(s RunState) {
	fs.mu.Lock()
	fs.run = s
	fs.mu.Unlock()
}

// HoldPending stashes an undelivered output set while the function is
// BlockedOnOutput.
func (fs *FunctionState) HoldPending(p *PendingOutput) {
	fs.mu.Lock()
	fs.pending = p
	fs.run = BlockedOnOutput
	fs.mu.Unlock()
}

// TakePending clears and returns any held pending output, or nil if none.
func (fs *FunctionState) TakePending() *PendingOutput {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := fs.pending
	fs.pending = nil
	return p
}

// HasPending reports whether output is currently held undelivered.
func (fs *FunctionState) HasPending() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.pending != nil
}

// IncRunCount records one completed invocation.
func (fs *FunctionState) IncRunCount() {
	fs.mu.Lock()
	fs.runCount++
	fs.mu.Unlock()
}

// RunCount returns the number of completed invocations.
func (fs *FunctionState) RunCount() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.runCount
}

// Def returns the static definition backing this state.
func (fs *FunctionState) Def() *FunctionDef { return fs.def }

// Capacity returns the configured queue capacity. Capacity is uniform
// across a function's ports; the port index is accepted only so callers
// like router.capacityOf can index by port without a special case.
func (fs *FunctionState) Capacity(port int) int { return fs.capacity }

// QueueDepth returns the current queue length for a port (debug/metrics).
func (fs *FunctionState) QueueDepth(portIndex int) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if portIndex < 0 || portIndex >= len(fs.queues) {
		return 0
	}
	return len(fs.queues[portIndex])
}
