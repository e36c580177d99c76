package graph

import "github.com/oriys/flow/internal/value"

// Job is one dispatched invocation: a function id, a monotonically
// increasing generation counter that uniquely identifies the dispatch and
// is echoed back in the completion, a sortable correlation id for logs,
// metrics, and the debugger to key on across process boundaries (a
// generation counter alone only means something within one run), and the
// drained input values.
type Job struct {
	FunctionID int
	Generation uint64
	JobID      string
	Values     []value.Value
}

// Completion is the result of running a Job. A function produces exactly
// one output Value per invocation; output connections navigate it by
// sub-path (§4.3) to reach each destination, so a single object- or
// array-shaped Value is how a function fans out to multiple connections.
type Completion struct {
	Job    Job
	Output value.Value
	Err    error
}
