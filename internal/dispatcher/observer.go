package dispatcher

import "github.com/oriys/flow/internal/graph"

// Observer lets the debugger (C8) and metrics collection watch engine
// events without mutating scheduling semantics. BeforeDispatch may block
// the calling (dispatcher) goroutine cooperatively to implement
// breakpoints/step -- no execution happens while it is blocked, since the
// dispatcher never starts a job's executor call until BeforeDispatch
// returns.
type Observer interface {
	BeforeDispatch(job graph.Job, def *graph.FunctionDef)
	AfterComplete(c graph.Completion)
	OnBlockCreated(b graph.Block)
	OnBlockCleared(blockedIDs []int, blockerID, port int)
	OnWrite(destID, port int, satisfied bool)
}

// NopObserver implements Observer with no-ops; New substitutes it for a
// nil observer so Observer is never nil to check.
type NopObserver struct{}

func (NopObserver) BeforeDispatch(graph.Job, *graph.FunctionDef)         {}
func (NopObserver) AfterComplete(graph.Completion)                      {}
func (NopObserver) OnBlockCreated(graph.Block)                           {}
func (NopObserver) OnBlockCleared(blockedIDs []int, blockerID, port int) {}
func (NopObserver) OnWrite(destID, port int, satisfied bool)             {}

// MultiObserver fans every event out to a fixed list of observers, in
// order. Used by the submission layer (C7) to combine metrics
// recording, job logging, and the debugger's breakpoint hooks without
// any one of them knowing about the others.
type MultiObserver []Observer

func (m MultiObserver) BeforeDispatch(job graph.Job, def *graph.FunctionDef) {
	for _, o := range m {
		o.BeforeDispatch(job, def)
	}
}

func (m MultiObserver) AfterComplete(c graph.Completion) {
	for _, o := range m {
		o.AfterComplete(c)
	}
}

func (m MultiObserver) OnBlockCreated(b graph.Block) {
	for _, o := range m {
		o.OnBlockCreated(b)
	}
}

func (m MultiObserver) OnBlockCleared(blockedIDs []int, blockerID, port int) {
	for _, o := range m {
		o.OnBlockCleared(blockedIDs, blockerID, port)
	}
}

func (m MultiObserver) OnWrite(destID, port int, satisfied bool) {
	for _, o := range m {
		o.OnWrite(destID, port, satisfied)
	}
}
