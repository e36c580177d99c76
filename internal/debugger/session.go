// Package debugger implements the Debugger Hooks component (C8): a
// dispatcher.Observer that can cooperatively pause the scheduler at
// defined points (§4.8) without mutating any scheduling semantics --
// the pause simply blocks the dispatcher's own single goroutine inside
// whichever Observer callback noticed a matching breakpoint, so no
// other job can start while paused.
package debugger

import (
	"fmt"
	"sync"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

// PauseReason describes why the scheduler stopped, for the protocol
// layer to render.
type PauseReason struct {
	Breakpoint *Breakpoint // nil if paused by step-count exhaustion
	FunctionID int
	FunctionName string
	Detail       string
}

// Session is a dispatcher.Observer plus the breakpoint/step state it
// gates on. The zero value is not usable; use NewSession.
type Session struct {
	g *graph.Graph

	mu          sync.Mutex
	nextID      int
	breakpoints map[int]Breakpoint
	stepBudget  int // >0: pause after this many dispatches; 0: pause at every breakpoint only unless run-free; <0 unused sentinel never set
	runFree     bool

	resume chan struct{}
	onPause func(PauseReason)
}

// SetGraph attaches the loaded graph once it becomes available; callers
// that build a Session before the manifest is loaded (the debugger is
// wired in as an Observer before Submission.Submit returns the graph)
// must call this before using ListBreakpoints-adjacent inspect/validate
// commands.
func (s *Session) SetGraph(g *graph.Graph) {
	s.mu.Lock()
	s.g = g
	s.mu.Unlock()
}

// NewSession builds a Session over g. onPause is invoked synchronously
// (on the dispatcher's goroutine) every time the scheduler pauses; it
// should render state and return, after which the paused callback blocks
// until Continue/StepN/Reset is called on the returned Session.
func NewSession(g *graph.Graph, onPause func(PauseReason)) *Session {
	return &Session{
		g:           g,
		breakpoints: make(map[int]Breakpoint),
		resume:      make(chan struct{}),
		onPause:     onPause,
		runFree:     true,
	}
}

// SetBreakpoint registers bp and returns its assigned id.
func (s *Session) SetBreakpoint(bp Breakpoint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	bp.ID = s.nextID
	s.breakpoints[bp.ID] = bp
	return bp.ID
}

// DeleteBreakpoint removes a breakpoint by id.
func (s *Session) DeleteBreakpoint(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.breakpoints[id]; !ok {
		return false
	}
	delete(s.breakpoints, id)
	return true
}

// ListBreakpoints returns a snapshot of registered breakpoints.
func (s *Session) ListBreakpoints() []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		out = append(out, bp)
	}
	return out
}

// Reset clears all breakpoints and resumes free-running execution.
func (s *Session) Reset() {
	s.mu.Lock()
	s.breakpoints = make(map[int]Breakpoint)
	s.runFree = true
	s.mu.Unlock()
	s.Continue()
}

// Continue resumes free-running execution (paused only by breakpoints).
func (s *Session) Continue() {
	s.mu.Lock()
	s.runFree = true
	s.stepBudget = 0
	s.mu.Unlock()
	s.unblock()
}

// StepN resumes execution for exactly n further job dispatches, then
// pauses again (even if no breakpoint matched).
func (s *Session) StepN(n int) {
	s.mu.Lock()
	s.runFree = false
	s.stepBudget = n
	s.mu.Unlock()
	s.unblock()
}

func (s *Session) unblock() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}

// ValidateInvariants runs the debug-only partition check of §3 invariant
// 6 against the current per-function run states.
func (s *Session) ValidateInvariants() error {
	ready := make(map[int]bool)
	running := make(map[int]bool)
	for id, fs := range s.g.States {
		switch fs.RunState() {
		case graph.Ready:
			ready[id] = true
		case graph.Running:
			running[id] = true
		}
	}
	return s.g.CheckPartition(ready, running)
}

// BeforeDispatch implements dispatcher.Observer: pauses if a step
// budget has been exhausted or a function-id breakpoint matches def.
func (s *Session) BeforeDispatch(job graph.Job, def *graph.FunctionDef) {
	s.mu.Lock()
	var hit *Breakpoint
	for id, bp := range s.breakpoints {
		if bp.matchesDispatch(def) {
			b := s.breakpoints[id]
			hit = &b
			break
		}
	}

	pause := hit != nil
	if !s.runFree {
		if s.stepBudget <= 0 {
			pause = true
		} else {
			s.stepBudget--
		}
	}
	s.mu.Unlock()

	if pause {
		s.pause(PauseReason{Breakpoint: hit, FunctionID: def.ID, FunctionName: def.Name, Detail: fmt.Sprintf("before dispatch of %s (job %s, gen %d)", def.Name, job.JobID, job.Generation)})
	}
}

// AfterComplete implements dispatcher.Observer: checks output-sub-path
// breakpoints against the produced value.
func (s *Session) AfterComplete(c graph.Completion) {
	if c.Err != nil {
		return
	}
	s.mu.Lock()
	var hit *Breakpoint
	for id, bp := range s.breakpoints {
		if bp.Kind != OnOutput || bp.SourceID != c.Job.FunctionID {
			continue
		}
		if _, ok := value.Walk(c.Output, bp.OutputSubPath); ok {
			b := s.breakpoints[id]
			hit = &b
			break
		}
	}
	s.mu.Unlock()

	if hit != nil {
		s.pause(PauseReason{Breakpoint: hit, FunctionID: c.Job.FunctionID, Detail: fmt.Sprintf("output %q produced by function %d (job %s)", hit.OutputSubPath, c.Job.FunctionID, c.Job.JobID)})
	}
}

// OnBlockCreated implements dispatcher.Observer.
func (s *Session) OnBlockCreated(b graph.Block) {
	s.mu.Lock()
	var hit *Breakpoint
	for id, bp := range s.breakpoints {
		if bp.matchesBlock(b) {
			h := s.breakpoints[id]
			hit = &h
			break
		}
	}
	s.mu.Unlock()

	if hit != nil {
		s.pause(PauseReason{Breakpoint: hit, FunctionID: b.BlockedID, Detail: fmt.Sprintf("block %d -> %d on port %d", b.BlockedID, b.BlockerID, b.Port)})
	}
}

// OnBlockCleared implements dispatcher.Observer (no breakpoint kind
// targets block clearing, only creation, per §4.8).
func (s *Session) OnBlockCleared(blockedIDs []int, blockerID, port int) {}

// OnWrite implements dispatcher.Observer: checks destination-input
// breakpoints.
func (s *Session) OnWrite(destID, port int, satisfied bool) {
	s.mu.Lock()
	var hit *Breakpoint
	for id, bp := range s.breakpoints {
		if bp.matchesWrite(destID, port) {
			h := s.breakpoints[id]
			hit = &h
			break
		}
	}
	s.mu.Unlock()

	if hit != nil {
		s.pause(PauseReason{Breakpoint: hit, FunctionID: destID, Detail: fmt.Sprintf("write to function %d port %d", destID, port)})
	}
}

func (s *Session) pause(reason PauseReason) {
	if s.onPause != nil {
		s.onPause(reason)
	}
	<-s.resume
}
