package logging

import (
	"sync"
	"time"

	"github.com/oriys/flow/internal/graph"
)

// Observer writes a JobLog entry for every completed job by implementing
// dispatcher.Observer. Kept in this package (rather than dispatcher)
// for the same reason as metrics.Observer: the dispatcher stays ignorant
// of logging, the submission layer wires the two together.
type Observer struct {
	l      *Logger
	mu     sync.Mutex
	starts map[uint64]jobStart
}

type jobStart struct {
	at         time.Time
	name       string
	jobID      string
	inputCount int
}

// NewObserver returns an Observer writing job logs via l.
func NewObserver(l *Logger) *Observer {
	return &Observer{l: l, starts: make(map[uint64]jobStart)}
}

func (o *Observer) BeforeDispatch(job graph.Job, def *graph.FunctionDef) {
	o.mu.Lock()
	o.starts[job.Generation] = jobStart{at: time.Now(), name: def.Name, jobID: job.JobID, inputCount: len(job.Values)}
	o.mu.Unlock()
}

func (o *Observer) AfterComplete(c graph.Completion) {
	o.mu.Lock()
	start, ok := o.starts[c.Job.Generation]
	delete(o.starts, c.Job.Generation)
	o.mu.Unlock()
	if !ok {
		return
	}

	entry := &JobLog{
		JobID:        start.jobID,
		Generation:   c.Job.Generation,
		FunctionID:   c.Job.FunctionID,
		FunctionName: start.name,
		DurationMs:   time.Since(start.at).Milliseconds(),
		Success:      c.Err == nil,
		InputCount:   start.inputCount,
	}
	if c.Err != nil {
		entry.Error = c.Err.Error()
	}
	o.l.Log(entry)
}

func (o *Observer) OnBlockCreated(b graph.Block) {}

func (o *Observer) OnBlockCleared(blockedIDs []int, blockerID, port int) {}

func (o *Observer) OnWrite(destID, port int, satisfied bool) {}
