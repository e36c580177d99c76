package metrics

import (
	"sync"
	"time"

	"github.com/oriys/flow/internal/graph"
)

// Observer records per-job metrics by implementing dispatcher.Observer.
// It is defined here rather than in the dispatcher package so the
// dispatcher has no compile-time dependency on the metrics stack --
// only the submission layer wires the two together.
type Observer struct {
	m      *Metrics
	mu     sync.Mutex
	starts map[uint64]jobStart
}

type jobStart struct {
	at   time.Time
	name string
}

// NewObserver returns an Observer recording into m.
func NewObserver(m *Metrics) *Observer {
	return &Observer{m: m, starts: make(map[uint64]jobStart)}
}

func (o *Observer) BeforeDispatch(job graph.Job, def *graph.FunctionDef) {
	o.mu.Lock()
	o.starts[job.Generation] = jobStart{at: time.Now(), name: def.Name}
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
	durationMs := time.Since(start.at).Milliseconds()
	o.m.RecordJob(c.Job.FunctionID, start.name, durationMs, c.Err == nil, false)
}

func (o *Observer) OnBlockCreated(b graph.Block) {}

func (o *Observer) OnBlockCleared(blockedIDs []int, blockerID, port int) {}

func (o *Observer) OnWrite(destID, port int, satisfied bool) {}
