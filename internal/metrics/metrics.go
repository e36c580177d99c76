// Package metrics collects and exposes engine runtime observability data
// for one run of the dispatcher.
//
// # Design rationale
//
// Two metric stores coexist, mirroring the teacher's dual-store design:
//
//  1. The in-process Metrics struct (per-function atomic counters) for a
//     cheap end-of-run JSON summary (cmd/flowr's --metrics flag).
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems when the engine is embedded in a longer-lived
//     process.
//
// # Concurrency -- hot path
//
// RecordJob is called from the dispatcher goroutine on every job
// completion and uses atomic increments exclusively; the sync.Map that
// stores per-function entries is read-heavy and write-once-per-function,
// the same justification the teacher gives for the identical choice.
package metrics

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects run-wide counters.
type Metrics struct {
	TotalJobs   atomic.Int64
	SucceededJobs atomic.Int64
	FailedJobs  atomic.Int64
	BlockedJobs atomic.Int64

	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	funcMetrics sync.Map // function id -> *FunctionMetrics

	startTime time.Time
}

// FunctionMetrics tracks metrics for a single function definition.
type FunctionMetrics struct {
	Jobs      atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
	TotalMs   atomic.Int64
	MinMs     atomic.Int64
	MaxMs     atomic.Int64
}

var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1))
}

// Global returns the global metrics instance for the current run.
func Global() *Metrics {
	return global
}

// Reset clears all counters by replacing the global instance; Observers
// built on the previous Global() value keep recording into that one.
func Reset() {
	global = &Metrics{startTime: time.Now()}
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1))
}

// StartTime returns when the metrics subsystem was initialised.
func StartTime() time.Time {
	return global.startTime
}

// RecordJob records one completed job.
func (m *Metrics) RecordJob(functionID int, functionName string, durationMs int64, success bool, blocked bool) {
	m.TotalJobs.Add(1)
	if blocked {
		m.BlockedJobs.Add(1)
	} else if success {
		m.SucceededJobs.Add(1)
	} else {
		m.FailedJobs.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	fm := m.getFunctionMetrics(functionID)
	fm.Jobs.Add(1)
	if success {
		fm.Successes.Add(1)
	} else {
		fm.Failures.Add(1)
	}
	fm.TotalMs.Add(durationMs)
	updateMin(&fm.MinMs, durationMs)
	updateMax(&fm.MaxMs, durationMs)

	RecordPrometheusJob(functionName, durationMs, success, blocked)
}

func (m *Metrics) getFunctionMetrics(functionID int) *FunctionMetrics {
	if v, ok := m.funcMetrics.Load(functionID); ok {
		return v.(*FunctionMetrics)
	}
	fm := &FunctionMetrics{}
	fm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.funcMetrics.LoadOrStore(functionID, fm)
	return actual.(*FunctionMetrics)
}

// GetFunctionMetrics returns metrics for one function, or nil if it never ran.
func (m *Metrics) GetFunctionMetrics(functionID int) *FunctionMetrics {
	if v, ok := m.funcMetrics.Load(functionID); ok {
		return v.(*FunctionMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time summary of run-wide counters.
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalJobs.Load()
	avg := float64(0)
	if total > 0 {
		avg = float64(m.TotalLatencyMs.Load()) / float64(total)
	}
	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}
	return map[string]interface{}{
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"jobs": map[string]interface{}{
			"total":     total,
			"succeeded": m.SucceededJobs.Load(),
			"failed":    m.FailedJobs.Load(),
			"blocked":   m.BlockedJobs.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avg,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
	}
}

// FunctionStats returns per-function counters.
func (m *Metrics) FunctionStats() map[string]interface{} {
	result := make(map[string]interface{})
	m.funcMetrics.Range(func(key, value interface{}) bool {
		id := key.(int)
		fm := value.(*FunctionMetrics)
		total := fm.Jobs.Load()
		avg := float64(0)
		if total > 0 {
			avg = float64(fm.TotalMs.Load()) / float64(total)
		}
		minMs := fm.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}
		result[strconv.Itoa(id)] = map[string]interface{}{
			"jobs":      total,
			"successes": fm.Successes.Load(),
			"failures":  fm.Failures.Load(),
			"avg_ms":    avg,
			"min_ms":    minMs,
			"max_ms":    fm.MaxMs.Load(),
		}
		return true
	})
	return result
}

// JSON renders Snapshot+FunctionStats as an indented JSON document, the
// shape printed by `flowr run --metrics`.
func (m *Metrics) JSON() ([]byte, error) {
	result := m.Snapshot()
	result["functions"] = m.FunctionStats()
	return json.MarshalIndent(result, "", "  ")
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
