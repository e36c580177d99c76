package graph

import (
	"fmt"
	"sort"
)

// Graph is the flat, loaded representation of a manifest: function
// definitions indexed by id, their runtime state, and the shared block
// graph. Edges live inside each FunctionDef.Outputs as plain by-id
// records, so cycles and self-edges need no special representation.
type Graph struct {
	Defs   map[int]*FunctionDef
	States map[int]*FunctionState
	Blocks *BlockGraph
	// Order preserves manifest declaration order for deterministic
	// iteration (debugger listings, property tests).
	Order []int
}

// New builds a Graph from function definitions, creating runtime state for
// each with the given default port-queue capacity and applying every
// `once` initialiser, plus the first value of every `always`
// initialiser, immediately (engine start, per §3 lifecycle).
func New(defs []*FunctionDef, capacity int) (*Graph, error) {
	g := &Graph{
		Defs:   make(map[int]*FunctionDef, len(defs)),
		States: make(map[int]*FunctionState, len(defs)),
		Blocks: NewBlockGraph(),
	}
	for _, d := range defs {
		if _, exists := g.Defs[d.ID]; exists {
			return nil, fmt.Errorf("graph: duplicate function id %d", d.ID)
		}
		g.Defs[d.ID] = d
		g.States[d.ID] = NewFunctionState(d, capacity)
		g.Order = append(g.Order, d.ID)
	}
	for _, d := range defs {
		for _, out := range d.Outputs {
			dest, ok := g.Defs[out.ToFunction]
			if !ok {
				return nil, fmt.Errorf("graph: function %d references unknown destination %d", d.ID, out.ToFunction)
			}
			if out.ToPort < 0 || out.ToPort >= len(dest.Inputs) {
				return nil, fmt.Errorf("graph: function %d -> %d references unknown input port %d", d.ID, out.ToFunction, out.ToPort)
			}
		}
	}
	for _, fs := range g.States {
		fs.ApplyOnceInitialisers()
		// An `always` initialiser also supplies the first run's value;
		// TakeInputs refills it after every later drain.
		for i, in := range fs.def.Inputs {
			if in.Init != nil && in.Init.Kind == InitAlways {
				fs.queues[i] = append(fs.queues[i], in.Init.Value)
			}
		}
	}
	return g, nil
}

// CheckPartition validates invariant 6: every function belongs to exactly
// one of {ready, running, blocked, waiting}, i.e. the run-state
// classification below partitions the function set. It is a debug-time
// check, intended for property tests, not the hot path.
func (g *Graph) CheckPartition(readySet, runningSet map[int]bool) error {
	seen := make(map[int]bool, len(g.Defs))
	classify := func(id int) string {
		switch {
		case readySet[id]:
			return "ready"
		case runningSet[id]:
			return "running"
		case g.Blocks.IsBlocked(id):
			return "blocked"
		default:
			return "waiting"
		}
	}
	counts := map[string]int{}
	for id := range g.Defs {
		if seen[id] {
			return fmt.Errorf("graph: function %d counted twice", id)
		}
		seen[id] = true
		counts[classify(id)]++
	}
	total := counts["ready"] + counts["running"] + counts["blocked"] + counts["waiting"]
	if total != len(g.Defs) {
		return fmt.Errorf("graph: partition mismatch: counted %d, have %d functions", total, len(g.Defs))
	}
	return nil
}

// SortedIDs returns function ids in ascending order, used anywhere a
// deterministic iteration is required (debugger listings, tie-breaks).
func (g *Graph) SortedIDs() []int {
	ids := make([]int, 0, len(g.Defs))
	for id := range g.Defs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
