package graph

import "sort"

// Block records that BlockedID cannot run (or cannot deliver a completed
// run's output) because Port of BlockerID cannot currently accept a
// further value from it.
type Block struct {
	BlockedID int
	BlockerID int
	Port      int
}

// BlockGraph tracks back-pressure without silently buffering (§4.4). It is
// owned exclusively by the dispatcher goroutine and holds no mutex;
// callers on other goroutines must not read it concurrently.
type BlockGraph struct {
	blocks []Block
}

// NewBlockGraph returns an empty block graph.
func NewBlockGraph() *BlockGraph {
	return &BlockGraph{}
}

// Add records a new block. Self-blocks (BlockedID == BlockerID) are
// permitted per §4.4's loop-back carve-out: they are resolved the next
// time the function drains its own input, exactly like any other block.
func (g *BlockGraph) Add(blockedID, blockerID, port int) {
	g.blocks = append(g.blocks, Block{BlockedID: blockedID, BlockerID: blockerID, Port: port})
}

// ClearForPort removes every block waiting on (blockerID, port) -- called
// when that port transitions full -> not-full -- and returns the blocked
// function ids in deterministic, lower-id-first order (§4.4 tie-break).
func (g *BlockGraph) ClearForPort(blockerID, port int) []int {
	var cleared []int
	kept := g.blocks[:0]
	for _, b := range g.blocks {
		if b.BlockerID == blockerID && b.Port == port {
			cleared = append(cleared, b.BlockedID)
			continue
		}
		kept = append(kept, b)
	}
	g.blocks = kept
	sort.Ints(cleared)
	return cleared
}

// IsBlocked reports whether blockedID currently has any outstanding block.
func (g *BlockGraph) IsBlocked(blockedID int) bool {
	for _, b := range g.blocks {
		if b.BlockedID == blockedID {
			return true
		}
	}
	return false
}

// Len returns the number of outstanding blocks (debug/metrics).
func (g *BlockGraph) Len() int { return len(g.blocks) }

// Snapshot returns a copy of all outstanding blocks, for the debugger.
func (g *BlockGraph) Snapshot() []Block {
	cp := make([]Block, len(g.blocks))
	copy(cp, g.blocks)
	return cp
}
