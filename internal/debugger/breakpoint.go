package debugger

import "github.com/oriys/flow/internal/graph"

// Kind distinguishes the four breakpoint predicate shapes of §4.8.
type Kind int

const (
	OnFunction Kind = iota // pause before any dispatch of a given function id
	OnOutput                // pause when a given (source_id, output_sub_path) is produced
	OnInput                 // pause when a given (destination_id, input_index) is written
	OnBlock                 // pause when a block (blocked_id -> blocker_id) is created
)

// Breakpoint is one of the four predicate shapes the debugger supports.
// Only the fields relevant to Kind are populated; zero value elsewhere.
type Breakpoint struct {
	ID   int
	Kind Kind

	FunctionID int // OnFunction

	SourceID      int    // OnOutput
	OutputSubPath string // OnOutput

	DestID     int // OnInput
	InputIndex int // OnInput

	BlockedID int // OnBlock
	BlockerID int // OnBlock (0 / unset matches any blocker)
}

func (b Breakpoint) matchesDispatch(def *graph.FunctionDef) bool {
	return b.Kind == OnFunction && b.FunctionID == def.ID
}

func (b Breakpoint) matchesWrite(destID, port int) bool {
	return b.Kind == OnInput && b.DestID == destID && b.InputIndex == port
}

func (b Breakpoint) matchesBlock(blk graph.Block) bool {
	if b.Kind != OnBlock || b.BlockedID != blk.BlockedID {
		return false
	}
	return b.BlockerID == 0 || b.BlockerID == blk.BlockerID
}
