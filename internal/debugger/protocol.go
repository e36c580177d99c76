package debugger

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol is the textual single-letter command interface of §6: each
// line is a command letter plus space-separated arguments. It drives a
// Session from a reader (cmd/flowr passes stdin) and writes
// human-readable responses to w.
type Protocol struct {
	s *Session
	w io.Writer
}

// NewProtocol binds a Protocol to s, writing responses to w.
func NewProtocol(s *Session, w io.Writer) *Protocol {
	return &Protocol{s: s, w: w}
}

// Serve reads commands from r until EOF (a "c" command resumes the run
// but does not end Serve), calling back into s. Intended to run on its
// own goroutine reading from stdin, independent of the paused dispatcher
// goroutine that Session.pause blocks.
func (p *Protocol) Serve(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.dispatch(line)
	}
	return scanner.Err()
}

func (p *Protocol) dispatch(line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "b": // b <kind> <args...> -- set breakpoint
		p.handleSetBreakpoint(args)
	case "d": // d <id> -- delete breakpoint
		p.handleDelete(args)
	case "l": // l -- list breakpoints
		p.handleList()
	case "s": // s <n> -- step n jobs
		p.handleStep(args)
	case "c": // c -- continue
		p.s.Continue()
		fmt.Fprintln(p.w, "continuing")
	case "r": // r -- reset
		p.s.Reset()
		fmt.Fprintln(p.w, "reset")
	case "i": // i -- inspect state
		p.handleInspect()
	case "v": // v -- validate invariants
		if err := p.s.ValidateInvariants(); err != nil {
			fmt.Fprintf(p.w, "invariant violation: %v\n", err)
		} else {
			fmt.Fprintln(p.w, "ok")
		}
	default:
		fmt.Fprintf(p.w, "unknown command %q\n", cmd)
	}
}

func (p *Protocol) handleSetBreakpoint(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(p.w, "usage: b <function|output|input|block> ...")
		return
	}
	var bp Breakpoint
	var err error
	switch args[0] {
	case "function":
		bp.Kind = OnFunction
		bp.FunctionID, err = parseArg(args, 1)
	case "output":
		if len(args) < 3 {
			err = fmt.Errorf("usage: b output <source_id> <sub_path>")
			break
		}
		bp.Kind = OnOutput
		bp.SourceID, err = strconv.Atoi(args[1])
		bp.OutputSubPath = args[2]
	case "input":
		bp.Kind = OnInput
		bp.DestID, err = parseArg(args, 1)
		if err == nil {
			bp.InputIndex, err = parseArg(args, 2)
		}
	case "block":
		bp.Kind = OnBlock
		bp.BlockedID, err = parseArg(args, 1)
		if err == nil && len(args) > 2 {
			bp.BlockerID, err = parseArg(args, 2)
		}
	default:
		err = fmt.Errorf("unknown breakpoint kind %q", args[0])
	}
	if err != nil {
		fmt.Fprintf(p.w, "error: %v\n", err)
		return
	}
	id := p.s.SetBreakpoint(bp)
	fmt.Fprintf(p.w, "breakpoint %d set\n", id)
}

func parseArg(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	return strconv.Atoi(args[i])
}

func (p *Protocol) handleDelete(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(p.w, "usage: d <id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(p.w, "error: %v\n", err)
		return
	}
	if p.s.DeleteBreakpoint(id) {
		fmt.Fprintf(p.w, "breakpoint %d deleted\n", id)
	} else {
		fmt.Fprintf(p.w, "no such breakpoint %d\n", id)
	}
}

func (p *Protocol) handleList() {
	bps := p.s.ListBreakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(p.w, "no breakpoints")
		return
	}
	for _, bp := range bps {
		fmt.Fprintf(p.w, "%d: %s\n", bp.ID, describe(bp))
	}
}

func describe(bp Breakpoint) string {
	switch bp.Kind {
	case OnFunction:
		return fmt.Sprintf("function %d", bp.FunctionID)
	case OnOutput:
		return fmt.Sprintf("output %d%s", bp.SourceID, bp.OutputSubPath)
	case OnInput:
		return fmt.Sprintf("input %d/%d", bp.DestID, bp.InputIndex)
	case OnBlock:
		return fmt.Sprintf("block %d->%d", bp.BlockedID, bp.BlockerID)
	default:
		return "unknown"
	}
}

func (p *Protocol) handleStep(args []string) {
	n := 1
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(p.w, "error: %v\n", err)
			return
		}
		n = v
	}
	p.s.StepN(n)
	fmt.Fprintf(p.w, "stepping %d job(s)\n", n)
}

func (p *Protocol) handleInspect() {
	for id, fs := range p.s.g.States {
		def := fs.Def()
		depths := make([]int, len(def.Inputs))
		for i := range def.Inputs {
			depths[i] = fs.QueueDepth(i)
		}
		fmt.Fprintf(p.w, "function %d (%s): %s, queue depths %v\n", id, def.Name, fs.RunState(), depths)
	}
}
