// Package router implements the Value Router (C3): given one output value
// produced by a function, it walks each output connection's sub-path,
// destructures arrays into per-element deliveries when the destination
// expects an element type, wraps values at a destination sub-path, and
// writes the results into destination function states -- all or nothing
// for the whole output event (invariant 3).
package router

import (
	"fmt"
	"sort"

	"github.com/oriys/flow/internal/flowerr"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

// write is one concrete (destination function, port) delivery planned
// from a single output event. Multiple writes may target the same
// destination port (array destructuring); they are applied in the order
// planned, which preserves per-destination element ordering.
type write struct {
	destID int
	port   int
	value  value.Value
}

// Outcome reports what happened when Route was asked to deliver an
// output value.
type Outcome struct {
	// Delivered lists, in no particular cross-destination order, every
	// (destination id, port) pair that actually received a value in this
	// call, and whether that port transitioned from unsatisfied to
	// satisfied -- the dispatcher uses this to recompute readiness.
	Delivered []Delivery
	// Blocked is true when nothing was written because some destination
	// could not accept; Blocks describes every (blocker, port) the caller
	// must record in the block graph.
	Blocked bool
	Blocks  []graph.Block
}

// Delivery records one successful write's effect on destination readiness.
type Delivery struct {
	DestID       int
	Port         int
	NewlySatisfied bool
}

// Route delivers output (produced by function sourceID) along every one
// of sourceID's declared output connections. On success it performs all
// writes and reports which destinations newly became satisfied. If any
// destination cannot accept part of the planned delivery, NO writes are
// performed at all -- the caller should hold output as pending (e.g. via
// FunctionState.HoldPending) and add the returned blocks to the block
// graph; re-invoking Route with the same output once a block clears will
// re-plan deterministically from the same static connection list.
func Route(g *graph.Graph, sourceID int, output value.Value) (*Outcome, error) {
	def, ok := g.Defs[sourceID]
	if !ok {
		return nil, fmt.Errorf("router: unknown source function %d", sourceID)
	}

	var plan []write
	for _, conn := range def.Outputs {
		v, ok := value.Walk(output, conn.FromSub)
		if !ok {
			if conn.Optional {
				continue
			}
			return nil, &flowerr.RoutingError{
				SourceFunctionID: sourceID,
				OutputSubPath:    conn.FromSub,
				Reason:           "sub-path does not resolve on produced value",
			}
		}

		destDef := g.Defs[conn.ToFunction]
		destPortType := destDef.Inputs[conn.ToPort].Type

		writes, err := planConnection(sourceID, conn, v, destPortType)
		if err != nil {
			return nil, err
		}
		plan = append(plan, writes...)
	}

	return applyPlan(g, sourceID, output, plan)
}

// planConnection expands one connection into zero or more concrete writes,
// applying destructuring and destination sub-path wrapping.
func planConnection(sourceID int, conn graph.OutputConnection, v value.Value, destType graph.PortType) ([]write, error) {
	// Array producer, element-typed destination: destructure in order.
	if v.Kind() == value.Array && destType.Base != graph.KindArray && destType.Base != graph.KindGeneric {
		elems := v.Elements()
		writes := make([]write, 0, len(elems))
		for _, e := range elems {
			wrapped := value.WrapAt(conn.ToSub, e)
			writes = append(writes, write{destID: conn.ToFunction, port: conn.ToPort, value: wrapped})
		}
		return writes, nil
	}

	// Element producer, array-typed destination: composition is never
	// automatic (spec §4.3 point 3). The manifest declares no output
	// types, so the loader cannot detect this; it is reported here, at
	// delivery time, as a TypeMismatch.
	if v.Kind() != value.Array && destType.Base == graph.KindArray {
		return nil, &flowerr.LoadError{
			Kind:   flowerr.ErrTypeMismatch,
			Detail: fmt.Sprintf("function %d: cannot deliver non-array value to array port without an explicit accumulate/compose_array function", sourceID),
		}
	}

	wrapped := value.WrapAt(conn.ToSub, v)
	return []write{{destID: conn.ToFunction, port: conn.ToPort, value: wrapped}}, nil
}

// applyPlan checks capacity for the whole plan up front (accounting for
// multiple writes within the same call competing for the same port's
// remaining capacity) and either performs every write, or performs none
// and reports the blocking ports.
func applyPlan(g *graph.Graph, sourceID int, output value.Value, plan []write) (*Outcome, error) {
	if len(plan) == 0 {
		return &Outcome{}, nil
	}

	// reserved tracks how many slots this plan has already claimed per
	// (dest, port), so N writes destined for a capacity-1 port correctly
	// block after the first.
	reserved := make(map[[2]int]int)
	blockSet := make(map[[2]int]bool)

	for _, w := range plan {
		fs := g.States[w.destID]
		key := [2]int{w.destID, w.port}
		have := fs.QueueDepth(w.port) + reserved[key]
		if have >= capacityOf(fs, w.port) {
			blockSet[key] = true
			continue
		}
		reserved[key]++
	}

	if len(blockSet) > 0 {
		blocks := make([]graph.Block, 0, len(blockSet))
		for key := range blockSet {
			blocks = append(blocks, graph.Block{BlockedID: sourceID, BlockerID: key[0], Port: key[1]})
		}
		sort.Slice(blocks, func(i, j int) bool {
			if blocks[i].BlockerID != blocks[j].BlockerID {
				return blocks[i].BlockerID < blocks[j].BlockerID
			}
			return blocks[i].Port < blocks[j].Port
		})
		return &Outcome{Blocked: true, Blocks: blocks}, nil
	}

	deliveries := make([]Delivery, 0, len(plan))
	for _, w := range plan {
		fs := g.States[w.destID]
		transitioned, err := fs.Write(w.port, w.value)
		if err != nil {
			// Capacity was pre-checked above; this would indicate a
			// concurrent mutation, which cannot happen under the
			// single-dispatcher-goroutine ownership model (§5).
			return nil, fmt.Errorf("router: unexpected write failure on %d/%d: %w", w.destID, w.port, err)
		}
		deliveries = append(deliveries, Delivery{DestID: w.destID, Port: w.port, NewlySatisfied: transitioned})
	}

	return &Outcome{Delivered: deliveries}, nil
}

func capacityOf(fs *graph.FunctionState, port int) int {
	return fs.Capacity(port)
}
