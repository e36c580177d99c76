package router

import (
	"testing"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

func defWithOutputs(id int, outs []graph.OutputConnection) *graph.FunctionDef {
	return &graph.FunctionDef{ID: id, Name: "f", Outputs: outs}
}

func plainDest(id int, portType graph.PortType) *graph.FunctionDef {
	return &graph.FunctionDef{ID: id, Name: "dest", Inputs: []graph.InputPortDef{{Type: portType}}}
}

func mustGraph(t *testing.T, defs []*graph.FunctionDef, cap int) *graph.Graph {
	t.Helper()
	g, err := graph.New(defs, cap)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	return g
}

func TestDestructuringLaw(t *testing.T) {
	src := defWithOutputs(1, []graph.OutputConnection{{ToFunction: 2, ToPort: 0}})
	dst := plainDest(2, graph.PortType{Base: graph.KindNumber})
	g := mustGraph(t, []*graph.FunctionDef{src, dst}, 10)

	arr := value.NewArray([]value.Value{value.NewNumber(1), value.NewNumber(2), value.NewNumber(3)})
	out, err := Route(g, 1, arr)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if out.Blocked {
		t.Fatalf("expected not blocked")
	}
	if len(out.Delivered) != 3 {
		t.Fatalf("expected 3 deliveries (one per element), got %d", len(out.Delivered))
	}
	if g.States[2].QueueDepth(0) != 3 {
		t.Fatalf("expected queue depth 3, got %d", g.States[2].QueueDepth(0))
	}
}

func TestAllOrBlockOnCapacity(t *testing.T) {
	src := defWithOutputs(1, []graph.OutputConnection{{ToFunction: 2, ToPort: 0}})
	dst := plainDest(2, graph.PortType{Base: graph.KindNumber})
	g := mustGraph(t, []*graph.FunctionDef{src, dst}, 1) // capacity 1

	arr := value.NewArray([]value.Value{value.NewNumber(1), value.NewNumber(2)})
	out, err := Route(g, 1, arr)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !out.Blocked {
		t.Fatalf("expected blocked: capacity 1 cannot hold 2 destructured writes at once")
	}
	if g.States[2].QueueDepth(0) != 0 {
		t.Fatalf("expected zero writes performed under block (all-or-nothing), got depth %d", g.States[2].QueueDepth(0))
	}
	if len(out.Blocks) != 1 || out.Blocks[0].BlockerID != 2 || out.Blocks[0].Port != 0 {
		t.Fatalf("unexpected blocks: %+v", out.Blocks)
	}
}

func TestElementToArrayIsTypeError(t *testing.T) {
	src := defWithOutputs(1, []graph.OutputConnection{{ToFunction: 2, ToPort: 0}})
	dst := plainDest(2, graph.PortType{Base: graph.KindArray, Elem: graph.KindNumber})
	g := mustGraph(t, []*graph.FunctionDef{src, dst}, 10)

	_, err := Route(g, 1, value.NewNumber(5))
	if err == nil {
		t.Fatalf("expected type mismatch error for element -> array without explicit compose")
	}
}

func TestDestSubPathWrapping(t *testing.T) {
	src := defWithOutputs(1, []graph.OutputConnection{{ToFunction: 2, ToPort: 0, ToSub: "payload"}})
	dst := plainDest(2, graph.PortType{Base: graph.KindGeneric})
	g := mustGraph(t, []*graph.FunctionDef{src, dst}, 10)

	_, err := Route(g, 1, value.NewString("hi"))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	vals, err := g.States[2].TakeInputs()
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	got, ok := value.Walk(vals[0], "/payload")
	if !ok || got.Str() != "hi" {
		t.Fatalf("expected wrapped value at /payload, got %v", vals[0])
	}
}

func TestSelfLoopDelivery(t *testing.T) {
	def := &graph.FunctionDef{
		ID:   1,
		Name: "accumulator",
		Inputs: []graph.InputPortDef{
			{Type: graph.PortType{Base: graph.KindNumber}},
		},
	}
	def.Outputs = []graph.OutputConnection{{ToFunction: 1, ToPort: 0}}
	g := mustGraph(t, []*graph.FunctionDef{def}, 1)

	out, err := Route(g, 1, value.NewNumber(42))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if out.Blocked {
		t.Fatalf("expected self-write to succeed when own port has room")
	}
	vals, err := g.States[1].TakeInputs()
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if vals[0].Number() != 42 {
		t.Fatalf("expected 42, got %v", vals[0].Number())
	}
}
