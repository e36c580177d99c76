package submission_test

import (
	"bufio"
	"context"
	"os"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/oriys/flow/internal/dispatcher"
	"github.com/oriys/flow/internal/executor"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/stdlib"
	"github.com/oriys/flow/internal/value"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// every line written to it.
func captureStdout(t *testing.T, fn func()) []string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	w.Close()

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func newNativeExecutor() *executor.NativeExecutor {
	ne := executor.NewNativeExecutor(4)
	stdlib.Register(ne)
	return ne
}

func runGraph(t *testing.T, defs []*graph.FunctionDef, maxParallel int) *dispatcher.Result {
	t.Helper()
	g, err := graph.New(defs, 2)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	ne := newNativeExecutor()
	d := dispatcher.New(g, map[graph.ImplKind]dispatcher.Runner{graph.ImplNative: ne}, maxParallel, dispatcher.NopObserver{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("dispatcher.Run: %v", err)
	}
	return result
}

func native(id int, name, symbol string, inputs []graph.InputPortDef, outputs []graph.OutputConnection) *graph.FunctionDef {
	return &graph.FunctionDef{
		ID:             id,
		Name:           name,
		Implementation: graph.Implementation{Kind: graph.ImplNative, Location: symbol},
		Inputs:         inputs,
		Outputs:        outputs,
	}
}

// E1: one stdout function with a `once` initialiser.
func TestScenarioE1HelloWorld(t *testing.T) {
	hello := native(0, "hello", "stdout",
		[]graph.InputPortDef{{Type: graph.PortType{Base: graph.KindGeneric}, Init: &graph.Initialiser{Kind: graph.InitOnce, Value: value.NewString("Hello World!")}}},
		nil,
	)

	var result *dispatcher.Result
	lines := captureStdout(t, func() {
		result = runGraph(t, []*graph.FunctionDef{hello}, 0)
	})
	if result.Status != dispatcher.StatusSucceeded {
		t.Fatalf("status = %v, want Succeeded", result.Status)
	}
	if len(lines) != 1 || lines[0] != "Hello World!" {
		t.Fatalf("stdout lines = %v, want [Hello World!]", lines)
	}
}

// E2: sequence(1,1,3) -> add(i2=10) -> stdout, expect {11,12,13}.
func TestScenarioE2AddPipeline(t *testing.T) {
	seq := native(0, "sequence", "sequence",
		[]graph.InputPortDef{{Type: graph.PortType{Base: graph.KindObject}, Init: &graph.Initialiser{Kind: graph.InitOnce, Value: value.NewObject(map[string]value.Value{
			"current": value.NewNumber(1),
			"step":    value.NewNumber(1),
			"limit":   value.NewNumber(3),
		})}}},
		[]graph.OutputConnection{
			{FromSub: "value", ToFunction: 1, ToPort: 0},
			{FromSub: "next", ToFunction: 0, ToPort: 0, Optional: true},
		},
	)
	add := native(1, "add", "add",
		[]graph.InputPortDef{
			{Type: graph.PortType{Base: graph.KindNumber}},
			{Type: graph.PortType{Base: graph.KindNumber}, Init: &graph.Initialiser{Kind: graph.InitAlways, Value: value.NewNumber(10)}},
		},
		[]graph.OutputConnection{{ToFunction: 2, ToPort: 0}},
	)
	out := native(2, "stdout", "stdout", []graph.InputPortDef{{Type: graph.PortType{Base: graph.KindGeneric}}}, nil)

	lines := captureStdout(t, func() {
		result := runGraph(t, []*graph.FunctionDef{seq, add, out}, 0)
		if result.Status != dispatcher.StatusSucceeded {
			t.Fatalf("status = %v, want Succeeded", result.Status)
		}
	})

	got := map[string]bool{}
	for _, l := range lines {
		got[l] = true
	}
	want := []string{"11", "12", "13"}
	var gotSorted []string
	for l := range got {
		gotSorted = append(gotSorted, l)
	}
	sort.Strings(gotSorted)
	if len(gotSorted) != len(want) {
		t.Fatalf("stdout lines = %v, want set %v", lines, want)
	}
	for _, w := range want {
		if !got[w] {
			t.Fatalf("missing expected line %q in %v", w, lines)
		}
	}
}

// E5: a loopback counter reaches N after N external inputs.
func TestScenarioE5LoopbackAccumulator(t *testing.T) {
	const n = 5

	count := native(0, "count", "count",
		[]graph.InputPortDef{
			{Type: graph.PortType{Base: graph.KindNumber}, Init: &graph.Initialiser{Kind: graph.InitOnce, Value: value.NewNumber(0)}},
			{Type: graph.PortType{Base: graph.KindGeneric}},
		},
		[]graph.OutputConnection{
			{FromSub: "count", ToFunction: 0, ToPort: 0, Optional: true},
			{FromSub: "count", ToFunction: 1, ToPort: 0},
		},
	)
	out := native(1, "stdout", "stdout", []graph.InputPortDef{{Type: graph.PortType{Base: graph.KindGeneric}}}, nil)

	g, err := graph.New([]*graph.FunctionDef{count, out}, n)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := g.States[0].Write(1, value.NewNumber(float64(i))); err != nil {
			t.Fatalf("seed input %d: %v", i, err)
		}
	}

	ne := newNativeExecutor()
	d := dispatcher.New(g, map[graph.ImplKind]dispatcher.Runner{graph.ImplNative: ne}, 0, dispatcher.NopObserver{})

	var lines []string
	lines = captureStdout(t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := d.Run(ctx); err != nil {
			t.Fatalf("dispatcher.Run: %v", err)
		}
	})

	if len(lines) != n {
		t.Fatalf("stdout line count = %d, want %d (lines=%v)", len(lines), n, lines)
	}
	last, err := strconv.Atoi(lines[len(lines)-1])
	if err != nil {
		t.Fatalf("parse last count: %v", err)
	}
	if last != n {
		t.Fatalf("final count = %d, want %d", last, n)
	}
}
