// Package graph holds the flat, by-id graph representation: function
// definitions, their input/output wiring, the per-function runtime state
// machine, and the block graph that enforces back-pressure. Functions are
// indexed by id; edges are plain records rather than pointers, so cycles
// and self-edges (loop-back accumulators) are representable without any
// ownership cycle in the Go object graph.
package graph

import (
	"fmt"

	"github.com/oriys/flow/internal/value"
)

// PortKind is the declared type tag of an input port.
type PortKind int

const (
	KindNumber PortKind = iota
	KindString
	KindBoolean
	KindArray
	KindObject
	KindGeneric
)

func (k PortKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// PortType is a port's declared type: a base kind, plus an element kind
// when Base is Array (manifest syntax "array/T").
type PortType struct {
	Base PortKind
	Elem PortKind // meaningful only when Base == KindArray
}

func (t PortType) String() string {
	if t.Base == KindArray {
		return "array/" + t.Elem.String()
	}
	return t.Base.String()
}

// InitKind distinguishes the two initialiser variants.
type InitKind int

const (
	InitNone InitKind = iota
	InitOnce
	InitAlways
)

// Initialiser is a value written into an input at engine start (Once) or
// on every invocation (Always).
type Initialiser struct {
	Kind  InitKind
	Value value.Value
}

// InputPortDef is the static declaration of one input port.
type InputPortDef struct {
	Type PortType
	Init *Initialiser // nil if the port has no initialiser
}

// ImplKind distinguishes native, WASM, and remote implementations.
type ImplKind int

const (
	ImplNative ImplKind = iota
	ImplWasm
	ImplRemote
)

// Implementation is a resolved (or resolvable) function body reference.
type Implementation struct {
	Kind     ImplKind
	Location string // native symbol name, wasm module path, or remote endpoint
}

// OutputConnection is a directed edge from one output sub-path of a
// function to one input (sub-path) of a destination function.
type OutputConnection struct {
	FromSub    string // "" means the whole output value
	ToFunction int
	ToPort     int
	ToSub      string // "" means write the whole (possibly destructured) value
	Optional   bool   // if true, an unresolved FromSub is dropped rather than fatal
}

// FunctionDef is the static, load-time description of a graph node.
type FunctionDef struct {
	ID             int
	Name           string
	Inputs         []InputPortDef
	Implementation Implementation
	Outputs        []OutputConnection
	// Reentrant being false marks the function as non-reentrant: the
	// dispatcher will never run two jobs for this function concurrently.
	// Default (zero value) is reentrant = true via the NonReentrant flag
	// being false.
	NonReentrant bool
}

func (f *FunctionDef) String() string {
	return fmt.Sprintf("#%d(%s)", f.ID, f.Name)
}
