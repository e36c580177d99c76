// Package manifest implements the Manifest Loader (C1): it decodes the
// compiled manifest's JSON shape (§6), resolves every function record's
// implementation reference, validates the invariants §4.1 requires, and
// produces a graph.Graph ready for the dispatcher.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/oriys/flow/internal/flowerr"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

// DTO is the top-level manifest document (§6): a format version, the
// flat function list, and each function's own output connections.
type DTO struct {
	ManifestFormat int              `json:"manifest_format"`
	Functions      []FunctionRecord `json:"functions"`
}

// FunctionRecord is one manifest function entry.
type FunctionRecord struct {
	ID             int               `json:"id"`
	Name           string            `json:"name"`
	Implementation ImplementationDTO `json:"implementation"`
	Inputs         []InputPortDTO    `json:"inputs"`
	Outputs        []ConnectionDTO   `json:"outputs"`
	NonReentrant   bool              `json:"non_reentrant,omitempty"`
}

// ImplementationDTO names a function body: kind is "native" or "wasm"
// (a manifest produced for the optional remote mode may also say
// "remote"); location is a native symbol name, a wasm module URI, or a
// remote endpoint, resolved by Loader.Load.
type ImplementationDTO struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

// InputPortDTO declares one input port's type and optional initialiser.
type InputPortDTO struct {
	Type    string          `json:"type"`
	Initial *InitialiserDTO `json:"initial,omitempty"`
}

// InitialiserDTO carries exactly one of Once or Always, per §3.
type InitialiserDTO struct {
	Once   json.RawMessage `json:"once,omitempty"`
	Always json.RawMessage `json:"always,omitempty"`
}

// ConnectionDTO is one output connection (§6).
type ConnectionDTO struct {
	FromSub  string `json:"from_sub,omitempty"`
	To       int    `json:"to"`
	ToPort   int    `json:"to_port"`
	ToSub    string `json:"to_sub,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// LibraryManifestDTO resolves a library reference relative to a search
// path: `{ name, functions: [ { signature, implementation_location } ] }`.
type LibraryManifestDTO struct {
	Name      string               `json:"name"`
	Functions []LibraryFunctionDTO `json:"functions"`
}

// LibraryFunctionDTO is one exported function of a library manifest.
type LibraryFunctionDTO struct {
	Signature              string `json:"signature"`
	ImplementationLocation string `json:"implementation_location"`
}

func parsePortType(s string) (graph.PortType, error) {
	switch s {
	case "number":
		return graph.PortType{Base: graph.KindNumber}, nil
	case "string":
		return graph.PortType{Base: graph.KindString}, nil
	case "boolean":
		return graph.PortType{Base: graph.KindBoolean}, nil
	case "object":
		return graph.PortType{Base: graph.KindObject}, nil
	case "generic":
		return graph.PortType{Base: graph.KindGeneric}, nil
	}
	if len(s) > 6 && s[:6] == "array/" {
		elem, err := parsePortType(s[6:])
		if err != nil {
			return graph.PortType{}, err
		}
		return graph.PortType{Base: graph.KindArray, Elem: elem.Base}, nil
	}
	return graph.PortType{}, fmt.Errorf("manifest: unknown port type %q", s)
}

func parseImplKind(s string) (graph.ImplKind, error) {
	switch s {
	case "native":
		return graph.ImplNative, nil
	case "wasm":
		return graph.ImplWasm, nil
	case "remote":
		return graph.ImplRemote, nil
	default:
		return 0, fmt.Errorf("manifest: unknown implementation kind %q", s)
	}
}

// compileFunction turns one FunctionRecord into a graph.FunctionDef,
// validating that a declared initialiser's JSON shape is legal for its
// port's declared type (the load-time TypeMismatch check §4.1 asks for;
// the manifest format has no declared *output* types to check edges
// against, so array/element compatibility for connections is enforced
// structurally by the router at first delivery, not at load time).
func compileFunction(rec FunctionRecord) (*graph.FunctionDef, error) {
	implKind, err := parseImplKind(rec.Implementation.Kind)
	if err != nil {
		return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: fmt.Sprintf("function %d (%s): %v", rec.ID, rec.Name, err)}
	}

	inputs := make([]graph.InputPortDef, len(rec.Inputs))
	for i, in := range rec.Inputs {
		portType, err := parsePortType(in.Type)
		if err != nil {
			return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: fmt.Sprintf("function %d (%s) input %d: %v", rec.ID, rec.Name, i, err)}
		}
		def := graph.InputPortDef{Type: portType}
		if in.Initial != nil {
			init, err := compileInitialiser(rec, i, portType, in.Initial)
			if err != nil {
				return nil, err
			}
			def.Init = init
		}
		inputs[i] = def
	}

	outputs := make([]graph.OutputConnection, len(rec.Outputs))
	for i, c := range rec.Outputs {
		outputs[i] = graph.OutputConnection{
			FromSub:    c.FromSub,
			ToFunction: c.To,
			ToPort:     c.ToPort,
			ToSub:      c.ToSub,
			Optional:   c.Optional,
		}
	}

	return &graph.FunctionDef{
		ID:   rec.ID,
		Name: rec.Name,
		Implementation: graph.Implementation{
			Kind:     implKind,
			Location: rec.Implementation.Location,
		},
		Inputs:       inputs,
		Outputs:      outputs,
		NonReentrant: rec.NonReentrant,
	}, nil
}

func compileInitialiser(rec FunctionRecord, portIdx int, portType graph.PortType, dto *InitialiserDTO) (*graph.Initialiser, error) {
	var kind graph.InitKind
	var raw json.RawMessage
	switch {
	case len(dto.Once) > 0:
		kind, raw = graph.InitOnce, dto.Once
	case len(dto.Always) > 0:
		kind, raw = graph.InitAlways, dto.Always
	default:
		return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: fmt.Sprintf("function %d (%s) input %d: initialiser has neither once nor always", rec.ID, rec.Name, portIdx)}
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: fmt.Sprintf("function %d (%s) input %d: %v", rec.ID, rec.Name, portIdx, err)}
	}
	v := value.FromInterface(decoded)

	if !initialiserMatchesType(v, portType) {
		return nil, &flowerr.LoadError{Kind: flowerr.ErrTypeMismatch, Detail: fmt.Sprintf("function %d (%s) input %d: initialiser kind %s does not match declared port type %s", rec.ID, rec.Name, portIdx, v.Kind(), portType)}
	}

	return &graph.Initialiser{Kind: kind, Value: v}, nil
}

// initialiserMatchesType requires an initialiser to match its port's own
// declared shape exactly: an initialiser is written directly into its own
// port (graph.New, TakeInputs), bypassing the router, so no destructuring
// applies and an array initialiser against an element-typed port is
// rejected.
func initialiserMatchesType(v value.Value, t graph.PortType) bool {
	if t.Base == graph.KindGeneric {
		return true
	}
	if t.Base == graph.KindArray {
		if v.Kind() != value.Array {
			return false
		}
		for _, e := range v.Elements() {
			if !elementMatchesKind(e, t.Elem) {
				return false
			}
		}
		return true
	}
	return elementMatchesKind(v, t.Base)
}

func elementMatchesKind(v value.Value, k graph.PortKind) bool {
	switch k {
	case graph.KindNumber:
		return v.Kind() == value.Number
	case graph.KindString:
		return v.Kind() == value.String
	case graph.KindBoolean:
		return v.Kind() == value.Bool
	case graph.KindObject:
		return v.Kind() == value.Object
	case graph.KindGeneric:
		return true
	default:
		return false
	}
}
