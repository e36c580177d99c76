package executor

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

// WasmConfig controls the wazero-backed executor, mirroring the teacher's
// wasm.DefaultConfig layering of code directory and fuel; it has no
// timeout setting.
type WasmConfig struct {
	CodeDir  string
	Fuel     uint64
	CacheCap int
}

// compiledModule caches a module's compiled form so repeated invocations
// of the same function amortise parse/compile cost, matching §4.6's
// "a WASM instance may be reused across calls" allowance.
type compiledModule struct {
	compiled wazero.CompiledModule
}

// WasmExecutor is the dispatcher.Runner for graph.ImplWasm. A function's
// Implementation.Location is "<module path relative to CodeDir>#<entry>";
// the module must export alloc(size)->ptr, dealloc(ptr,size), and the
// named entry(ptr,len)->packed(ptr,len), per §4.6's linear-memory
// contract.
type WasmExecutor struct {
	cfg     WasmConfig
	runtime wazero.Runtime

	mu      sync.Mutex
	modules map[string]*compiledModule
}

// NewWasmExecutor builds a wazero runtime and a compiled-module cache. A
// nonzero Fuel only makes running modules close when their context is
// cancelled; no instruction budget is counted.
func NewWasmExecutor(ctx context.Context, cfg WasmConfig) (*WasmExecutor, error) {
	rcfg := wazero.NewRuntimeConfig()
	if cfg.Fuel > 0 {
		rcfg = rcfg.WithCloseOnContextDone(true)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, fmt.Errorf("wasm: instantiate wasi: %w", err)
	}
	return &WasmExecutor{cfg: cfg, runtime: rt, modules: make(map[string]*compiledModule)}, nil
}

func (e *WasmExecutor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func splitLocation(location string) (modulePath, entry string, err error) {
	idx := strings.LastIndex(location, "#")
	if idx < 0 {
		return "", "", fmt.Errorf("wasm: location %q missing #entry suffix", location)
	}
	return location[:idx], location[idx+1:], nil
}

func (e *WasmExecutor) compile(ctx context.Context, modulePath string) (*compiledModule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cm, ok := e.modules[modulePath]; ok {
		return cm, nil
	}

	full := modulePath
	if e.cfg.CodeDir != "" && !strings.HasPrefix(modulePath, "/") {
		full = e.cfg.CodeDir + "/" + modulePath
	}
	bin, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("wasm: read module %s: %w", full, err)
	}
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("wasm: compile module %s: %w", full, err)
	}
	cm := &compiledModule{compiled: compiled}
	if e.cfg.CacheCap <= 0 || len(e.modules) < e.cfg.CacheCap {
		e.modules[modulePath] = cm
	}
	return cm, nil
}

func (e *WasmExecutor) Run(ctx context.Context, job graph.Job, def *graph.FunctionDef) (value.Value, error) {
	modulePath, entry, err := splitLocation(def.Implementation.Location)
	if err != nil {
		return value.Value{}, err
	}

	return traced(ctx, def, func(ctx context.Context) (value.Value, error) {
		cm, err := e.compile(ctx, modulePath)
		if err != nil {
			return value.Value{}, err
		}

		modCfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("%s-%d-%d", def.Name, def.ID, job.Generation))
		mod, err := e.runtime.InstantiateModule(ctx, cm.compiled, modCfg)
		if err != nil {
			return value.Value{}, fmt.Errorf("wasm: instantiate %s: %w", modulePath, err)
		}
		defer mod.Close(ctx)

		payload := packInputs(job.Values)
		ptr, length, err := writeToMemory(ctx, mod, payload)
		if err != nil {
			return value.Value{}, fmt.Errorf("wasm: alloc/write input: %w", err)
		}

		entryFn := mod.ExportedFunction(entry)
		if entryFn == nil {
			return value.Value{}, fmt.Errorf("wasm: module %s has no exported entry %q", modulePath, entry)
		}
		results, err := entryFn.Call(ctx, ptr, length)
		if err != nil {
			return value.Value{}, fmt.Errorf("wasm: call %s: %w", entry, err)
		}
		if len(results) != 1 {
			return value.Value{}, fmt.Errorf("wasm: entry %s returned %d results, want 1 packed (ptr<<32|len)", entry, len(results))
		}
		outPtr, outLen := unpackResult(results[0])

		raw, ok := mod.Memory().Read(outPtr, outLen)
		if !ok {
			return value.Value{}, fmt.Errorf("wasm: read output memory [%d:%d]", outPtr, outPtr+outLen)
		}
		out := append([]byte(nil), raw...)

		if dealloc := mod.ExportedFunction("dealloc"); dealloc != nil {
			_, _ = dealloc.Call(ctx, outPtr, uint64(outLen))
		}

		var v value.Value
		if err := v.UnmarshalJSON(out); err != nil {
			return value.Value{}, fmt.Errorf("wasm: decode output from %s: %w", entry, err)
		}
		return v, nil
	})
}

// packInputs serialises the job's per-port input values into the single
// canonical-JSON buffer a module's entry expects: a JSON array, one
// element per input port, in port order.
func packInputs(values []value.Value) []byte {
	arr := value.NewArray(values)
	b, _ := arr.MarshalJSON()
	return b
}

// writeToMemory calls the module's alloc export for len(payload) bytes,
// writes payload there, and returns (ptr, len) for the entry call.
func writeToMemory(ctx context.Context, mod api.Module, payload []byte) (uint64, uint64, error) {
	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		return 0, 0, fmt.Errorf("module has no exported alloc")
	}
	results, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return 0, 0, err
	}
	ptr := results[0]
	if !mod.Memory().Write(uint32(ptr), payload) {
		return 0, 0, fmt.Errorf("write %d bytes at %d out of bounds", len(payload), ptr)
	}
	return ptr, uint64(len(payload)), nil
}

// unpackResult splits a packed (ptr<<32|len) uint64, the common
// wazero-guest-module convention for returning a buffer descriptor in a
// single i64 result.
func unpackResult(packed uint64) (uint32, uint32) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, packed)
	return binary.BigEndian.Uint32(b[:4]), binary.BigEndian.Uint32(b[4:])
}
