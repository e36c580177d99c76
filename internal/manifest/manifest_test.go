package manifest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/flow/internal/flowerr"
	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/manifest"
)

const sampleManifest = `{
  "manifest_format": 1,
  "functions": [
    {
      "id": 0,
      "name": "hello",
      "implementation": {"kind": "native", "location": "stdout"},
      "inputs": [
        {"type": "generic", "initial": {"once": "Hello World!"}}
      ],
      "outputs": []
    }
  ]
}`

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoaderLoadsFileManifest(t *testing.T) {
	path := writeTemp(t, "manifest.json", sampleManifest)
	loader := manifest.NewLoader(nil, 1, nil)

	g, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Defs) != 1 {
		t.Fatalf("len(Defs) = %d, want 1", len(g.Defs))
	}
	def := g.Defs[0]
	if def.Name != "hello" || def.Implementation.Kind != graph.ImplNative || def.Implementation.Location != "stdout" {
		t.Fatalf("unexpected def: %+v", def)
	}
	if def.Inputs[0].Init == nil || def.Inputs[0].Init.Kind != graph.InitOnce {
		t.Fatalf("expected a once initialiser on input 0, got %+v", def.Inputs[0].Init)
	}
}

func TestLoaderRejectsMalformedJSON(t *testing.T) {
	path := writeTemp(t, "bad.json", `{not json`)
	loader := manifest.NewLoader(nil, 1, nil)

	_, err := loader.Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	var loadErr *flowerr.LoadError
	if !errors.As(err, &loadErr) || !errors.Is(loadErr, flowerr.ErrManifestParse) {
		t.Fatalf("error = %v, want a LoadError wrapping ErrManifestParse", err)
	}
}

type nativeRegistryStub map[string]bool

func (s nativeRegistryStub) Has(symbol string) bool { return s[symbol] }

func TestLoaderRejectsUnresolvedNativeSymbol(t *testing.T) {
	path := writeTemp(t, "manifest.json", sampleManifest)
	loader := manifest.NewLoader(nil, 1, nativeRegistryStub{"something_else": true})

	_, err := loader.Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected ImplementationUnresolved")
	}
	if !errors.Is(err, flowerr.ErrImplementationUnresolved) {
		t.Fatalf("error = %v, want ErrImplementationUnresolved", err)
	}
}

func TestLoaderResolvesLibraryReference(t *testing.T) {
	dir := t.TempDir()
	libManifest := `{"name": "mathlib", "functions": [{"signature": "add", "implementation_location": "mathlib_add"}]}`
	if err := os.WriteFile(filepath.Join(dir, "mathlib.json"), []byte(libManifest), 0o644); err != nil {
		t.Fatalf("write lib manifest: %v", err)
	}

	manifestJSON := `{
      "manifest_format": 1,
      "functions": [
        {
          "id": 0,
          "name": "adder",
          "implementation": {"kind": "native", "location": "lib://mathlib/add"},
          "inputs": [{"type": "number"}],
          "outputs": []
        }
      ]
    }`
	path := writeTemp(t, "manifest.json", manifestJSON)
	loader := manifest.NewLoader([]string{dir}, 1, nil)

	g, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := g.Defs[0].Implementation.Location; got != "mathlib_add" {
		t.Fatalf("resolved location = %q, want mathlib_add", got)
	}
}
