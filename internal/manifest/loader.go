package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/flow/internal/flowerr"
	"github.com/oriys/flow/internal/graph"
)

// NativeRegistry lets the loader validate, at load time, that a native
// implementation reference actually resolves to a registered symbol
// (ImplementationUnresolved is fatal per §4.1). Validation is optional:
// a nil registry on Loader defers the check to the native executor at
// dispatch time.
type NativeRegistry interface {
	Has(symbol string) bool
}

// Loader implements C1: it fetches a manifest via a pluggable Provider,
// resolves every function's implementation reference (including
// "lib://name/function" references into a library manifest, fetched
// concurrently across libraries the way the teacher's Invoke pipeline
// prefetches dependent records with an errgroup), validates the
// invariants of §4.1, and compiles a graph.Graph.
type Loader struct {
	file         Provider
	http         Provider
	libraries    *LibraryPathProvider
	Native       NativeRegistry
	PortCapacity int
}

// NewLoader builds a Loader with default file/HTTP providers and the
// given library search path, port capacity (0 defaults to 1, strict
// dataflow), and an optional native symbol registry for load-time
// validation.
func NewLoader(librarySearchPaths []string, portCapacity int, native NativeRegistry) *Loader {
	if portCapacity < 1 {
		portCapacity = 1
	}
	return &Loader{
		file:         FileProvider{},
		http:         NewHTTPProvider(),
		libraries:    &LibraryPathProvider{SearchPaths: librarySearchPaths},
		Native:       native,
		PortCapacity: portCapacity,
	}
}

// Load fetches, decodes, resolves, and validates the manifest at uri,
// returning a ready-to-run Graph.
func (l *Loader) Load(ctx context.Context, uri string) (*graph.Graph, error) {
	data, err := l.selectProvider(uri).Fetch(ctx, uri)
	if err != nil {
		return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: fmt.Sprintf("fetch %s: %v", uri, err)}
	}

	var dto DTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: fmt.Sprintf("decode %s: %v", uri, err)}
	}
	if dto.ManifestFormat == 0 {
		return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: "missing manifest_format"}
	}

	if err := l.resolveLibraryRefs(ctx, dto.Functions); err != nil {
		return nil, err
	}

	defs := make([]*graph.FunctionDef, len(dto.Functions))
	for i, rec := range dto.Functions {
		if rec.Implementation.Kind == "native" && l.Native != nil && !l.Native.Has(rec.Implementation.Location) {
			return nil, &flowerr.LoadError{Kind: flowerr.ErrImplementationUnresolved, Detail: fmt.Sprintf("function %d (%s): no native symbol %q registered", rec.ID, rec.Name, rec.Implementation.Location)}
		}
		def, err := compileFunction(rec)
		if err != nil {
			return nil, err
		}
		defs[i] = def
	}

	g, err := graph.New(defs, l.PortCapacity)
	if err != nil {
		return nil, &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: err.Error()}
	}
	return g, nil
}

const libPrefix = "lib://"

// resolveLibraryRefs rewrites every "lib://name/function" implementation
// location into the concrete location the named library manifest
// declares for that function, fetching each distinct library manifest
// exactly once, in parallel -- one errgroup goroutine per distinct
// library name, mirroring the parallel-prefetch shape of the teacher's
// Invoke pipeline -- and then resolving the references sequentially.
func (l *Loader) resolveLibraryRefs(ctx context.Context, recs []FunctionRecord) error {
	type ref struct {
		idx      int
		lib      string
		function string
	}
	byLib := make(map[string][]ref)
	for i, rec := range recs {
		if !strings.HasPrefix(rec.Implementation.Location, libPrefix) {
			continue
		}
		rest := strings.TrimPrefix(rec.Implementation.Location, libPrefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return &flowerr.LoadError{Kind: flowerr.ErrImplementationUnresolved, Detail: fmt.Sprintf("function %d (%s): malformed library reference %q", rec.ID, rec.Name, rec.Implementation.Location)}
		}
		byLib[parts[0]] = append(byLib[parts[0]], ref{idx: i, lib: parts[0], function: parts[1]})
	}
	if len(byLib) == 0 {
		return nil
	}

	manifests := make(map[string]*LibraryManifestDTO, len(byLib))
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}

	g, gctx := errgroup.WithContext(ctx)
	for libName := range byLib {
		libName := libName
		g.Go(func() error {
			data, err := l.libraries.Fetch(gctx, libName)
			if err != nil {
				return &flowerr.LoadError{Kind: flowerr.ErrImplementationUnresolved, Detail: err.Error()}
			}
			var lib LibraryManifestDTO
			if err := json.Unmarshal(data, &lib); err != nil {
				return &flowerr.LoadError{Kind: flowerr.ErrManifestParse, Detail: fmt.Sprintf("library %s: %v", libName, err)}
			}
			<-mu
			manifests[libName] = &lib
			mu <- struct{}{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for libName, refs := range byLib {
		lib := manifests[libName]
		index := make(map[string]string, len(lib.Functions))
		for _, fn := range lib.Functions {
			index[fn.Signature] = fn.ImplementationLocation
		}
		for _, r := range refs {
			loc, ok := index[r.function]
			if !ok {
				return &flowerr.LoadError{Kind: flowerr.ErrImplementationUnresolved, Detail: fmt.Sprintf("library %s has no function %q", libName, r.function)}
			}
			recs[r.idx].Implementation.Location = loc
		}
	}
	return nil
}
