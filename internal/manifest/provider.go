package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Provider fetches the raw bytes of a manifest or library manifest from
// one transport. §4.1 calls this out explicitly as pluggable: file,
// HTTP, library path, or p2p (p2p is out of scope here -- nothing in
// this repo implements it, matching spec.md §9's choice not to guess).
type Provider interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FileProvider reads a manifest from the local filesystem.
type FileProvider struct{}

func (FileProvider) Fetch(_ context.Context, uri string) ([]byte, error) {
	return os.ReadFile(uri)
}

// HTTPProvider fetches a manifest over HTTP(S).
type HTTPProvider struct {
	Client *http.Client
}

func NewHTTPProvider() *HTTPProvider {
	return &HTTPProvider{Client: http.DefaultClient}
}

func (p *HTTPProvider) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: build request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest: fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest: fetch %s: status %d", uri, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// LibraryPathProvider resolves a library manifest by name against an
// ordered list of search directories, the same first-match-wins
// resolution a library loader typically uses.
type LibraryPathProvider struct {
	SearchPaths []string
}

func (p *LibraryPathProvider) Fetch(ctx context.Context, name string) ([]byte, error) {
	for _, dir := range p.SearchPaths {
		candidate := filepath.Join(dir, name+".json")
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest: read library %s at %s: %w", name, candidate, err)
		}
	}
	return nil, fmt.Errorf("manifest: library %q not found in search paths %v", name, p.SearchPaths)
}

// selectProvider picks a Provider for uri by scheme, defaulting to the
// filesystem for any bare path.
func (l *Loader) selectProvider(uri string) Provider {
	switch scheme(uri) {
	case "http", "https":
		return l.http
	default:
		return l.file
	}
}

func scheme(uri string) string {
	for i := 0; i < len(uri); i++ {
		switch uri[i] {
		case ':':
			if i+2 < len(uri) && uri[i+1] == '/' && uri[i+2] == '/' {
				return uri[:i]
			}
			return ""
		case '/', '\\':
			return ""
		}
	}
	return ""
}
