package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader is the lazy tenant source consulted by the Registry on cache miss.
// Load returns ErrTenantNotFound (or nil, nil) when the source has no record
// for the given ID; any other error is an infrastructure failure and is not
// cached as a miss.
type Loader interface {
	Load(ctx context.Context, id string) (*Tenant, error)
}

// ListingLoader is an optional extension for sources that can enumerate all
// known tenants, used by Registry.List and bulk operations like per-tenant
// migrations.
type ListingLoader interface {
	Loader
	ListIDs(ctx context.Context) ([]string, error)
}

// LoaderFunc adapts an ordinary function to the Loader interface.
type LoaderFunc func(ctx context.Context, id string) (*Tenant, error)

func (f LoaderFunc) Load(ctx context.Context, id string) (*Tenant, error) {
	return f(ctx, id)
}

// StaticLoader serves tenants from a fixed in-memory map. Primarily useful
// for tests and single-binary deployments with a handful of tenants.
type StaticLoader struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewStaticLoader creates a loader over the given records.
func NewStaticLoader(tenants ...*Tenant) *StaticLoader {
	l := &StaticLoader{tenants: make(map[string]*Tenant, len(tenants))}
	for _, t := range tenants {
		if t != nil && t.ID != "" {
			l.tenants[t.ID] = t.Clone()
		}
	}
	return l
}

func (l *StaticLoader) Load(ctx context.Context, id string) (*Tenant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return t.Clone(), nil
}

func (l *StaticLoader) ListIDs(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.tenants))
	for id := range l.tenants {
		ids = append(ids, id)
	}
	return ids, nil
}

// fileDocument is the on-disk layout of a tenants file:
//
//	tenants:
//	  acme-corp:
//	    name: Acme Corp
//	    active: true
type fileDocument struct {
	Tenants map[string]*Tenant `yaml:"tenants"`
}

// FileLoader reads tenants from a YAML file. The file is parsed once on
// first use; call Reload to pick up changes.
type FileLoader struct {
	path string

	mu      sync.RWMutex
	tenants map[string]*Tenant
	loaded  bool
}

// NewFileLoader creates a loader for the given YAML file path. The file is
// not touched until the first lookup, so construction never fails.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Reload re-reads the backing file, replacing the in-memory view.
func (l *FileLoader) Reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read tenants file %s: %w", l.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse tenants file %s: %w", l.path, err)
	}

	tenants := make(map[string]*Tenant, len(doc.Tenants))
	for id, t := range doc.Tenants {
		if t == nil {
			t = &Tenant{}
		}
		cp := t.Clone()
		cp.ID = id
		tenants[id] = cp
	}

	l.mu.Lock()
	l.tenants = tenants
	l.loaded = true
	l.mu.Unlock()
	return nil
}

func (l *FileLoader) ensureLoaded() error {
	l.mu.RLock()
	loaded := l.loaded
	l.mu.RUnlock()
	if loaded {
		return nil
	}
	return l.Reload()
}

func (l *FileLoader) Load(ctx context.Context, id string) (*Tenant, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return t.Clone(), nil
}

func (l *FileLoader) ListIDs(ctx context.Context) ([]string, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.tenants))
	for id := range l.tenants {
		ids = append(ids, id)
	}
	return ids, nil
}

// APILoader fetches tenant records from a remote HTTP endpoint, one request
// per lookup: GET <baseURL>/<id> returning a Tenant JSON document. A 404
// maps to ErrTenantNotFound; any other non-2xx status is an infrastructure
// error.
type APILoader struct {
	baseURL string
	client  *http.Client
	headers http.Header
}

// APILoaderOption configures an APILoader.
type APILoaderOption func(*APILoader)

// WithHTTPClient overrides the HTTP client used for lookups.
func WithHTTPClient(c *http.Client) APILoaderOption {
	return func(l *APILoader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithAPIHeader adds a static header (e.g. Authorization) to every request.
func WithAPIHeader(key, value string) APILoaderOption {
	return func(l *APILoader) {
		l.headers.Set(key, value)
	}
}

// NewAPILoader creates a loader against the given base URL.
func NewAPILoader(baseURL string, opts ...APILoaderOption) *APILoader {
	l := &APILoader{
		baseURL: baseURL,
		client:  http.DefaultClient,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *APILoader) Load(ctx context.Context, id string) (*Tenant, error) {
	endpoint := l.baseURL + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("tenant api request: %w", err)
	}
	for key, values := range l.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tenant api lookup %q: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("tenant api lookup %q: unexpected status %d", id, resp.StatusCode)
	}

	var t Tenant
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("tenant api lookup %q: decode: %w", id, err)
	}
	if t.ID == "" {
		t.ID = id
	}
	return &t, nil
}

// ChainLoader consults multiple sources in order. The first source returning
// a tenant wins; ErrTenantNotFound falls through to the next source, while
// infrastructure errors abort the chain. Precedence is therefore explicit:
// earlier sources override later ones.
type ChainLoader struct {
	sources []Loader
}

// NewChainLoader creates a loader over the given sources, highest priority
// first.
func NewChainLoader(sources ...Loader) *ChainLoader {
	return &ChainLoader{sources: sources}
}

func (l *ChainLoader) Load(ctx context.Context, id string) (*Tenant, error) {
	for _, src := range l.sources {
		t, err := src.Load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				continue
			}
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
}

func (l *ChainLoader) ListIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, src := range l.sources {
		lister, ok := src.(ListingLoader)
		if !ok {
			continue
		}
		loaded, err := lister.ListIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range loaded {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
