package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultNegativeTTL bounds how long a failed lookup is remembered before
// the loader is consulted again for the same identifier.
const DefaultNegativeTTL = 5 * time.Minute

// Registry is the source of truth mapping tenant IDs to tenant records.
// It supports static pre-registration and, when constructed with a Loader,
// lazy loading on first access. All methods are safe for concurrent use;
// reads always observe a complete record, never a partially-written one.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant

	// negative holds recent lookup misses so unresolvable IDs do not hammer
	// the loader on every request.
	negative map[string]time.Time

	loader      Loader
	negativeTTL time.Duration
	group       singleflight.Group
	now         func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLoader enables lazy loading from the given source on cache miss.
func WithLoader(l Loader) RegistryOption {
	return func(r *Registry) {
		r.loader = l
	}
}

// WithNegativeTTL overrides how long lookup misses are cached.
func WithNegativeTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.negativeTTL = ttl
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tenants:     make(map[string]*Tenant),
		negative:    make(map[string]time.Time),
		negativeTTL: DefaultNegativeTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register upserts a tenant record. It is idempotent: registering the same
// ID twice replaces the stored record. The record is cloned on the way in so
// later caller mutations cannot corrupt registry state.
func (r *Registry) Register(t *Tenant) error {
	if t == nil {
		return ErrInvalidTenantName
	}
	if err := ValidateID(t.ID); err != nil {
		return fmt.Errorf("register %q: %w", t.ID, err)
	}

	cp := t.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.now()
	}

	r.mu.Lock()
	r.tenants[cp.ID] = cp
	delete(r.negative, cp.ID)
	r.mu.Unlock()
	return nil
}

// Get returns the tenant record for id. When the registry has no record and
// a loader is configured, the loader is consulted exactly once per
// unresolved ID at a time (concurrent callers share one in-flight load) and
// the outcome, positive or negative, is cached.
func (r *Registry) Get(ctx context.Context, id string) (*Tenant, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	t, ok := r.tenants[id]
	if ok {
		cp := t.Clone()
		r.mu.RUnlock()
		return cp, nil
	}
	missedAt, missed := r.negative[id]
	r.mu.RUnlock()

	if r.loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	if missed && r.now().Sub(missedAt) < r.negativeTTL {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		loaded, err := r.loader.Load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				r.rememberMiss(id)
			}
			return nil, err
		}
		if loaded == nil {
			r.rememberMiss(id)
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
		}
		if loaded.ID == "" {
			loaded = loaded.Clone()
			loaded.ID = id
		}
		if err := r.Register(loaded); err != nil {
			return nil, err
		}
		return loaded.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tenant).Clone(), nil
}

func (r *Registry) rememberMiss(id string) {
	r.mu.Lock()
	r.negative[id] = r.now()
	r.mu.Unlock()
}

// Exists reports whether the tenant is resolvable. It never returns an
// error; loader failures are treated as "does not exist" for pre-flight use.
func (r *Registry) Exists(ctx context.Context, id string) bool {
	if ValidateID(id) != nil {
		return false
	}

	r.mu.RLock()
	_, ok := r.tenants[id]
	r.mu.RUnlock()
	if ok {
		return true
	}
	if r.loader == nil {
		return false
	}
	_, err := r.Get(ctx, id)
	return err == nil
}

// Remove deletes a tenant record. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.tenants, id)
	r.mu.Unlock()
}

// List returns a snapshot of all registered tenant IDs. When the registry
// has a loader that can enumerate tenants, its listing is merged in so
// lazily-loadable tenants that were never accessed still appear.
func (r *Registry) List(ctx context.Context) []string {
	seen := make(map[string]struct{})

	r.mu.RLock()
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	r.mu.RUnlock()

	if lister, ok := r.loader.(ListingLoader); ok && lister != nil {
		loaded, err := lister.ListIDs(ctx)
		if err == nil {
			for _, id := range loaded {
				if _, dup := seen[id]; !dup {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}
