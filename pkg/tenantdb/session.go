package tenantdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// tenantGUC is the session setting row-level sessions publish their tenant
// identity under. Tables protected by Postgres RLS policies should compare
// their tenant column against current_setting('app.current_tenant').
const tenantGUC = "app.current_tenant"

// SessionFactory produces request-scoped sessions already bound to the
// tenant's physical target. Connection pools are created lazily, one per
// target, so one tenant's load never starves another tenant's pool and a
// pooled connection can never be reused across tenants.
type SessionFactory struct {
	cfg      Config
	router   *Router
	registry *tenant.Registry
	log      *slog.Logger

	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	closed bool
	group  singleflight.Group
}

// FactoryOption configures a SessionFactory.
type FactoryOption func(*SessionFactory)

// WithRegistry lets GetSessionFor resolve full tenant records (strategy and
// connection overrides) instead of treating the identifier as a bare ID.
func WithRegistry(r *tenant.Registry) FactoryOption {
	return func(f *SessionFactory) {
		f.registry = r
	}
}

// WithFactoryLogger sets the logger used for pool lifecycle events.
func WithFactoryLogger(log *slog.Logger) FactoryOption {
	return func(f *SessionFactory) {
		if log != nil {
			f.log = log
		}
	}
}

// NewSessionFactory creates a factory over the base configuration. The
// configured default strategy must be valid.
func NewSessionFactory(cfg Config, opts ...FactoryOption) (*SessionFactory, error) {
	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}
	f := &SessionFactory{
		cfg:    cfg,
		router: router,
		log:    slog.Default(),
		pools:  make(map[string]*pgxpool.Pool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Router exposes the factory's strategy router for read-only resolution.
func (f *SessionFactory) Router() *Router {
	return f.router
}

// GetSession returns a session for the tenant bound to ctx. Fails with
// tenant.ErrNoTenantBound when nothing is bound; that error marks a missing
// identification step, never a condition to paper over with a default
// tenant.
func (f *SessionFactory) GetSession(ctx context.Context) (*Session, error) {
	t, err := tenant.Current(ctx)
	if err != nil {
		return nil, err
	}
	return f.sessionFor(ctx, t)
}

// GetSessionFor returns a session for an explicit tenant identifier,
// bypassing the context binding. When the factory has a registry, the full
// record is resolved so per-tenant overrides apply.
func (f *SessionFactory) GetSessionFor(ctx context.Context, tenantID string) (*Session, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}

	t := &tenant.Tenant{ID: tenantID, Active: true}
	if f.registry != nil {
		loaded, err := f.registry.Get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		t = loaded
	}
	return f.sessionFor(ctx, t)
}

func (f *SessionFactory) sessionFor(ctx context.Context, t *tenant.Tenant) (*Session, error) {
	target, err := f.router.Resolve(t)
	if err != nil {
		return nil, err
	}

	pool, err := f.pool(ctx, target)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session for tenant %q: %w", t.ID, err)
	}

	// Strategy-specific session setup happens before the caller sees the
	// connection; on any failure the connection goes straight back to its
	// pool so an acquisition error never leaks a session.
	if err := setupSession(ctx, conn, target); err != nil {
		conn.Release()
		return nil, err
	}

	return &Session{
		conn:     conn,
		tenantID: t.ID,
		target:   target,
	}, nil
}

// setupSession applies per-strategy connection state. Pools are keyed per
// target, so this state can only ever be observed by the same tenant.
func setupSession(ctx context.Context, conn *pgxpool.Conn, target Target) error {
	switch target.Strategy {
	case DatabasePerTenant:
		return nil
	case SchemaPerTenant:
		ident := pgx.Identifier{target.Schema}.Sanitize()
		if _, err := conn.Exec(ctx, `SET search_path TO `+ident+`, public`); err != nil {
			return fmt.Errorf("set search_path to %q: %w", target.Schema, err)
		}
		return nil
	case RowLevel:
		if _, err := conn.Exec(ctx, `SELECT set_config($1, $2, false)`, tenantGUC, target.FilterKey); err != nil {
			return fmt.Errorf("set tenant filter for %q: %w", target.FilterKey, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrUnknownStrategy, target.Strategy)
	}
}

func (f *SessionFactory) pool(ctx context.Context, target Target) (*pgxpool.Pool, error) {
	key := target.PoolKey()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFailedToOpenPool
	}
	if pool, ok := f.pools[key]; ok {
		f.mu.Unlock()
		return pool, nil
	}
	f.mu.Unlock()

	// Opening a pool blocks on network I/O and the retry loop. The factory
	// lock only guards the map, so an unreachable target stalls nothing but
	// its own tenants; singleflight still collapses concurrent opens of the
	// same target into one.
	v, err, _ := f.group.Do(key, func() (any, error) {
		f.mu.Lock()
		if pool, ok := f.pools[key]; ok {
			f.mu.Unlock()
			return pool, nil
		}
		f.mu.Unlock()

		pool, err := openPool(ctx, target.ConnURL, f.cfg)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			pool.Close()
			return nil, ErrFailedToOpenPool
		}
		f.pools[key] = pool
		f.mu.Unlock()

		f.log.InfoContext(ctx, "opened tenant connection pool",
			"strategy", target.Strategy.String(), "schema", target.Schema)
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pgxpool.Pool), nil
}

// Close shuts down every per-target pool. Sessions still in flight are
// drained by pgxpool.
func (f *SessionFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for key, pool := range f.pools {
		pool.Close()
		delete(f.pools, key)
	}
}

// Session is a request-scoped database handle bound to one tenant's
// physical target. Release must be called on every exit path; it is safe to
// call more than once, so `defer session.Release()` is the expected shape.
type Session struct {
	conn     *pgxpool.Conn
	tenantID string
	target   Target

	releaseOnce sync.Once
}

// TenantID returns the tenant this session is scoped to.
func (s *Session) TenantID() string { return s.tenantID }

// Target returns the resolved physical target backing this session.
func (s *Session) Target() Target { return s.target }

// FilterKey returns the value tenant-scoped queries must filter on under
// the row-level strategy, and "" otherwise. The same value is published to
// Postgres as app.current_tenant so RLS policies enforce it server-side.
func (s *Session) FilterKey() string { return s.target.FilterKey }

// Exec runs a statement on the tenant-scoped connection.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.conn.Exec(ctx, sql, args...)
}

// Query runs a query on the tenant-scoped connection.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.conn.Query(ctx, sql, args...)
}

// QueryRow runs a single-row query on the tenant-scoped connection.
func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.conn.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction on the tenant-scoped connection.
func (s *Session) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.conn.Begin(ctx)
}

// Release returns the connection to its per-tenant pool. Row-level sessions
// clear the tenant setting first so identity never outlives the session.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		if s.target.Strategy == RowLevel {
			_, _ = s.conn.Exec(context.Background(), `SELECT set_config($1, '', false)`, tenantGUC)
		}
		s.conn.Release()
	})
}
