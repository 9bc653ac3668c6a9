package tenant

import (
	"net/http"
	"strings"
	"time"
)

// Middleware resolves the tenant for every request and binds it into the
// request context before the handler runs. By default requests without a
// resolvable tenant are rejected up front so no business logic or session
// acquisition ever runs unbound; use WithOptionalTenant to relax that.
func Middleware(resolve Resolver, registry *Registry, opts ...Option) func(http.Handler) http.Handler {
	// Caching is off by default: NewInMemoryCache starts a sweeper goroutine
	// whose lifecycle the middleware cannot manage, so the caller opts in
	// with WithCache and owns Close.
	cfg := &mwConfig{
		cache:         NewNoOpCache(),
		cacheTTL:      5 * time.Minute,
		errorHandler:  DefaultErrorHandler,
		requireActive: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			id, err := resolve(r)
			if err != nil {
				cfg.fail(w, r, err)
				return
			}
			if id == "" {
				if cfg.optional {
					next.ServeHTTP(w, r)
					return
				}
				cfg.fail(w, r, ErrNoTenantBound)
				return
			}

			t, ok := cfg.cache.Get(r.Context(), id)
			if !ok {
				t, err = registry.Get(r.Context(), id)
				if err != nil {
					cfg.fail(w, r, err)
					return
				}
				cfg.cache.Set(r.Context(), id, t, cfg.cacheTTL)
			}

			if cfg.requireActive && !t.Active {
				cfg.fail(w, r, ErrInactiveTenant)
				return
			}

			ctx, err := Bind(r.Context(), t)
			if err != nil {
				// Double-bind means misordered middleware; surface it.
				cfg.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c *mwConfig) fail(w http.ResponseWriter, r *http.Request, err error) {
	if c.logger != nil {
		c.logger.ErrorContext(r.Context(), "tenant resolution failed",
			"error", err, "path", r.URL.Path)
	}
	c.errorHandler(w, r, err)
}

// RequireTenant guards routes that must run with a bound tenant. It is the
// interceptor form of endpoint-level tenant checks: the failure response is
// produced before the handler body executes.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoTenantBound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
