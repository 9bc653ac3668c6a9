package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ErrorHandler translates tenant resolution failures into HTTP responses.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// mwConfig holds middleware configuration.
type mwConfig struct {
	cache         Cache
	cacheTTL      time.Duration
	errorHandler  ErrorHandler
	skipPaths     []string
	optional      bool
	requireActive bool
	logger        *slog.Logger
}

// Option configures the middleware.
type Option func(*mwConfig)

// WithCache enables tenant caching in the middleware (e.g. NewInMemoryCache
// or NewRedisCache). Caching is disabled without it. The caller owns the
// cache and is responsible for Close.
func WithCache(cache Cache) Option {
	return func(c *mwConfig) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithCacheTTL overrides how long resolved tenants are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *mwConfig) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *mwConfig) {
		if handler != nil {
			c.errorHandler = handler
		}
	}
}

// WithSkipPaths exempts path prefixes (health checks, static assets) from
// tenant resolution.
func WithSkipPaths(paths ...string) Option {
	return func(c *mwConfig) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// WithOptionalTenant lets requests without a tenant identifier through
// unbound instead of rejecting them. Handlers must then treat
// ErrNoTenantBound as a reachable condition.
func WithOptionalTenant() Option {
	return func(c *mwConfig) {
		c.optional = true
	}
}

// WithRequireActive toggles rejection of deactivated tenants. On by default.
func WithRequireActive(require bool) Option {
	return func(c *mwConfig) {
		c.requireActive = require
	}
}

// WithLogger sets the logger used for resolution failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *mwConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DefaultErrorHandler maps the error taxonomy onto HTTP statuses so hosts
// can distinguish client-input failures from server-side configuration
// problems.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		http.Error(w, "tenant not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrInvalidTenantName):
		http.Error(w, "invalid tenant identifier", http.StatusBadRequest)
	case errors.Is(err, ErrNoTenantBound):
		http.Error(w, "tenant identification required", http.StatusBadRequest)
	case errors.Is(err, ErrInactiveTenant):
		http.Error(w, "tenant is inactive", http.StatusForbidden)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
