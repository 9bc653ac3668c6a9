package tenant

import (
	"context"
	"log/slog"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// Bind associates a tenant with the context for the lifetime of one logical
// request or task. It fails with ErrAlreadyBound when the context already
// carries a tenant, which catches accidental double-binding inside a single
// request. Use Rebind for intentional overwrites.
//
// Because the binding lives in the context, each goroutine chain has its own
// isolated value and it is released together with the request context on
// every exit path, including cancellation.
func Bind(ctx context.Context, t *Tenant) (context.Context, error) {
	if t == nil {
		return ctx, ErrInvalidTenantName
	}
	if _, ok := FromContext(ctx); ok {
		return ctx, ErrAlreadyBound
	}
	return context.WithValue(ctx, contextKey{}, t), nil
}

// Rebind replaces any existing binding. Intended for administrative tooling
// that deliberately switches identity mid-flow.
func Rebind(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// WithoutTenant returns a context with no tenant bound, regardless of what
// the parent carries. Useful for handing work to tenant-agnostic subsystems.
func WithoutTenant(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, (*Tenant)(nil))
}

// FromContext retrieves the bound tenant. Returns nil, false when nothing is
// bound. This is the "try" accessor; use Current when absence is a bug.
func FromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(contextKey{}).(*Tenant)
	if !ok || t == nil {
		return nil, false
	}
	return t, true
}

// IDFromContext retrieves just the tenant ID from the context.
func IDFromContext(ctx context.Context) (string, bool) {
	t, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	return t.ID, true
}

// Current returns the bound tenant or ErrNoTenantBound. The error is a
// programming-error signal and must not be swallowed or defaulted.
func Current(ctx context.Context) (*Tenant, error) {
	t, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoTenantBound
	}
	return t, nil
}

// RunWith executes fn under a temporary binding. The override only exists in
// the derived context passed to fn, so the caller's binding (including
// "unbound") is untouched afterwards whether fn returns normally or with an
// error. Nesting is unbounded; restoration follows context scoping.
func RunWith(ctx context.Context, t *Tenant, fn func(ctx context.Context) error) error {
	return fn(Rebind(ctx, t))
}

// LoggerExtractor returns a context attr extractor so tenant identity shows
// up on every log record emitted within a bound request.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := IDFromContext(ctx); ok {
			return slog.String("tenant_id", id), true
		}
		return slog.Attr{}, false
	}
}
