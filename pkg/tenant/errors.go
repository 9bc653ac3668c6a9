package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when a tenant is neither registered nor
	// resolvable through the configured loader.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidTenantName is returned when a raw tenant identifier violates
	// basic identifier rules (empty, whitespace-only, path separators).
	ErrInvalidTenantName = errors.New("invalid tenant name")

	// ErrInvalidIdentifier is returned when a request-supplied identifier
	// fails format validation before any registry lookup.
	ErrInvalidIdentifier = errors.New("invalid tenant identifier")

	// ErrNoTenantBound is returned when code requires a tenant context that
	// was never established. This is a programming error and must propagate
	// unmodified; never default to a fallback tenant.
	ErrNoTenantBound = errors.New("no tenant bound to context")

	// ErrAlreadyBound is returned by Bind when the context already carries a
	// tenant and no explicit overwrite was requested. Guards against
	// accidental cross-tenant leakage inside a single request.
	ErrAlreadyBound = errors.New("tenant already bound to context")

	// ErrInactiveTenant is returned when resolving an identifier that maps
	// to a deactivated tenant.
	ErrInactiveTenant = errors.New("tenant is inactive")
)
