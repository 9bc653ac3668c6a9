// Package tenant provides tenant identification, registration and
// request-scoped context propagation for multi-tenant applications.
//
// The package is built around four cooperating pieces:
//
//  1. Resolvers - extract a raw tenant identifier from an HTTP request
//     (header, subdomain, path segment, or any composition of them)
//  2. Registry - the source of truth mapping identifiers to tenant records,
//     with optional lazy loading from YAML files, HTTP APIs, a database
//     table, or any custom Loader
//  3. Context binding - Bind/Current/RunWith carry the resolved tenant
//     through the request's context.Context, so every goroutine chain sees
//     exactly one consistent tenant for its whole lifetime
//  4. Middleware - wires the above together in front of the handler and
//     rejects unidentifiable requests before any business logic runs
//
// # Usage
//
//	registry := tenant.NewRegistry(
//		tenant.WithLoader(tenant.NewFileLoader("tenants.yaml")),
//	)
//
//	mw := tenant.Middleware(
//		tenant.NewHeaderResolver("X-Tenant-ID"),
//		registry,
//		tenant.WithSkipPaths("/health"),
//	)
//
//	router.Use(mw)
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		t, err := tenant.Current(r.Context())
//		if err != nil {
//			// unreachable behind the middleware unless WithOptionalTenant
//			return
//		}
//		_ = t
//	}
//
// # Context discipline
//
// Bind refuses to overwrite an existing binding (ErrAlreadyBound) so a
// request can never silently switch identity mid-flight. Administrative
// code that genuinely needs to act as another tenant uses RunWith, which
// scopes the override to the callback and restores the caller's view
// structurally, however deeply calls nest.
//
// # Error taxonomy
//
// ErrTenantNotFound and ErrInvalidIdentifier are client-input conditions;
// ErrNoTenantBound and ErrAlreadyBound are programming errors and propagate
// unmodified; loader and cache infrastructure failures surface as wrapped
// errors. DefaultErrorHandler maps each class to a distinct HTTP status.
package tenant
