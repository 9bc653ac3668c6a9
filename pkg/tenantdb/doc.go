// Package tenantdb routes tenant-scoped database access under three
// isolation strategies and manages the physical resources each one needs.
//
// # Strategies
//
//   - DatabasePerTenant: every tenant has its own database, via an explicit
//     per-tenant connection URL or a templated tenant_<id> database on the
//     shared server. Strongest isolation.
//   - SchemaPerTenant: one database, one schema per tenant, selected with
//     search_path. The SchemaManager owns schema creation, name
//     normalization and the shared "tenants" control table.
//   - RowLevel: shared tables filtered by tenant key. Sessions publish the
//     identity as the app.current_tenant setting so Postgres RLS policies
//     enforce the filter inside the database rather than at call sites.
//
// # Flow
//
// The Router is a pure function from (tenant record, strategy, base config)
// to a physical Target. The SessionFactory resolves the tenant bound to the
// request context, routes it, and hands out a Session from a pool keyed by
// that target; pool keys include the schema name, so a connection carrying
// one tenant's search_path can never serve another tenant.
//
//	cfg := tenantdb.Config{...}
//	factory, err := tenantdb.NewSessionFactory(cfg, tenantdb.WithRegistry(registry))
//	if err != nil { ... }
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		session, err := factory.GetSession(r.Context())
//		if err != nil { ... }
//		defer session.Release()
//
//		rows, err := session.Query(r.Context(), `SELECT ... FROM orders`)
//		...
//	}
//
// # Provisioning
//
// SchemaManager.Setup bootstraps the control table; InitializeTenant
// normalizes the raw identifier ("acme-corp" becomes schema "acme_corp"),
// claims a control-table row, creates the schema and runs the caller's
// table-creation hook inside it. Claims are first-writer-wins at the
// storage layer, so concurrent initialization of the same tenant yields
// exactly one schema and one record. Migrator applies goose migrations per
// tenant schema.
package tenantdb
