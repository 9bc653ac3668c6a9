package tenantdb

// Target is the resolved physical destination for one tenant's data access.
// Exactly one of Schema or FilterKey is set for the schema and row-level
// strategies respectively; DatabasePerTenant sets neither because the whole
// connection already belongs to the tenant.
type Target struct {
	Strategy Strategy

	// ConnURL is the connection string to use.
	ConnURL string

	// Schema is the normalized tenant schema (SchemaPerTenant only).
	Schema string

	// FilterKey is the raw tenant identifier every tenant-scoped query must
	// filter on (RowLevel only).
	FilterKey string
}

// PoolKey identifies the connection pool serving this target. It folds the
// schema name or filter key into the key so pools are never shared across
// tenants even when they point at the same database: a mis-scoped connection
// can therefore never be handed to another tenant's session.
func (t Target) PoolKey() string {
	switch t.Strategy {
	case SchemaPerTenant:
		return t.ConnURL + "|schema=" + t.Schema
	case RowLevel:
		return t.ConnURL + "|tenant=" + t.FilterKey
	default:
		return t.ConnURL
	}
}
