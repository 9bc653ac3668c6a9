package tenantdb

import "fmt"

// Strategy selects how tenant data is physically isolated. It is a closed
// set: every dispatch site switches over all three variants and fails on
// anything else, so an unhandled strategy is caught immediately rather than
// routed to a default.
type Strategy int

const (
	// DatabasePerTenant gives every tenant its own database, either via an
	// explicit per-tenant connection URL or a templated database name on
	// the shared server.
	DatabasePerTenant Strategy = iota + 1

	// SchemaPerTenant keeps all tenants in one database, each inside its
	// own schema selected via search_path.
	SchemaPerTenant

	// RowLevel shares tables between tenants; isolation relies on a tenant
	// key filter applied in the session layer (and, ideally, Postgres RLS
	// policies keyed on the session's tenant setting).
	RowLevel
)

const (
	strategyDatabase = "database_per_tenant"
	strategySchema   = "schema_per_tenant"
	strategyRowLevel = "row_level"
)

// ParseStrategy converts the wire/config representation into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case strategyDatabase:
		return DatabasePerTenant, nil
	case strategySchema:
		return SchemaPerTenant, nil
	case strategyRowLevel:
		return RowLevel, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

func (s Strategy) String() string {
	switch s {
	case DatabasePerTenant:
		return strategyDatabase
	case SchemaPerTenant:
		return strategySchema
	case RowLevel:
		return strategyRowLevel
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Valid reports whether s is one of the three known variants.
func (s Strategy) Valid() bool {
	switch s {
	case DatabasePerTenant, SchemaPerTenant, RowLevel:
		return true
	default:
		return false
	}
}
