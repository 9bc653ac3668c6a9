package tenantdb

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// NewRegistry builds a tenant registry wired according to the config: with
// TENANT_AUTO_LOAD enabled, the schema manager's control table becomes the
// lazy source, so tenants provisioned elsewhere resolve on first access
// without explicit registration.
func NewRegistry(cfg Config, pool *pgxpool.Pool, opts ...tenant.RegistryOption) *tenant.Registry {
	if cfg.AutoLoad {
		opts = append([]tenant.RegistryOption{
			tenant.WithLoader(NewRecordLoader(pool)),
		}, opts...)
	}
	return tenant.NewRegistry(opts...)
}

// MiddlewareOptions translates the tenancy config into identification
// middleware options; TENANT_AUTO_VALIDATE controls whether inactive
// tenants are rejected at the boundary.
func MiddlewareOptions(cfg Config) []tenant.Option {
	return []tenant.Option{
		tenant.WithRequireActive(cfg.AutoValidate),
	}
}
