package tenantdb

import (
	"fmt"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Router translates a tenant record into the physical Target its sessions
// must use. Resolution is a pure function of (tenant, strategy, base
// config): no side effects, no schema creation, no caching across tenants.
// Identical inputs always produce an identical target.
type Router struct {
	cfg Config
	def Strategy
}

// NewRouter creates a router over the base configuration. The configured
// default strategy must parse; per-tenant overrides are parsed at resolve
// time.
func NewRouter(cfg Config) (*Router, error) {
	def, err := cfg.DefaultStrategy()
	if err != nil {
		return nil, err
	}
	return &Router{cfg: cfg, def: def}, nil
}

// DefaultStrategy returns the strategy used for tenants without an override.
func (r *Router) DefaultStrategy() Strategy {
	return r.def
}

// StrategyFor returns the effective strategy for the given tenant record.
func (r *Router) StrategyFor(t *tenant.Tenant) (Strategy, error) {
	if t == nil || t.Strategy == "" {
		return r.def, nil
	}
	return ParseStrategy(t.Strategy)
}

// Resolve computes the Target for the given tenant record.
//
//   - DatabasePerTenant: the tenant's ConnectionURL override, or a database
//     named tenant_<normalized-id> on the base server. Fails with
//     ErrMissingTenantConfig when neither can be derived.
//   - SchemaPerTenant: base connection plus the normalized schema name.
//     Schema existence is a provisioning concern (SchemaManager); routing
//     never creates it.
//   - RowLevel: base connection plus the raw identifier as filter key.
func (r *Router) Resolve(t *tenant.Tenant) (Target, error) {
	if t == nil || t.ID == "" {
		return Target{}, tenant.ErrInvalidTenantName
	}

	strategy, err := r.StrategyFor(t)
	if err != nil {
		return Target{}, err
	}

	switch strategy {
	case DatabasePerTenant:
		if t.ConnectionURL != "" {
			return Target{Strategy: strategy, ConnURL: t.ConnectionURL}, nil
		}
		name, err := CleanTenantName(t.ID)
		if err != nil {
			return Target{}, err
		}
		connURL, err := r.cfg.databaseURL("tenant_" + name)
		if err != nil {
			return Target{}, fmt.Errorf("%w: tenant %s", ErrMissingTenantConfig, t.ID)
		}
		return Target{Strategy: strategy, ConnURL: connURL}, nil

	case SchemaPerTenant:
		schema, err := CleanTenantName(t.ID)
		if err != nil {
			return Target{}, err
		}
		connURL, err := r.cfg.URL()
		if err != nil {
			return Target{}, err
		}
		return Target{Strategy: strategy, ConnURL: connURL, Schema: schema}, nil

	case RowLevel:
		connURL, err := r.cfg.URL()
		if err != nil {
			return Target{}, err
		}
		return Target{Strategy: strategy, ConnURL: connURL, FilterKey: t.ID}, nil

	default:
		return Target{}, fmt.Errorf("%w: %v", ErrUnknownStrategy, strategy)
	}
}
