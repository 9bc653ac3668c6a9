package tenant

import (
	"strings"
	"time"
)

// Tenant is the per-tenant configuration record owned by the Registry.
// Once handed out it must be treated as an immutable snapshot: the registry
// returns copies, so concurrent registry updates never mutate a record a
// request is already working with.
type Tenant struct {
	// ID is the raw, opaque tenant identifier as supplied at registration
	// (e.g. "acme-corp"). Schema-safe normalization happens in tenantdb.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable display name.
	Name string `json:"name" yaml:"name"`

	// Strategy optionally overrides the global tenancy strategy for this
	// tenant. Empty means "use the configured default". Parsed by tenantdb.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// ConnectionURL optionally overrides the full connection string for
	// DATABASE_PER_TENANT deployments where each tenant lives on its own
	// server or managed instance.
	ConnectionURL string `json:"connection_url,omitempty" yaml:"connection_url,omitempty"`

	// Metadata carries arbitrary key-value data (plan, region, flags).
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Clone returns a deep copy so registry internals never alias caller state.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// ValidateID checks the basic identifier rules enforced at registration:
// non-empty after trimming and free of path separators. Schema-name rules
// are stricter and live in tenantdb.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidTenantName
	}
	if strings.ContainsAny(id, "/\\") {
		return ErrInvalidTenantName
	}
	return nil
}
