package tenantdb

import (
	"regexp"
	"strings"
)

// MaxSchemaNameLength is the Postgres identifier limit.
const MaxSchemaNameLength = 63

var (
	schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	disallowedRuns    = regexp.MustCompile(`[^a-z0-9_]+`)
	underscoreRuns    = regexp.MustCompile(`_{2,}`)
)

// ValidateTenantName reports whether the raw identifier is already a legal
// Postgres schema name: letters, digits and underscores, not starting with
// a digit, at most 63 characters. Hyphenated identifiers like "acme-corp"
// are valid tenant IDs but not valid schema names, so they return false
// here and go through CleanTenantName instead.
func ValidateTenantName(raw string) bool {
	if raw == "" || len(raw) > MaxSchemaNameLength {
		return false
	}
	return schemaNamePattern.MatchString(raw)
}

// CleanTenantName deterministically normalizes a raw tenant identifier into
// a legal schema name: lowercase, every run of disallowed characters
// collapsed into a single underscore, a "tenant_" prefix when the result
// would start with a digit, truncated to the identifier limit. The
// transformation is idempotent: CleanTenantName(CleanTenantName(x)) yields
// the same result.
//
// Returns ErrInvalidTenantName when nothing legal remains (e.g. the raw
// identifier contains no letters, digits or underscores at all).
func CleanTenantName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = disallowedRuns.ReplaceAllString(name, "_")
	name = underscoreRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return "", ErrInvalidTenantName
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "tenant_" + name
	}
	if len(name) > MaxSchemaNameLength {
		name = strings.TrimRight(name[:MaxSchemaNameLength], "_")
	}
	return name, nil
}
