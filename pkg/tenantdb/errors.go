package tenantdb

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUnsupportedDriver is returned for any driver other than postgres.
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrUnknownStrategy is returned when parsing an unrecognized tenancy
	// strategy name.
	ErrUnknownStrategy = errors.New("unknown tenancy strategy")

	// ErrMissingTenantConfig is returned when no connection target can be
	// derived for a tenant (no override and no usable base configuration).
	// This is a configuration-class failure; retrying without operator
	// action will not help.
	ErrMissingTenantConfig = errors.New("missing tenant connection configuration")

	// ErrInvalidTenantName is returned when a raw identifier cannot be
	// normalized into a legal schema name.
	ErrInvalidTenantName = errors.New("tenant name is not a valid schema identifier")

	// ErrSchemaCreation wraps database-side failures while provisioning a
	// tenant schema. Always propagated, never swallowed.
	ErrSchemaCreation = errors.New("failed to create tenant schema")

	// ErrTenantNotProvisioned is returned when a control-table record is
	// missing for an operation that requires a provisioned tenant.
	ErrTenantNotProvisioned = errors.New("tenant is not provisioned")

	// ErrFailedToOpenPool is returned when a per-target pool cannot be
	// established after the configured retry attempts.
	ErrFailedToOpenPool = errors.New("failed to open connection pool")
)

// IsNotFoundError detects pgx.ErrNoRows for consistent "not found" handling.
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError detects unique constraint violations (SQLSTATE 23505),
// which is how concurrent provisioning of the same tenant loses the race.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
