package tenantdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// RecordLoader is a tenant.Loader backed by the schema manager's control
// table, so tenants provisioned by one application instance become
// resolvable on every other instance without re-registration.
type RecordLoader struct {
	pool *pgxpool.Pool
}

// NewRecordLoader creates a loader over the shared database pool. Run
// SchemaManager.Setup first so the control table exists.
func NewRecordLoader(pool *pgxpool.Pool) *RecordLoader {
	return &RecordLoader{pool: pool}
}

// Load resolves a tenant from its control-table record. Only active tenants
// resolve; provisioning or failed tenants surface as inactive records so
// auto-validation can reject them with a distinct status.
func (l *RecordLoader) Load(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT id, name, status, created_at
		FROM public.`+ControlTable+`
		WHERE id = $1`,
		id)

	var rec SchemaRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Status, &rec.CreatedAt); err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, id)
		}
		return nil, fmt.Errorf("load tenant %q: %w", id, err)
	}

	return &tenant.Tenant{
		ID:        rec.ID,
		Name:      rec.Name,
		Active:    rec.Status == StatusActive,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// ListIDs enumerates every tenant recorded in the control table.
func (l *RecordLoader) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT id FROM public.`+ControlTable+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
