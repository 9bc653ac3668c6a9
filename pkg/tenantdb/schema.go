package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Provisioning statuses recorded in the control table. A tenant is only
// routable once its record reaches StatusActive; anything else is an
// explicit non-ready state, never silently indistinguishable from success.
const (
	StatusProvisioning = "provisioning"
	StatusActive       = "active"
	StatusFailed       = "failed"
)

// ControlTable is the shared record of tenant-to-schema mappings. It is the
// only table the schema manager owns; tenant business tables always belong
// to the caller.
const ControlTable = "tenants"

// SchemaRecord is one row of the control table.
type SchemaRecord struct {
	ID         string    // raw tenant identifier, unique
	Name       string    // display name
	SchemaName string    // normalized schema name, unique
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateTablesFunc is the caller-supplied hook invoked once per new tenant
// inside the freshly created schema. The connection passed in already has
// its search_path pinned to that schema.
type CreateTablesFunc func(ctx context.Context, conn *pgxpool.Conn, schema string) error

// SchemaManager owns the schema-per-tenant physical lifecycle: name
// normalization, schema creation, and control-table bookkeeping. All its
// statements run against the shared/base database.
type SchemaManager struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewSchemaManager creates a manager over the shared database pool.
func NewSchemaManager(pool *pgxpool.Pool, log *slog.Logger) *SchemaManager {
	if log == nil {
		log = slog.Default()
	}
	return &SchemaManager{pool: pool, log: log}
}

// Setup bootstraps the multi-tenant environment: the public schema (a no-op
// on stock Postgres) and the control table with its uniqueness constraints.
// The unique index on schema_name is what makes concurrent provisioning of
// colliding names a first-writer-wins race at the storage layer.
func (m *SchemaManager) Setup(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS public`,
		`CREATE TABLE IF NOT EXISTS public.` + ControlTable + ` (
			id          VARCHAR(255) PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			schema_name VARCHAR(63)  NOT NULL UNIQUE,
			status      VARCHAR(50)  NOT NULL DEFAULT 'provisioning',
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("setup multi-tenant environment: %w", err)
		}
	}
	return nil
}

// CreateTenantSchema creates the physical schema if absent and upserts the
// corresponding control-table record. Idempotent: re-creating an existing
// schema is a no-op.
func (m *SchemaManager) CreateTenantSchema(ctx context.Context, rawID, displayName string) (string, error) {
	schema, err := CleanTenantName(rawID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, rawID)
	}
	if displayName == "" {
		displayName = rawID
	}

	if err := m.createSchema(ctx, schema); err != nil {
		return "", err
	}

	_, err = m.pool.Exec(ctx, `
		INSERT INTO public.`+ControlTable+` (id, name, schema_name, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = now()`,
		rawID, displayName, schema, StatusActive)
	if err != nil {
		return "", fmt.Errorf("record tenant schema %q: %w", schema, err)
	}
	return schema, nil
}

func (m *SchemaManager) createSchema(ctx context.Context, schema string) error {
	ident := pgx.Identifier{schema}.Sanitize()
	if _, err := m.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+ident); err != nil {
		return errors.Join(ErrSchemaCreation, err)
	}
	return nil
}

// InitializeTenant provisions a new tenant end to end: normalize the name,
// claim the control-table row, create the schema, then run the caller's
// table-creation hook inside it. The row is claimed with status
// "provisioning" before any physical work so concurrent initializations of
// the same identifier resolve at the storage layer: the first writer wins
// and later callers observe the existing record instead of creating a
// duplicate schema.
//
// On failure after the claim, the record is flipped to "failed" rather than
// removed, so a half-provisioned tenant is never observable as ready.
func (m *SchemaManager) InitializeTenant(ctx context.Context, rawID, displayName string, createTables CreateTablesFunc) (*SchemaRecord, error) {
	schema, err := CleanTenantName(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, rawID)
	}
	if displayName == "" {
		displayName = rawID
	}

	claimed, rec, err := m.claim(ctx, rawID, displayName, schema)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Someone else provisioned (or is provisioning) this tenant.
		return rec, nil
	}

	if err := m.provision(ctx, rawID, schema, createTables); err != nil {
		m.markStatus(ctx, rawID, StatusFailed)
		return nil, err
	}

	if err := m.markStatus(ctx, rawID, StatusActive); err != nil {
		return nil, err
	}

	m.log.InfoContext(ctx, "tenant provisioned", "tenant_id", rawID, "schema", schema)
	return m.GetRecord(ctx, rawID)
}

// claim inserts the provisioning record, returning claimed=false with the
// existing record when another caller got there first.
func (m *SchemaManager) claim(ctx context.Context, rawID, displayName, schema string) (bool, *SchemaRecord, error) {
	tag, err := m.pool.Exec(ctx, `
		INSERT INTO public.`+ControlTable+` (id, name, schema_name, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		rawID, displayName, schema, StatusProvisioning)
	if err != nil {
		if IsDuplicateKeyError(err) {
			// schema_name collision: two distinct raw IDs normalize to the
			// same schema. That is a caller error, not a race to absorb.
			return false, nil, fmt.Errorf("%w: schema %q already mapped to another tenant", ErrInvalidTenantName, schema)
		}
		return false, nil, fmt.Errorf("claim tenant %q: %w", rawID, err)
	}
	if tag.RowsAffected() == 0 {
		rec, err := m.GetRecord(ctx, rawID)
		if err != nil {
			return false, nil, err
		}
		return false, rec, nil
	}
	return true, nil, nil
}

func (m *SchemaManager) provision(ctx context.Context, rawID, schema string, createTables CreateTablesFunc) error {
	if err := m.createSchema(ctx, schema); err != nil {
		return err
	}
	if createTables == nil {
		return nil
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for tenant %q: %w", rawID, err)
	}
	defer conn.Release()

	ident := pgx.Identifier{schema}.Sanitize()
	if _, err := conn.Exec(ctx, `SET search_path TO `+ident+`, public`); err != nil {
		return errors.Join(ErrSchemaCreation, err)
	}
	// Pin the connection's search_path only for the callback; reset before
	// the connection returns to the shared pool.
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SET search_path TO public`)
	}()

	if err := createTables(ctx, conn, schema); err != nil {
		return fmt.Errorf("create tables for tenant %q: %w", rawID, err)
	}
	return nil
}

func (m *SchemaManager) markStatus(ctx context.Context, rawID, status string) error {
	// Status updates must land even when the surrounding context was
	// cancelled mid-provisioning, otherwise the record lies about its state.
	ctx = context.WithoutCancel(ctx)
	_, err := m.pool.Exec(ctx, `
		UPDATE public.`+ControlTable+`
		SET status = $2, updated_at = now()
		WHERE id = $1`,
		rawID, status)
	if err != nil {
		return fmt.Errorf("update tenant %q status to %s: %w", rawID, status, err)
	}
	return nil
}

// GetRecord fetches one control-table record by raw tenant identifier.
func (m *SchemaManager) GetRecord(ctx context.Context, rawID string) (*SchemaRecord, error) {
	row := m.pool.QueryRow(ctx, `
		SELECT id, name, schema_name, status, created_at, updated_at
		FROM public.`+ControlTable+`
		WHERE id = $1`,
		rawID)

	var rec SchemaRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.SchemaName, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotProvisioned, rawID)
		}
		return nil, fmt.Errorf("get tenant record %q: %w", rawID, err)
	}
	return &rec, nil
}

// ListRecords returns all control-table records.
func (m *SchemaManager) ListRecords(ctx context.Context) ([]SchemaRecord, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT id, name, schema_name, status, created_at, updated_at
		FROM public.`+ControlTable+`
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenant records: %w", err)
	}
	defer rows.Close()

	var recs []SchemaRecord
	for rows.Next() {
		var rec SchemaRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.SchemaName, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
