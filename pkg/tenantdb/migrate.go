package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var (
	// ErrMigrationsDirNotFound is returned when the migrations directory
	// does not exist.
	ErrMigrationsDirNotFound = errors.New("migrations directory not found")

	// ErrMigrationFailed wraps per-tenant migration failures.
	ErrMigrationFailed = errors.New("tenant migration failed")
)

// goose's logger and dialect are package-global, so runs must be serialized
// even across Migrator instances.
var gooseMu sync.Mutex

// Migrator applies goose migrations inside each tenant's schema. Every
// tenant gets its own goose version table because the connection's
// search_path is pinned to the tenant schema for the whole run, mirroring
// how sessions are scoped at request time.
type Migrator struct {
	cfg     Config
	manager *SchemaManager
	dir     string
	log     *slog.Logger
}

// NewMigrator creates a migrator over the given schema manager and
// migrations directory.
func NewMigrator(cfg Config, manager *SchemaManager, dir string, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{cfg: cfg, manager: manager, dir: dir, log: log}
}

// MigrateTenant migrates one tenant's schema to the latest version. The
// tenant must already be provisioned (active control-table record).
func (m *Migrator) MigrateTenant(ctx context.Context, rawID string) error {
	if _, err := os.Stat(m.dir); err != nil {
		if os.IsNotExist(err) {
			return errors.Join(ErrMigrationsDirNotFound, err)
		}
		return errors.Join(ErrMigrationFailed, err)
	}

	rec, err := m.manager.GetRecord(ctx, rawID)
	if err != nil {
		return err
	}
	if rec.Status != StatusActive {
		return fmt.Errorf("%w: %s has status %s", ErrTenantNotProvisioned, rawID, rec.Status)
	}

	db, cleanup, err := m.openSchemaDB(ctx, rec.SchemaName)
	if err != nil {
		return err
	}
	defer cleanup()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(gooseSlogAdapter{ctx: ctx, log: m.log})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	if err := goose.UpContext(ctx, db, m.dir); err != nil {
		return fmt.Errorf("%w: tenant %s: %w", ErrMigrationFailed, rawID, err)
	}
	return nil
}

// MigrateAll migrates every active tenant, continuing past individual
// failures so one broken tenant does not block the fleet. The aggregate
// error joins every per-tenant failure.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	recs, err := m.manager.ListRecords(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, rec := range recs {
		if rec.Status != StatusActive {
			m.log.WarnContext(ctx, "skipping non-active tenant",
				"tenant_id", rec.ID, "status", rec.Status)
			continue
		}
		if err := m.MigrateTenant(ctx, rec.ID); err != nil {
			m.log.ErrorContext(ctx, "tenant migration failed",
				"tenant_id", rec.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		m.log.InfoContext(ctx, "tenant migrated", "tenant_id", rec.ID, "schema", rec.SchemaName)
	}
	return errors.Join(errs...)
}

// openSchemaDB opens a database/sql handle whose connections have their
// search_path pinned to the tenant schema, bridging pgx to the interface
// goose expects.
func (m *Migrator) openSchemaDB(ctx context.Context, schema string) (*sql.DB, func(), error) {
	connURL, err := m.cfg.URL()
	if err != nil {
		return nil, nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, nil, errors.Join(ErrMigrationFailed, err)
	}
	poolConfig.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, errors.Join(ErrMigrationFailed, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	cleanup := func() {
		if err := db.Close(); err != nil {
			m.log.ErrorContext(ctx, "failed to close migration db handle", "error", err)
		}
		pool.Close()
	}
	return db, cleanup, nil
}

// gooseSlogAdapter routes goose's printf-style output through slog.
type gooseSlogAdapter struct {
	ctx context.Context
	log *slog.Logger
}

func (a gooseSlogAdapter) Fatalf(format string, v ...any) {
	a.log.ErrorContext(a.ctx, fmt.Sprintf(format, v...))
}

func (a gooseSlogAdapter) Printf(format string, v ...any) {
	a.log.InfoContext(a.ctx, fmt.Sprintf(format, v...))
}
