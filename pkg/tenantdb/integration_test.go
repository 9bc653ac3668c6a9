package tenantdb_test

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
	"github.com/dmitrymomot/tenantkit/pkg/tenantdb"
)

// integrationConfig builds a Config from TEST_DATABASE_URL, skipping the
// test when no database is available.
func integrationConfig(t *testing.T, strategy string) tenantdb.Config {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set; skipping database integration test")
	}

	u, err := url.Parse(dsn)
	require.NoError(t, err)

	port := 5432
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}
	password, _ := u.User.Password()

	return tenantdb.Config{
		Driver:        "postgres",
		Host:          u.Hostname(),
		Port:          port,
		User:          u.User.Username(),
		Password:      password,
		Name:          u.Path[1:],
		Strategy:      strategy,
		MaxOpenConns:  5,
		MaxIdleConns:  1,
		RetryAttempts: 1,
		RetryInterval: time.Second,
	}
}

func integrationPool(t *testing.T, cfg tenantdb.Config) *pgxpool.Pool {
	t.Helper()

	connURL, err := cfg.URL()
	require.NoError(t, err)
	pool, err := pgxpool.New(context.Background(), connURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func dropSchema(t *testing.T, pool *pgxpool.Pool, rawID string) {
	t.Helper()
	schema, err := tenantdb.CleanTenantName(rawID)
	require.NoError(t, err)
	_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`)
	_, _ = pool.Exec(context.Background(), `DELETE FROM public.tenants WHERE id = $1`, rawID)
}

func TestSchemaManagerLifecycle(t *testing.T) {
	cfg := integrationConfig(t, "schema_per_tenant")
	pool := integrationPool(t, cfg)
	manager := tenantdb.NewSchemaManager(pool, nil)

	ctx := context.Background()
	require.NoError(t, manager.Setup(ctx))
	require.NoError(t, manager.Setup(ctx)) // idempotent

	t.Run("initialize tenant end to end", func(t *testing.T) {
		rawID := uniqueID("acme-corp")
		t.Cleanup(func() { dropSchema(t, pool, rawID) })

		var gotSchema string
		rec, err := manager.InitializeTenant(ctx, rawID, "Acme Corp",
			func(ctx context.Context, conn *pgxpool.Conn, schema string) error {
				gotSchema = schema
				_, err := conn.Exec(ctx, `CREATE TABLE orders (id SERIAL PRIMARY KEY, item TEXT)`)
				return err
			})
		require.NoError(t, err)

		wantSchema, err := tenantdb.CleanTenantName(rawID)
		require.NoError(t, err)
		assert.Equal(t, wantSchema, gotSchema)
		assert.Equal(t, rawID, rec.ID)
		assert.Equal(t, wantSchema, rec.SchemaName)
		assert.Equal(t, tenantdb.StatusActive, rec.Status)

		// The orders table landed inside the tenant schema, not public.
		var exists bool
		err = pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = $1 AND table_name = 'orders'
			)`, wantSchema).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("failed provisioning leaves explicit failed status", func(t *testing.T) {
		rawID := uniqueID("broken")
		t.Cleanup(func() { dropSchema(t, pool, rawID) })

		_, err := manager.InitializeTenant(ctx, rawID, "",
			func(ctx context.Context, conn *pgxpool.Conn, schema string) error {
				return fmt.Errorf("table creation exploded")
			})
		require.Error(t, err)

		rec, err := manager.GetRecord(ctx, rawID)
		require.NoError(t, err)
		assert.Equal(t, tenantdb.StatusFailed, rec.Status)
	})

	t.Run("concurrent initialization yields one record and one schema", func(t *testing.T) {
		rawID := uniqueID("race")
		t.Cleanup(func() { dropSchema(t, pool, rawID) })

		const callers = 8
		var wg sync.WaitGroup
		wg.Add(callers)
		for range callers {
			go func() {
				defer wg.Done()
				_, err := manager.InitializeTenant(ctx, rawID, "Race Inc",
					func(ctx context.Context, conn *pgxpool.Conn, schema string) error {
						_, err := conn.Exec(ctx, `CREATE TABLE things (id SERIAL PRIMARY KEY)`)
						return err
					})
				// Losers of the claim race observe the existing record and
				// must not error.
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		var count int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT count(*) FROM public.tenants WHERE id = $1`, rawID).Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestSessionFactorySchemaIsolation(t *testing.T) {
	cfg := integrationConfig(t, "schema_per_tenant")
	pool := integrationPool(t, cfg)
	manager := tenantdb.NewSchemaManager(pool, nil)

	ctx := context.Background()
	require.NoError(t, manager.Setup(ctx))

	idA, idB := uniqueID("tenant-a"), uniqueID("tenant-b")
	for _, id := range []string{idA, idB} {
		t.Cleanup(func() { dropSchema(t, pool, id) })
		_, err := manager.InitializeTenant(ctx, id, "",
			func(ctx context.Context, conn *pgxpool.Conn, schema string) error {
				_, err := conn.Exec(ctx, `CREATE TABLE notes (body TEXT)`)
				return err
			})
		require.NoError(t, err)
	}

	factory, err := tenantdb.NewSessionFactory(cfg)
	require.NoError(t, err)
	t.Cleanup(factory.Close)

	sessA, err := factory.GetSessionFor(ctx, idA)
	require.NoError(t, err)
	defer sessA.Release()
	_, err = sessA.Exec(ctx, `INSERT INTO notes (body) VALUES ('from a')`)
	require.NoError(t, err)
	sessA.Release()

	// Tenant B sees an empty table: same database, different schema.
	sessB, err := factory.GetSessionFor(ctx, idB)
	require.NoError(t, err)
	defer sessB.Release()

	var count int
	require.NoError(t, sessB.QueryRow(ctx, `SELECT count(*) FROM notes`).Scan(&count))
	assert.Zero(t, count)
}

func TestSessionFactoryRowLevel(t *testing.T) {
	cfg := integrationConfig(t, "row_level")
	pool := integrationPool(t, cfg)

	ctx := context.Background()
	table := fmt.Sprintf("rl_events_%d", time.Now().UnixNano())
	_, err := pool.Exec(ctx, `CREATE TABLE public.`+table+` (tenant_id TEXT NOT NULL, payload TEXT)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS public.`+table)
	})

	factory, err := tenantdb.NewSessionFactory(cfg)
	require.NoError(t, err)
	t.Cleanup(factory.Close)

	insert := func(tenantID, payload string) {
		sess, err := factory.GetSessionFor(ctx, tenantID)
		require.NoError(t, err)
		defer sess.Release()

		assert.Equal(t, tenantID, sess.FilterKey())
		_, err = sess.Exec(ctx,
			`INSERT INTO public.`+table+` (tenant_id, payload) VALUES ($1, $2)`,
			sess.FilterKey(), payload)
		require.NoError(t, err)
	}
	insert("t1", "one")
	insert("t2", "two")

	sess, err := factory.GetSessionFor(ctx, "t1")
	require.NoError(t, err)
	defer sess.Release()

	// The session published its identity for RLS policies.
	var current string
	require.NoError(t, sess.QueryRow(ctx, `SELECT current_setting('app.current_tenant')`).Scan(&current))
	assert.Equal(t, "t1", current)

	// Filtering on the session's key returns exactly the t1 row.
	var payload string
	require.NoError(t, sess.QueryRow(ctx,
		`SELECT payload FROM public.`+table+` WHERE tenant_id = $1`,
		sess.FilterKey()).Scan(&payload))
	assert.Equal(t, "one", payload)
}

func writeMigrationsDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	migration := `-- +goose Up
CREATE TABLE events (id SERIAL PRIMARY KEY, label TEXT);

-- +goose Down
DROP TABLE events;
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00001_init.sql"), []byte(migration), 0o644))
	return dir
}

func TestMigratorConcurrentTenants(t *testing.T) {
	cfg := integrationConfig(t, "schema_per_tenant")
	pool := integrationPool(t, cfg)
	manager := tenantdb.NewSchemaManager(pool, nil)

	ctx := context.Background()
	require.NoError(t, manager.Setup(ctx))

	ids := []string{uniqueID("mig-a"), uniqueID("mig-b"), uniqueID("mig-c")}
	for _, id := range ids {
		t.Cleanup(func() { dropSchema(t, pool, id) })
		_, err := manager.InitializeTenant(ctx, id, "", nil)
		require.NoError(t, err)
	}

	migrator := tenantdb.NewMigrator(cfg, manager, writeMigrationsDir(t), nil)

	// Tenants migrate concurrently; goose's package-global configuration
	// must hold up under that.
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, migrator.MigrateTenant(ctx, id))
		}()
	}
	wg.Wait()

	// Every schema ended up with its own events table and its own goose
	// version table.
	for _, id := range ids {
		schema, err := tenantdb.CleanTenantName(id)
		require.NoError(t, err)
		for _, table := range []string{"events", "goose_db_version"} {
			var exists bool
			require.NoError(t, pool.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM information_schema.tables
					WHERE table_schema = $1 AND table_name = $2
				)`, schema, table).Scan(&exists))
			assert.True(t, exists, "%s missing in %s", table, schema)
		}
	}
}

func TestSessionFactoryContextBinding(t *testing.T) {
	cfg := integrationConfig(t, "row_level")

	factory, err := tenantdb.NewSessionFactory(cfg)
	require.NoError(t, err)
	t.Cleanup(factory.Close)

	ctx := context.Background()

	// Unbound context fails fast, before any connection work.
	_, err = factory.GetSession(ctx)
	require.ErrorIs(t, err, tenant.ErrNoTenantBound)

	bound, err := tenant.Bind(ctx, &tenant.Tenant{ID: "ctx-tenant", Active: true})
	require.NoError(t, err)

	sess, err := factory.GetSession(bound)
	require.NoError(t, err)
	defer sess.Release()
	assert.Equal(t, "ctx-tenant", sess.TenantID())
}
