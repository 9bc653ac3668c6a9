package tenant_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

func newTestRouter(t *testing.T, reg *tenant.Registry, opts ...tenant.Option) *chi.Mux {
	t.Helper()

	cache := tenant.NewNoOpCache()
	opts = append([]tenant.Option{tenant.WithCache(cache)}, opts...)

	r := chi.NewRouter()
	r.Use(tenant.Middleware(tenant.NewHeaderResolver("X-Tenant-ID"), reg, opts...))
	r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
		bound, ok := tenant.FromContext(req.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(bound.ID))
	})
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func doRequest(t *testing.T, handler http.Handler, tenantID string, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("binds resolved tenant into request context", func(t *testing.T) {
		t.Parallel()

		reg := tenant.NewRegistry()
		require.NoError(t, reg.Register(newTestTenant("acme", true)))
		router := newTestRouter(t, reg)

		rec := doRequest(t, router, "acme", "/whoami")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", rec.Body.String())
	})

	t.Run("rejects request without identifier before handler runs", func(t *testing.T) {
		t.Parallel()

		handlerRan := false
		reg := tenant.NewRegistry()
		mw := tenant.Middleware(tenant.NewHeaderResolver("X-Tenant-ID"), reg,
			tenant.WithCache(tenant.NewNoOpCache()))
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerRan = true
		}))

		rec := doRequest(t, h, "", "/whoami")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, handlerRan)
	})

	t.Run("unknown tenant maps to 404", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t, tenant.NewRegistry())
		rec := doRequest(t, router, "ghost", "/whoami")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed identifier maps to 400", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t, tenant.NewRegistry())
		rec := doRequest(t, router, "not valid!", "/whoami")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inactive tenant maps to 403", func(t *testing.T) {
		t.Parallel()

		reg := tenant.NewRegistry()
		require.NoError(t, reg.Register(newTestTenant("sleepy", false)))
		router := newTestRouter(t, reg)

		rec := doRequest(t, router, "sleepy", "/whoami")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("inactive tenant allowed when validation disabled", func(t *testing.T) {
		t.Parallel()

		reg := tenant.NewRegistry()
		require.NoError(t, reg.Register(newTestTenant("sleepy", false)))
		router := newTestRouter(t, reg, tenant.WithRequireActive(false))

		rec := doRequest(t, router, "sleepy", "/whoami")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("optional mode lets unidentified requests through", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t, tenant.NewRegistry(), tenant.WithOptionalTenant())
		rec := doRequest(t, router, "", "/whoami")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("skip paths bypass resolution", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t, tenant.NewRegistry(), tenant.WithSkipPaths("/health"))
		rec := doRequest(t, router, "", "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("serves from cache without registry hit", func(t *testing.T) {
		t.Parallel()

		reg := tenant.NewRegistry()
		require.NoError(t, reg.Register(newTestTenant("acme", true)))

		cache := tenant.NewInMemoryCache()
		t.Cleanup(func() { _ = cache.Close() })

		r := chi.NewRouter()
		r.Use(tenant.Middleware(tenant.NewHeaderResolver("X-Tenant-ID"), reg,
			tenant.WithCache(cache), tenant.WithCacheTTL(time.Minute)))
		r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
			bound, _ := tenant.FromContext(req.Context())
			_, _ = w.Write([]byte(bound.ID))
		})

		rec := doRequest(t, r, "acme", "/whoami")
		require.Equal(t, http.StatusOK, rec.Code)

		// Second request survives the tenant being removed because the
		// cached record is still fresh.
		reg.Remove("acme")
		rec = doRequest(t, r, "acme", "/whoami")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", rec.Body.String())
	})

	t.Run("default configuration does not cache", func(t *testing.T) {
		t.Parallel()

		reg := tenant.NewRegistry()
		require.NoError(t, reg.Register(newTestTenant("acme", true)))

		// No WithCache: every request consults the registry and the
		// middleware retains nothing, so no goroutine outlives it.
		r := chi.NewRouter()
		r.Use(tenant.Middleware(tenant.NewHeaderResolver("X-Tenant-ID"), reg))
		r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
			bound, _ := tenant.FromContext(req.Context())
			_, _ = w.Write([]byte(bound.ID))
		})

		rec := doRequest(t, r, "acme", "/whoami")
		require.Equal(t, http.StatusOK, rec.Code)

		reg.Remove("acme")
		rec = doRequest(t, r, "acme", "/whoami")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("custom error handler is used", func(t *testing.T) {
		t.Parallel()

		called := false
		reg := tenant.NewRegistry()
		mw := tenant.Middleware(tenant.NewHeaderResolver("X-Tenant-ID"), reg,
			tenant.WithCache(tenant.NewNoOpCache()),
			tenant.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				called = true
				w.WriteHeader(http.StatusTeapot)
			}))
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := doRequest(t, h, "ghost", "/whoami")
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.True(t, called)
	})
}

func TestMiddlewareConcurrentRequests(t *testing.T) {
	t.Parallel()

	// Two tenants hammering the same router must never observe each other's
	// binding in their handler.
	reg := tenant.NewRegistry()
	require.NoError(t, reg.Register(newTestTenant("acme", true)))
	require.NoError(t, reg.Register(newTestTenant("globex", true)))
	router := newTestRouter(t, reg)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	const perTenant = 50
	var wg sync.WaitGroup
	for _, id := range []string{"acme", "globex"} {
		wg.Add(perTenant)
		for range perTenant {
			go func(want string) {
				defer wg.Done()

				req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/whoami", nil)
				assert.NoError(t, err)
				req.Header.Set("X-Tenant-ID", want)

				resp, err := srv.Client().Do(req)
				assert.NoError(t, err)
				defer resp.Body.Close()

				body, err := io.ReadAll(resp.Body)
				assert.NoError(t, err)
				assert.Equal(t, want, string(body))
			}(id)
		}
	}
	wg.Wait()
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	t.Run("blocks unbound requests", func(t *testing.T) {
		t.Parallel()

		handlerRan := false
		h := tenant.RequireTenant(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerRan = true
		}))

		rec := doRequest(t, h, "", "/protected")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, handlerRan)
	})

	t.Run("passes bound requests", func(t *testing.T) {
		t.Parallel()

		h := tenant.RequireTenant(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		ctx, err := tenant.Bind(context.Background(), newTestTenant("acme", true))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
