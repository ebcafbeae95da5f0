package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/services"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{
			report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Uptime:      5 * time.Second,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"store": {Status: domain.HealthStatusOK},
				},
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(healthHandlers))

	t.Run("healthz", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	for _, path := range []string{"/api/v1/sync", "/api/v1/products", "/api/v1/admin/products/p1"} {
		t.Run("not implemented "+path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusNotImplemented {
				t.Fatalf("expected status 501, got %d", rr.Code)
			}

			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body: %v", err)
			}
			if body["error"] != "not_implemented" {
				t.Fatalf("expected not_implemented error, got %v", body["error"])
			}
		})
	}
}

func TestNewRouter_WithRegistrars(t *testing.T) {
	registrar := func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	router := NewRouter(WithProductRoutes(registrar))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestNewRouter_NotFound(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/does/not/exist", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "route_not_found" {
		t.Fatalf("expected route_not_found error, got %v", body["error"])
	}
}

func TestNewRouter_GroupMiddleware(t *testing.T) {
	adminHeader := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test-Middleware", "admin")
			next.ServeHTTP(w, r)
		})
	}

	router := NewRouter(WithAdminMiddlewares(adminHeader))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/products/sample", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Header().Get("X-Test-Middleware") != "admin" {
		t.Fatalf("expected admin middleware to set header")
	}
}

func TestNewRouter_SyncRoutesSkipRequestTimeout(t *testing.T) {
	deadlines := map[string]time.Duration{}
	record := func(name string) RouteRegistrar {
		return func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				if deadline, ok := req.Context().Deadline(); ok {
					deadlines[name] = time.Until(deadline)
				}
				w.WriteHeader(http.StatusNoContent)
			})
		}
	}
	router := NewRouter(
		WithRequestTimeout(2*time.Second),
		WithSyncRoutes(record("sync")),
		WithProductRoutes(record("products")),
	)

	for _, path := range []string{"/api/v1/sync", "/api/v1/products"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s: expected status 204, got %d", path, rr.Code)
		}
	}

	if _, ok := deadlines["sync"]; ok {
		t.Fatalf("sync route inherited the request timeout: %v", deadlines["sync"])
	}
	if got, ok := deadlines["products"]; !ok || got > 2*time.Second {
		t.Fatalf("expected products route bounded by the request timeout, got %v (set=%v)", got, ok)
	}
}

func TestNewRouter_SyncTimeoutBoundsRuns(t *testing.T) {
	var remaining time.Duration
	router := NewRouter(
		WithSyncTimeout(15*time.Minute),
		WithSyncRoutes(func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, req *http.Request) {
				if deadline, ok := req.Context().Deadline(); ok {
					remaining = time.Until(deadline)
				}
				w.WriteHeader(http.StatusNoContent)
			})
		}),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if remaining <= 10*time.Minute || remaining > 15*time.Minute {
		t.Fatalf("expected the sync deadline to follow WithSyncTimeout, got %v", remaining)
	}
}
