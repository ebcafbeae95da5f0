package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vinylyard/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	sync     RouteRegistrar
	products RouteRegistrar
	admin    RouteRegistrar

	syncMiddlewares  []func(http.Handler) http.Handler
	adminMiddlewares []func(http.Handler) http.Handler

	requestTimeout time.Duration
	syncTimeout    time.Duration
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
	// writeDeadlineSlack leaves room to write the report once a bounded run returns.
	writeDeadlineSlack = 30 * time.Second
	errorNotFoundCode  = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the sync, product and admin groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
		},
		requestTimeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	// Sync runs outlive ordinary requests, so the request timeout is applied per group.
	requestTimeout := timeoutMiddleware(cfg.requestTimeout)
	syncMiddlewares := append([]func(http.Handler) http.Handler{
		timeoutMiddleware(cfg.syncTimeout),
		writeDeadlineMiddleware(cfg.syncTimeout),
	}, cfg.syncMiddlewares...)

	health := chi.Router(r)
	if requestTimeout != nil {
		health = r.With(requestTimeout)
	}
	health.Get("/healthz", cfg.health.Healthz)
	health.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/sync", cfg.sync, "sync", syncMiddlewares)
		mount("/products", cfg.products, "products", []func(http.Handler) http.Handler{requestTimeout})
		mount("/admin", cfg.admin, "admin", append([]func(http.Handler) http.Handler{requestTimeout}, cfg.adminMiddlewares...))
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithRequestTimeout bounds every route except /sync. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.requestTimeout = max(d, 0)
	}
}

// WithSyncTimeout bounds a sync run triggered over HTTP and lifts the server write deadline to
// match. Zero leaves runs unbounded by the router.
func WithSyncTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.syncTimeout = max(d, 0)
	}
}

// WithBasePath overrides the /api/v1 prefix.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithSyncRoutes configures the registrar responsible for the /sync endpoints.
func WithSyncRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.sync = reg
	}
}

// WithSyncMiddlewares configures middlewares applied to the /sync group.
func WithSyncMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.syncMiddlewares = append(cfg.syncMiddlewares, mw...)
	}
}

// WithProductRoutes configures the registrar responsible for storefront product endpoints.
func WithProductRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.products = reg
	}
}

// WithAdminRoutes configures the registrar responsible for admin endpoints.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = reg
	}
}

// WithAdminMiddlewares configures middlewares applied to the /admin group.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...)
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return nil
	}
	return middleware.Timeout(d)
}

// writeDeadlineMiddleware replaces the server-wide write deadline, which would otherwise cut the
// response of a long run. Zero clears the deadline.
func writeDeadlineMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var deadline time.Time
			if d > 0 {
				deadline = time.Now().Add(d + writeDeadlineSlack)
			}
			// Writers without deadline support, such as test recorders, keep their defaults.
			_ = http.NewResponseController(w).SetWriteDeadline(deadline)
			next.ServeHTTP(w, r)
		})
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
