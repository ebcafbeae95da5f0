// Package di assembles the catalog sync engine from configuration so the HTTP server and the
// operator CLI run the same wiring.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/platform/cache"
	"github.com/vinylyard/api/internal/platform/config"
	pfirestore "github.com/vinylyard/api/internal/platform/firestore"
	"github.com/vinylyard/api/internal/platform/jobs"
	"github.com/vinylyard/api/internal/platform/observability"
	"github.com/vinylyard/api/internal/platform/runlock"
	"github.com/vinylyard/api/internal/platform/storage"
	"github.com/vinylyard/api/internal/provider"
	"github.com/vinylyard/api/internal/repositories"
	"github.com/vinylyard/api/internal/repositories/memory"
	"github.com/vinylyard/api/internal/repositories/sqlstore"
	"github.com/vinylyard/api/internal/services"
)

const meterName = "github.com/vinylyard/api"

// Services bundles the service-layer contracts that handlers and the CLI rely upon.
type Services struct {
	Sync     services.SyncCoordinator
	Products services.ProductCatalog
	Admin    services.AdminProductService
	System   services.SystemService
}

// Container wires repositories, providers, and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// Option customises container construction. Tests use them to swap infrastructure for fakes.
type Option func(*options)

type options struct {
	registry  repositories.Registry
	logger    *zap.Logger
	clock     func() time.Time
	build     services.BuildInfo
	token     provider.TokenSource
	transport http.RoundTripper
	locker    runlock.Locker
	events    services.SyncEventPublisher
	archiver  services.RunReportArchiver
}

// WithRegistry uses reg instead of opening the configured store. The container still closes it.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger sets the base logger; components get named children.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides time.Now across every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) { o.build = info }
}

// WithTokenSource replaces the static catalog access token, e.g. with a rotating secret lookup.
func WithTokenSource(source provider.TokenSource) Option {
	return func(o *options) { o.token = source }
}

// WithTransport sets the HTTP transport used for provider calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithLocker overrides the configured lock backend.
func WithLocker(locker runlock.Locker) Option {
	return func(o *options) { o.locker = locker }
}

// WithEventPublisher overrides the configured Pub/Sub publisher.
func WithEventPublisher(events services.SyncEventPublisher) Option {
	return func(o *options) { o.events = events }
}

// WithArchiver overrides the configured Cloud Storage archiver.
func WithArchiver(archiver services.RunReportArchiver) Option {
	return func(o *options) { o.archiver = archiver }
}

// NewContainer constructs the runtime dependencies. On error every resource opened so far is closed.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	o := options{clock: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	reg := o.registry
	if reg == nil {
		reg, err = openRegistry(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	var fsProvider *pfirestore.Provider
	if o.locker == nil && cfg.Sync.LockBackend == config.LockBackendFirestore {
		fsProvider = pfirestore.NewProvider(cfg.Firestore)
		c.closers = append(c.closers, func(context.Context) error { return fsProvider.Close() })
	}

	locker, err := buildLocker(o, fsProvider)
	if err != nil {
		return nil, err
	}

	client, err := buildProviderClient(cfg.Catalog, o)
	if err != nil {
		return nil, err
	}
	fetcher, err := provider.NewCatalogFetcher(client, cfg.Catalog.PageSize)
	if err != nil {
		return nil, fmt.Errorf("build catalog fetcher: %w", err)
	}
	inventory, err := provider.NewInventoryOracle(client)
	if err != nil {
		return nil, fmt.Errorf("build inventory oracle: %w", err)
	}
	images, err := provider.NewImageResolver(client)
	if err != nil {
		return nil, fmt.Errorf("build image resolver: %w", err)
	}

	events := o.events
	if events == nil && strings.TrimSpace(cfg.Events.SyncTopic) != "" {
		events, err = c.openPublisher(ctx, cfg.Events)
		if err != nil {
			return nil, err
		}
	}

	archiver := o.archiver
	if archiver == nil && strings.TrimSpace(cfg.Storage.ReportsBucket) != "" {
		archiver, err = c.openArchiver(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
	}

	svc, err := buildServices(cfg, o, reg, serviceInputs{
		catalog: services.CatalogSourceFunc(func(ctx context.Context, locationID string) services.CatalogIterator {
			return fetcher.Fetch(ctx, locationID)
		}),
		inventory:  inventory,
		images:     images,
		locker:     locker,
		events:     events,
		archiver:   archiver,
		fsProvider: fsProvider,
	})
	if err != nil {
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func openRegistry(ctx context.Context, cfg config.StoreConfig) (repositories.Registry, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		return memory.New(), nil
	case config.StoreDriverPostgres, config.StoreDriverSQLite:
		store, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN, sqlstore.WithMaxOpenConns(cfg.MaxOpenConns))
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func buildLocker(o options, fsProvider *pfirestore.Provider) (runlock.Locker, error) {
	if o.locker != nil {
		return o.locker, nil
	}
	if fsProvider != nil {
		locker, err := runlock.NewFirestore(fsProvider, o.clock)
		if err != nil {
			return nil, fmt.Errorf("build firestore lock: %w", err)
		}
		return locker, nil
	}
	return runlock.NewMemory(o.clock), nil
}

func buildProviderClient(cfg config.CatalogConfig, o options) (*provider.Client, error) {
	token := o.token
	if token == nil {
		token = provider.StaticToken(cfg.AccessToken)
	}
	clientOpts := []provider.Option{
		provider.WithAPIVersion(cfg.APIVersion),
		provider.WithTokenSource(token),
		provider.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		provider.WithTimeout(cfg.Timeout),
		provider.WithMaxRetries(cfg.MaxRetries),
		provider.WithMeter(otel.GetMeterProvider().Meter(meterName + "/provider")),
	}
	if o.transport != nil {
		clientOpts = append(clientOpts, provider.WithTransport(o.transport))
	}
	client, err := provider.NewClient(cfg.BaseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("build provider client: %w", err)
	}
	return client, nil
}

func (c *Container) openPublisher(ctx context.Context, cfg config.EventsConfig) (services.SyncEventPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	publisher, err := jobs.NewPubSubSyncPublisher(client.Topic(cfg.SyncTopic))
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return nil
	})
	return publisher, nil
}

func (c *Container) openArchiver(ctx context.Context, cfg config.StorageConfig) (services.RunReportArchiver, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build storage client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	copier, err := storage.NewCopier(client)
	if err != nil {
		return nil, err
	}
	archiver, err := storage.NewReportArchiver(copier, cfg.ReportsBucket, storage.WithPrefix(cfg.ReportsPrefix))
	if err != nil {
		return nil, err
	}
	return archiver, nil
}

type serviceInputs struct {
	catalog    services.CatalogSource
	inventory  services.InventorySource
	images     services.ImageSource
	locker     runlock.Locker
	events     services.SyncEventPublisher
	archiver   services.RunReportArchiver
	fsProvider *pfirestore.Provider
}

func buildServices(cfg config.Config, o options, reg repositories.Registry, in serviceInputs) (Services, error) {
	newID := func() string { return ulid.Make().String() }

	productCatalog, err := services.NewProductCatalog(services.ProductCatalogDeps{
		Products: reg.Products(),
		Store:    cache.NewMemory[[]domain.Product](cache.WithClock[[]domain.Product](o.clock)),
		TTL:      cfg.Cache.ProductTTL,
		Clock:    o.clock,
		Logger:   observability.EventLogger(o.logger.Named("cache")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product catalog: %w", err)
	}

	syncLogger := observability.EventLogger(o.logger.Named("sync"))
	reconciler, err := services.NewProductReconciler(services.ProductReconcilerDeps{
		Products:    reg.Products(),
		Preorders:   reg.Preorders(),
		Strategies:  services.DefaultMatchStrategies(),
		Policy:      services.DefaultMergePolicy(),
		Clock:       o.clock,
		IDGenerator: newID,
		Logger:      syncLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product reconciler: %w", err)
	}

	hider, err := services.NewStaleVisibilityHider(services.StaleVisibilityHiderDeps{
		Products: reg.Products(),
		Clock:    o.clock,
		Logger:   syncLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stale visibility hider: %w", err)
	}

	coordinator, err := services.NewSyncCoordinator(services.SyncCoordinatorDeps{
		Catalog:          in.catalog,
		Inventory:        in.inventory,
		Images:           in.images,
		Reconciler:       reconciler,
		Hider:            hider,
		SyncState:        reg.SyncState(),
		Locker:           in.locker,
		Cache:            productCatalog,
		Events:           in.events,
		Archiver:         in.archiver,
		LocationID:       cfg.Catalog.LocationID,
		LocationFallback: cfg.Catalog.UnfilteredFallback,
		LockName:         cfg.Sync.LockName,
		LockTTL:          cfg.Sync.LockTTL,
		Meter:            otel.GetMeterProvider().Meter(meterName + "/sync"),
		Clock:            o.clock,
		IDGenerator:      newID,
		Logger:           syncLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build sync coordinator: %w", err)
	}

	admin, err := services.NewAdminProductService(services.AdminProductServiceDeps{
		Products: reg.Products(),
		Cache:    productCatalog,
		Clock:    o.clock,
		Logger:   observability.EventLogger(o.logger.Named("admin")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build admin product service: %w", err)
	}

	checks := []repositories.DependencyCheck{
		{Name: "store", Check: reg.Ping},
	}
	if in.fsProvider != nil {
		fsProvider := in.fsProvider
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Optional: true,
			Check: func(ctx context.Context) error {
				return fsProvider.Ping(ctx, runlock.LeaseCollection)
			},
		})
	}
	healthRepo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(o.clock))
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}

	build := o.build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		SyncState:        reg.SyncState(),
		SyncStaleAfter:   cfg.Sync.StaleAfter,
		Clock:            o.clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{
		Sync:     coordinator,
		Products: productCatalog,
		Admin:    admin,
		System:   system,
	}, nil
}
