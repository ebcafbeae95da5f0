package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 5 * time.Minute
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 60 * time.Second
	defaultSecurityEnvironment = "local"

	defaultCatalogBaseURL    = "https://connect.squareup.com"
	defaultCatalogAPIVersion = "2024-10-17"
	defaultCatalogPageSize   = 100
	defaultCatalogRPS        = 8
	defaultCatalogBurst      = 4
	defaultCatalogTimeout    = 20 * time.Second
	defaultCatalogRetries    = 4

	defaultStoreDriver       = StoreDriverPostgres
	defaultStoreMaxOpenConns = 10

	defaultLockBackend   = LockBackendMemory
	defaultLockName      = "catalog-sync"
	defaultLockTTL       = 10 * time.Minute
	defaultCacheTTL      = 5 * time.Minute
	defaultReportsPrefix = "sync-runs"

	defaultSyncTriggerPerMinute = 6
	defaultRefreshPerMinute     = 30
)

// Supported store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite3"
	StoreDriverMemory   = "memory"
)

// Supported run lock backends.
const (
	LockBackendMemory    = "memory"
	LockBackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Catalog    CatalogConfig
	Store      StoreConfig
	Sync       SyncConfig
	Cache      CacheConfig
	Firestore  FirestoreConfig
	Events     EventsConfig
	Storage    StorageConfig
	RateLimits RateLimitConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// RequestTimeout bounds handlers other than the sync trigger. Zero disables it.
	RequestTimeout time.Duration
}

// CatalogConfig describes the external catalog and inventory provider.
type CatalogConfig struct {
	BaseURL     string
	AccessToken string
	APIVersion  string
	// LocationID scopes inventory and presence checks. Empty means every location counts.
	LocationID         string
	PageSize           int
	RequestsPerSecond  float64
	Burst              int
	Timeout            time.Duration
	MaxRetries         int
	UnfilteredFallback bool
}

// StoreConfig selects the local product store.
type StoreConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// SyncConfig controls catalog run orchestration.
type SyncConfig struct {
	LockBackend      string
	LockName         string
	LockTTL          time.Duration
	DefaultChunkSize int
	// RunTimeout bounds a run triggered over HTTP. Zero leaves it unbounded.
	RunTimeout time.Duration
	// StaleAfter marks readiness degraded once the last sync is older than this. Zero disables it.
	StaleAfter time.Duration
}

// CacheConfig controls the storefront product cache.
type CacheConfig struct {
	ProductTTL time.Duration
}

// FirestoreConfig stores database parameters used by the distributed run lock.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// EventsConfig configures the Pub/Sub topic announcing finished runs.
type EventsConfig struct {
	ProjectID string
	SyncTopic string
}

// StorageConfig configures run report archival.
type StorageConfig struct {
	ReportsBucket string
	ReportsPrefix string
}

// RateLimitConfig throttles the expensive operator endpoints.
type RateLimitConfig struct {
	SyncPerMinute    int
	RefreshPerMinute int
}

// SecurityConfig names the deployment environment.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed secret identifiers that are safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Catalog.AccessToken") as mandatory secrets.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment after applying Load's precedence
// (dotenv < OS env < explicit map) so dependencies such as the secret fetcher can be built first.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Catalog: CatalogConfig{
			BaseURL:            strings.TrimRight(stringWithDefault(lookup, "API_CATALOG_BASE_URL", defaultCatalogBaseURL), "/"),
			AccessToken:        stringWithDefault(lookup, "API_CATALOG_ACCESS_TOKEN", ""),
			APIVersion:         stringWithDefault(lookup, "API_CATALOG_API_VERSION", defaultCatalogAPIVersion),
			LocationID:         strings.TrimSpace(stringWithDefault(lookup, "API_CATALOG_LOCATION_ID", "")),
			PageSize:           intWithDefault(lookup, "API_CATALOG_PAGE_SIZE", defaultCatalogPageSize),
			RequestsPerSecond:  floatWithDefault(lookup, "API_CATALOG_REQUESTS_PER_SECOND", defaultCatalogRPS),
			Burst:              intWithDefault(lookup, "API_CATALOG_BURST", defaultCatalogBurst),
			Timeout:            durationWithDefault(lookup, "API_CATALOG_TIMEOUT", defaultCatalogTimeout),
			MaxRetries:         intWithDefault(lookup, "API_CATALOG_MAX_RETRIES", defaultCatalogRetries),
			UnfilteredFallback: boolWithDefault(lookup, "API_CATALOG_UNFILTERED_FALLBACK", true),
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(stringWithDefault(lookup, "API_STORE_DRIVER", defaultStoreDriver)),
			DSN:          stringWithDefault(lookup, "API_STORE_DSN", ""),
			MaxOpenConns: intWithDefault(lookup, "API_STORE_MAX_OPEN_CONNS", defaultStoreMaxOpenConns),
		},
		Sync: SyncConfig{
			LockBackend:      strings.ToLower(stringWithDefault(lookup, "API_SYNC_LOCK_BACKEND", defaultLockBackend)),
			LockName:         stringWithDefault(lookup, "API_SYNC_LOCK_NAME", defaultLockName),
			LockTTL:          durationWithDefault(lookup, "API_SYNC_LOCK_TTL", defaultLockTTL),
			DefaultChunkSize: intWithDefault(lookup, "API_SYNC_DEFAULT_CHUNK_SIZE", 0),
			RunTimeout:       durationWithDefault(lookup, "API_SYNC_RUN_TIMEOUT", 0),
			StaleAfter:       durationWithDefault(lookup, "API_SYNC_STALE_AFTER", 0),
		},
		Cache: CacheConfig{
			ProductTTL: durationWithDefault(lookup, "API_CACHE_PRODUCT_TTL", defaultCacheTTL),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "API_EVENTS_PROJECT_ID", ""),
			SyncTopic: stringWithDefault(lookup, "API_EVENTS_SYNC_TOPIC", ""),
		},
		Storage: StorageConfig{
			ReportsBucket: stringWithDefault(lookup, "API_STORAGE_REPORTS_BUCKET", ""),
			ReportsPrefix: strings.Trim(stringWithDefault(lookup, "API_STORAGE_REPORTS_PREFIX", defaultReportsPrefix), "/"),
		},
		RateLimits: RateLimitConfig{
			SyncPerMinute:    intWithDefault(lookup, "API_RATELIMIT_SYNC_PER_MIN", defaultSyncTriggerPerMinute),
			RefreshPerMinute: intWithDefault(lookup, "API_RATELIMIT_REFRESH_PER_MIN", defaultRefreshPerMinute),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	// Events publish into the Firestore project unless told otherwise.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}

	resolver := options.secret
	if resolver == nil {
		resolver = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		})
	}
	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Catalog.AccessToken", &cfg.Catalog.AccessToken},
		{"Store.DSN", &cfg.Store.DSN},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, resolver)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Catalog.BaseURL == "" {
		invalid = append(invalid, "Catalog.BaseURL")
	}
	if cfg.Catalog.PageSize <= 0 || cfg.Catalog.PageSize > 1000 {
		invalid = append(invalid, "Catalog.PageSize")
	}
	if cfg.Catalog.RequestsPerSecond <= 0 {
		invalid = append(invalid, "Catalog.RequestsPerSecond")
	}
	if cfg.Catalog.MaxRetries < 0 {
		invalid = append(invalid, "Catalog.MaxRetries")
	}
	switch cfg.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite:
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			invalid = append(invalid, "Store.DSN")
		}
	case StoreDriverMemory:
	default:
		invalid = append(invalid, "Store.Driver")
	}
	switch cfg.Sync.LockBackend {
	case LockBackendMemory:
	case LockBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	default:
		invalid = append(invalid, "Sync.LockBackend")
	}
	if cfg.Sync.LockTTL <= 0 {
		invalid = append(invalid, "Sync.LockTTL")
	}
	if cfg.Sync.DefaultChunkSize < 0 {
		invalid = append(invalid, "Sync.DefaultChunkSize")
	}
	if cfg.Sync.StaleAfter < 0 {
		invalid = append(invalid, "Sync.StaleAfter")
	}
	if cfg.Cache.ProductTTL <= 0 {
		invalid = append(invalid, "Cache.ProductTTL")
	}
	if cfg.Events.SyncTopic != "" && cfg.Events.ProjectID == "" {
		invalid = append(invalid, "Events.ProjectID")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{})
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
