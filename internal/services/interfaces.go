package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vinylyard/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	CatalogItem        = domain.CatalogItem
	CatalogVariation   = domain.CatalogVariation
	LastSyncInfo       = domain.LastSyncInfo
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogIterator yields catalog items and returns iterator.Done after the last one.
type CatalogIterator interface {
	Next() (CatalogItem, error)
}

// CatalogSource lists external catalog items, filtered to a location when one is given.
type CatalogSource interface {
	Fetch(ctx context.Context, locationID string) CatalogIterator
}

// CatalogSourceFunc adapts a function to CatalogSource.
type CatalogSourceFunc func(ctx context.Context, locationID string) CatalogIterator

func (f CatalogSourceFunc) Fetch(ctx context.Context, locationID string) CatalogIterator {
	return f(ctx, locationID)
}

// InventorySource returns IN_STOCK quantities keyed by variation id. Missing keys mean no record.
type InventorySource interface {
	GetCounts(ctx context.Context, locationID string, variationIDs []string) (map[string]int, error)
}

// ImageSource resolves catalog image ids to public URLs.
type ImageSource interface {
	ResolveImages(ctx context.Context, imageIDs []string) ([]domain.ProductImage, error)
}

// SyncEventPublisher announces finished runs to downstream consumers.
type SyncEventPublisher interface {
	PublishSyncCompleted(ctx context.Context, message SyncCompletedMessage) (string, error)
}

// RunReportArchiver keeps a durable copy of every run report.
type RunReportArchiver interface {
	ArchiveRunReport(ctx context.Context, report SyncRunReport) (string, error)
}

// ProductCacheStore holds the storefront snapshot. Implementations swap snapshots atomically.
type ProductCacheStore interface {
	Get(ctx context.Context) ([]Product, time.Time, bool)
	Put(ctx context.Context, products []Product, ttl time.Duration)
	Invalidate(ctx context.Context)
}

// CacheInvalidator drops cached storefront data after writes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// SyncCoordinator runs catalog pulls and reports on them.
type SyncCoordinator interface {
	Run(ctx context.Context, req SyncRequest) (SyncRunReport, error)
	LastSync(ctx context.Context) (LastSyncInfo, error)
}

// ProductCatalog serves the storefront product list through the read cache.
type ProductCatalog interface {
	Get(ctx context.Context) (ProductListing, error)
	Refresh(ctx context.Context) (ProductListing, error)
	Invalidate(ctx context.Context)
}

// AdminProductService applies staff edits to local products.
type AdminProductService interface {
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// SyncDirection selects what a run does. Only pulls from the catalog are supported.
type SyncDirection string

const (
	SyncDirectionPull        SyncDirection = "pull"
	SyncDirectionFromCatalog SyncDirection = "from_catalog"
)

// SyncRequest selects a slice of the catalog. ChunkSize <= 0 processes everything from StartIndex.
type SyncRequest struct {
	Direction  SyncDirection
	ChunkSize  int
	StartIndex int
}

// SyncRunReport describes one run or chunk.
type SyncRunReport struct {
	RunID          string
	Direction      SyncDirection
	LocationID     string
	ChunkSize      int
	StartIndex     int
	SyncedCount    int
	CreatedCount   int
	UpdatedCount   int
	SkippedCount   int
	ErrorCount     int
	TotalProcessed int
	TotalProducts  int
	IsComplete     bool
	NextChunk      *int
	Full           bool
	HiddenCount    int
	Message        string
	Log            []string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// SyncCompletedMessage is the event payload published after a successful run.
type SyncCompletedMessage struct {
	RunID        string    `json:"runId"`
	LocationID   string    `json:"locationId,omitempty"`
	SyncedCount  int       `json:"syncedCount"`
	SkippedCount int       `json:"skippedCount"`
	ErrorCount   int       `json:"errorCount"`
	HiddenCount  int       `json:"hiddenCount"`
	IsComplete   bool      `json:"isComplete"`
	Full         bool      `json:"full"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// ProductListing is the storefront product list and whether it came from the cache.
type ProductListing struct {
	Products  []Product
	FromCache bool
	CachedAt  time.Time
}

// UpdateProductCommand carries an admin edit. Nil fields are left unchanged.
type UpdateProductCommand struct {
	ProductID     string
	IsVisible     *bool
	Price         *decimal.Decimal
	Genre         *string
	Mood          *string
	MerchCategory *string
	Size          *string
	Color         *string
}
