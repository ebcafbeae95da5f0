package repositories

import (
	"context"
	"time"

	domain "github.com/vinylyard/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Products() ProductRepository
	Preorders() PreorderRepository
	SyncState() SyncStateRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists local products.
//
// Insert returns a *ProductError with ProductErrorSlugTaken or ProductErrorExternalIDTaken when a
// unique constraint rejects the row. HideMissing must run as a single statement.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByExternalVariationID(ctx context.Context, variationID string) (domain.Product, error)
	FindCatalogByTitle(ctx context.Context, title string, excludeVariationIDs []string) (domain.Product, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	ListVisible(ctx context.Context) ([]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	HideMissing(ctx context.Context, keepVariationIDs []string, now time.Time) (int, error)
}

// ProductListFilter narrows List results. Zero values match everything.
type ProductListFilter struct {
	Visible *bool
	Source  domain.ProductSource
	Limit   int
}

// PreorderRepository reads preorder scheduling maintained outside the sync engine.
type PreorderRepository interface {
	FindByExternalVariationID(ctx context.Context, variationID string) (domain.Preorder, error)
}

// SyncStateUpdate records the outcome of a run or chunk.
type SyncStateUpdate struct {
	RunID      string
	LocationID string
	SyncedAt   time.Time
	Processed  int
	ResetCount bool
	IsComplete bool
}

// SyncStateRepository stores the single last-sync row. Processed accumulates unless ResetCount is set.
type SyncStateRepository interface {
	Load(ctx context.Context) (domain.LastSyncInfo, error)
	Record(ctx context.Context, update SyncStateUpdate) (domain.LastSyncInfo, error)
}

// HealthRepository collects dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
