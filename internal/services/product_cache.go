package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vinylyard/api/internal/repositories"
)

const (
	defaultProductCacheTTL = 5 * time.Minute
	productCacheKey        = "visible-products"
)

// ProductCatalogDeps bundles the collaborators required to construct the storefront product cache.
type ProductCatalogDeps struct {
	Products repositories.ProductRepository
	Store    ProductCacheStore
	TTL      time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type productCatalog struct {
	products repositories.ProductRepository
	store    ProductCacheStore
	ttl      time.Duration
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)

	group singleflight.Group
	// mu guards generation and orders store writes against invalidation. generation advances on
	// every invalidation; a recompute started under an older generation is returned to its callers
	// but never stored.
	mu         sync.Mutex
	generation uint64
}

var _ ProductCatalog = (*productCatalog)(nil)

type productSnapshot struct {
	products []Product
	at       time.Time
}

// NewProductCatalog wires the read cache in front of the product repository.
func NewProductCatalog(deps ProductCatalogDeps) (ProductCatalog, error) {
	if deps.Products == nil {
		return nil, errors.New("product catalog: product repository is required")
	}
	if deps.Store == nil {
		return nil, errors.New("product catalog: cache store is required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultProductCacheTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &productCatalog{
		products: deps.Products,
		store:    deps.Store,
		ttl:      ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (c *productCatalog) Get(ctx context.Context) (ProductListing, error) {
	if products, cachedAt, ok := c.store.Get(ctx); ok {
		return ProductListing{Products: products, FromCache: true, CachedAt: cachedAt}, nil
	}

	result, err, shared := c.group.Do(productCacheKey, func() (any, error) {
		generation := c.currentGeneration()
		products, err := c.products.ListVisible(ctx)
		if err != nil {
			return nil, err
		}
		if products == nil {
			products = []Product{}
		}
		at := c.clock()
		if !c.storeIfCurrent(ctx, generation, products) {
			c.logger(ctx, "products.cache.stale_recompute", map[string]any{"count": len(products)})
		}
		return productSnapshot{products: products, at: at}, nil
	})
	if err != nil {
		if repositories.IsUnavailable(err) {
			return ProductListing{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return ProductListing{}, fmt.Errorf("products: list visible: %w", err)
	}
	snapshot := result.(productSnapshot)
	c.logger(ctx, "products.cache.recomputed", map[string]any{
		"count":  len(snapshot.products),
		"shared": shared,
	})
	return ProductListing{Products: snapshot.products, FromCache: false, CachedAt: snapshot.at}, nil
}

func (c *productCatalog) Refresh(ctx context.Context) (ProductListing, error) {
	c.Invalidate(ctx)
	return c.Get(ctx)
}

func (c *productCatalog) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	c.store.Invalidate(ctx)
	c.mu.Unlock()
	c.group.Forget(productCacheKey)
}

func (c *productCatalog) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// storeIfCurrent caches products unless an invalidation happened after generation was read.
func (c *productCatalog) storeIfCurrent(ctx context.Context, generation uint64, products []Product) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.store.Put(ctx, products, c.ttl)
	return true
}
