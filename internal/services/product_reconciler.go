package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/platform/textutil"
	"github.com/vinylyard/api/internal/repositories"
)

const defaultMaxSlugAttempts = 20

// ReconcileInput is one catalog item together with the lookups done for it this run.
type ReconcileInput struct {
	Item                CatalogItem
	Variation           CatalogVariation
	Stock               StockLevel
	AvailableAtLocation bool
	Images              []domain.ProductImage
	ImagesResolved      bool
	RunStartedAt        time.Time
	// LiveVariationIDs are the primary variation ids of every item in the run's catalog snapshot.
	LiveVariationIDs []string
}

// ProductReconcilerDeps bundles the collaborators required to construct a reconciler.
type ProductReconcilerDeps struct {
	Products        repositories.ProductRepository
	Preorders       repositories.PreorderRepository
	Strategies      []MatchStrategy
	Policy          MergePolicy
	MaxSlugAttempts int
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// ProductReconciler merges catalog items into local products.
type ProductReconciler struct {
	products     repositories.ProductRepository
	preorders    repositories.PreorderRepository
	strategies   []MatchStrategy
	policy       MergePolicy
	slugAttempts int
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewProductReconciler wires dependencies into a reconciler.
func NewProductReconciler(deps ProductReconcilerDeps) (*ProductReconciler, error) {
	if deps.Products == nil {
		return nil, errors.New("product reconciler: product repository is required")
	}

	strategies := deps.Strategies
	if len(strategies) == 0 {
		strategies = DefaultMatchStrategies()
	}
	policy := deps.Policy
	if len(policy) == 0 {
		policy = DefaultMergePolicy()
	}
	attempts := deps.MaxSlugAttempts
	if attempts <= 0 {
		attempts = defaultMaxSlugAttempts
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &ProductReconciler{
		products:     deps.Products,
		preorders:    deps.Preorders,
		strategies:   strategies,
		policy:       policy,
		slugAttempts: attempts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Reconcile creates or updates the product for one item. Failures are reported in the outcome.
func (r *ProductReconciler) Reconcile(ctx context.Context, in ReconcileInput) ItemOutcome {
	if len(in.Item.Variations) == 0 {
		return skipped(SkipNoVariations, "")
	}
	variationID := strings.TrimSpace(in.Variation.ID)
	if variationID == "" {
		return skipped(SkipNoVariations, "")
	}

	productType := detectProductType(in.Item)
	if productType != domain.ProductTypeVoucher && in.Variation.Price == nil {
		return skipped(SkipMissingPrice, variationID)
	}

	incoming := buildIncomingProduct(in, productType)

	existing, strategy, found, err := matchProduct(ctx, r.strategies, r.products, in)
	if err != nil {
		return failed(fmt.Errorf("match %s: %w", strategy, err), variationID)
	}

	preorder, err := r.lookupPreorder(ctx, variationID)
	if err != nil {
		return failed(fmt.Errorf("preorder lookup: %w", err), variationID)
	}

	now := r.clock()
	if now.Before(in.RunStartedAt) {
		now = in.RunStartedAt.UTC()
	}

	if found {
		merged := r.policy.Apply(existing, incoming, in.ImagesResolved)
		applyPreorder(&merged, preorder)
		merged.UpdatedAt = now
		merged.LastSyncedAt = &now
		if err := r.products.Update(ctx, merged); err != nil {
			return failed(fmt.Errorf("update product %s: %w", merged.ID, err), variationID)
		}
		if strategy != MatchByExternalVariationID.Name {
			r.logger(ctx, "catalog.reconcile.adopted", map[string]any{
				"productId":   merged.ID,
				"variationId": variationID,
				"strategy":    strategy,
			})
		}
		return updated(merged.ID, variationID)
	}

	product := incoming
	product.ID = r.newID()
	product.Source = domain.ProductSourceCatalog
	product.IsVisible = true
	product.CreatedAt = now
	product.UpdatedAt = now
	product.LastSyncedAt = &now
	applyPreorder(&product, preorder)

	return r.insertWithSlug(ctx, product)
}

func (r *ProductReconciler) insertWithSlug(ctx context.Context, product domain.Product) ItemOutcome {
	base := textutil.Slugify(slugBase(product.Artist, product.Title))
	for attempt := 1; attempt <= r.slugAttempts; attempt++ {
		candidate := textutil.SlugCandidate(base, attempt)
		taken, err := r.products.SlugExists(ctx, candidate)
		if err != nil {
			return failed(fmt.Errorf("slug lookup: %w", err), product.ExternalVariationID)
		}
		if taken {
			continue
		}
		product.Slug = candidate
		err = r.products.Insert(ctx, product)
		if err == nil {
			return created(product.ID, product.ExternalVariationID)
		}
		if repositories.HasProductErrorCode(err, repositories.ProductErrorSlugTaken) {
			continue
		}
		return failed(fmt.Errorf("insert product: %w", err), product.ExternalVariationID)
	}
	r.logger(ctx, "catalog.reconcile.slug_exhausted", map[string]any{
		"level":       "warn",
		"variationId": product.ExternalVariationID,
		"slugBase":    base,
		"attempts":    r.slugAttempts,
	})
	return skipped(SkipSlugExhausted, product.ExternalVariationID)
}

func (r *ProductReconciler) lookupPreorder(ctx context.Context, variationID string) (*domain.Preorder, error) {
	if r.preorders == nil {
		return nil, nil
	}
	preorder, err := r.preorders.FindByExternalVariationID(ctx, variationID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &preorder, nil
}

func buildIncomingProduct(in ReconcileInput, productType domain.ProductType) domain.Product {
	item := in.Item
	title := strings.TrimSpace(item.Name)
	product := domain.Product{
		ExternalVariationID: strings.TrimSpace(in.Variation.ID),
		Title:               title,
		Artist:              parseArtist(title, productType),
		Description:         textutil.SanitizeHTML(item.Description),
		ProductType:         productType,
		Genre:               item.Attribute(domain.AttributeGenre),
		Mood:                item.Attribute(domain.AttributeMood),
		MerchCategory:       item.Attribute(domain.AttributeMerchCategory),
		Size:                item.Attribute(domain.AttributeSize),
		Color:               item.Attribute(domain.AttributeColor),
		StockQuantity:       in.Stock.Quantity,
		StockStatus:         in.Stock.Status,
		AvailableAtLocation: in.AvailableAtLocation,
		Images:              append([]domain.ProductImage(nil), in.Images...),
	}
	if price := in.Variation.Price; price != nil {
		product.Price = price.Decimal()
		product.Currency = strings.ToUpper(price.Currency)
	}
	if !item.UpdatedAt.IsZero() {
		updatedAt := item.UpdatedAt.UTC()
		product.ExternalUpdatedAt = &updatedAt
	}
	return product
}
