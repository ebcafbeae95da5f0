package services

import (
	"context"
	"strings"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/repositories"
)

// MatchStrategy finds the local product an incoming variation belongs to. Find returns a not-found
// repository error on a miss.
type MatchStrategy struct {
	Name string
	Find func(ctx context.Context, products repositories.ProductRepository, in ReconcileInput) (Product, error)
}

// MatchByExternalVariationID matches on the stored catalog variation id.
var MatchByExternalVariationID = MatchStrategy{
	Name: "external-variation-id",
	Find: func(ctx context.Context, products repositories.ProductRepository, in ReconcileInput) (Product, error) {
		return products.FindByExternalVariationID(ctx, in.Variation.ID)
	},
}

// MatchByCatalogTitle adopts a catalog product with the same title. Products linked to another
// variation of the same item, or to any variation still listed in the run's catalog snapshot, are
// left alone so that distinct items sharing a title never collapse into one product.
var MatchByCatalogTitle = MatchStrategy{
	Name: "catalog-title",
	Find: func(ctx context.Context, products repositories.ProductRepository, in ReconcileInput) (Product, error) {
		title := strings.TrimSpace(in.Item.Name)
		if title == "" {
			return domain.Product{}, repositories.NewProductError("products.by_title", repositories.ProductErrorNotFound, nil)
		}
		return products.FindCatalogByTitle(ctx, title, titleMatchExclusions(in))
	},
}

// titleMatchExclusions lists the variation ids a title match must not adopt.
func titleMatchExclusions(in ReconcileInput) []string {
	own := strings.TrimSpace(in.Variation.ID)
	exclude := make([]string, 0, len(in.Item.Variations)+len(in.LiveVariationIDs))
	exclude = append(exclude, in.Item.VariationIDs()...)
	for _, id := range in.LiveVariationIDs {
		if id != own {
			exclude = append(exclude, id)
		}
	}
	return exclude
}

// DefaultMatchStrategies is the lookup order used by the reconciler.
func DefaultMatchStrategies() []MatchStrategy {
	return []MatchStrategy{MatchByExternalVariationID, MatchByCatalogTitle}
}

// matchProduct walks the strategies in order. A strategy error other than not-found stops the walk.
func matchProduct(ctx context.Context, strategies []MatchStrategy, products repositories.ProductRepository, in ReconcileInput) (Product, string, bool, error) {
	for _, strategy := range strategies {
		if strategy.Find == nil {
			continue
		}
		product, err := strategy.Find(ctx, products, in)
		if err == nil {
			return product, strategy.Name, true, nil
		}
		if !repositories.IsNotFound(err) {
			return Product{}, strategy.Name, false, err
		}
	}
	return Product{}, "", false, nil
}
