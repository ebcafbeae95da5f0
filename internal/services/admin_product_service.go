package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinylyard/api/internal/repositories"
)

// AdminProductServiceDeps bundles the collaborators required to construct the admin product service.
type AdminProductServiceDeps struct {
	Products repositories.ProductRepository
	Cache    CacheInvalidator
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type adminProductService struct {
	products repositories.ProductRepository
	cache    CacheInvalidator
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ AdminProductService = (*adminProductService)(nil)

// NewAdminProductService wires dependencies into an AdminProductService.
func NewAdminProductService(deps AdminProductServiceDeps) (AdminProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("admin product service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &adminProductService{
		products: deps.Products,
		cache:    deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// UpdateProduct applies the non-nil fields of cmd. Setting IsVisible is the only way a hidden product
// comes back.
func (s *adminProductService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	if cmd.Price != nil && cmd.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrProductInvalidInput)
	}
	if !cmd.hasChanges() {
		return Product{}, fmt.Errorf("%w: no fields to update", ErrProductInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	changed := make([]string, 0, 7)
	if cmd.IsVisible != nil {
		product.IsVisible = *cmd.IsVisible
		changed = append(changed, "isVisible")
	}
	if cmd.Price != nil {
		product.Price = *cmd.Price
		changed = append(changed, "price")
	}
	setText := func(name string, value *string, dst *string) {
		if value == nil {
			return
		}
		*dst = strings.TrimSpace(*value)
		changed = append(changed, name)
	}
	setText("genre", cmd.Genre, &product.Genre)
	setText("mood", cmd.Mood, &product.Mood)
	setText("merchCategory", cmd.MerchCategory, &product.MerchCategory)
	setText("size", cmd.Size, &product.Size)
	setText("color", cmd.Color, &product.Color)

	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	s.logger(ctx, "admin.product.updated", map[string]any{
		"productId": product.ID,
		"fields":    changed,
	})
	return product, nil
}

func (cmd UpdateProductCommand) hasChanges() bool {
	return cmd.IsVisible != nil || cmd.Price != nil || cmd.Genre != nil || cmd.Mood != nil ||
		cmd.MerchCategory != nil || cmd.Size != nil || cmd.Color != nil
}

func (s *adminProductService) mapRepositoryError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrProductNotFound, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}
