package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/repositories/memory"
)

func newAdminFixture(t *testing.T) (*memory.Store, *stubInvalidator, AdminProductService) {
	t.Helper()
	store := memory.New()
	hidden := domain.Product{
		ID:                  "P1",
		ExternalVariationID: "VAR-1",
		Slug:                "talk-talk-spirit-of-eden",
		Source:              domain.ProductSourceCatalog,
		Title:               "Talk Talk - Spirit of Eden",
		Price:               decimal.RequireFromString("28.00"),
		IsVisible:           false,
	}
	if err := store.Products().Insert(context.Background(), hidden); err != nil {
		t.Fatalf("seed: %v", err)
	}
	invalidator := &stubInvalidator{}
	svc, err := NewAdminProductService(AdminProductServiceDeps{
		Products: store.Products(),
		Cache:    invalidator,
		Clock:    func() time.Time { return syncTestNow },
	})
	if err != nil {
		t.Fatalf("NewAdminProductService: %v", err)
	}
	return store, invalidator, svc
}

func TestAdminUpdateProductRestoresVisibility(t *testing.T) {
	store, invalidator, svc := newAdminFixture(t)
	visible := true
	price := decimal.RequireFromString("24.50")
	mood := "  melancholy "

	product, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{
		ProductID: "P1",
		IsVisible: &visible,
		Price:     &price,
		Mood:      &mood,
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if !product.IsVisible || !product.Price.Equal(price) || product.Mood != "melancholy" {
		t.Fatalf("unexpected product: %+v", product)
	}
	if !product.UpdatedAt.Equal(syncTestNow) {
		t.Fatalf("expected updatedAt to be stamped, got %s", product.UpdatedAt)
	}
	stored, _ := store.Products().FindByID(context.Background(), "P1")
	if !stored.IsVisible || stored.Slug != "talk-talk-spirit-of-eden" {
		t.Fatalf("update not persisted: %+v", stored)
	}
	if invalidator.calls != 1 {
		t.Fatalf("expected cache invalidation, got %d", invalidator.calls)
	}
}

func TestAdminUpdateProductValidation(t *testing.T) {
	_, invalidator, svc := newAdminFixture(t)
	negative := decimal.RequireFromString("-1")
	visible := true

	cases := []UpdateProductCommand{
		{IsVisible: &visible},
		{ProductID: "P1"},
		{ProductID: "P1", Price: &negative},
	}
	for _, cmd := range cases {
		if _, err := svc.UpdateProduct(context.Background(), cmd); !errors.Is(err, ErrProductInvalidInput) {
			t.Fatalf("UpdateProduct(%+v): expected ErrProductInvalidInput, got %v", cmd, err)
		}
	}
	if invalidator.calls != 0 {
		t.Fatalf("invalid edits must not invalidate the cache")
	}
}

func TestAdminUpdateProductNotFound(t *testing.T) {
	_, _, svc := newAdminFixture(t)
	visible := true
	if _, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: "missing", IsVisible: &visible}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
