package services

import (
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/vinylyard/api/internal/domain"
)

func TestMergePolicyRules(t *testing.T) {
	policy := DefaultMergePolicy()
	expect := map[string]MergeRule{
		"title":               AlwaysOverwrite,
		"images":              AlwaysOverwrite,
		"stockStatus":         AlwaysOverwrite,
		"genre":               PreserveIfNonEmpty,
		"color":               PreserveIfNonEmpty,
		"isVisible":           NeverTouch,
		"slug":                NeverTouch,
		"externalVariationId": AlwaysOverwrite,
	}
	for field, want := range expect {
		got, ok := policy.Rule(field)
		if !ok {
			t.Fatalf("field %s missing from policy", field)
		}
		if got != want {
			t.Fatalf("field %s: expected %s, got %s", field, want, got)
		}
	}
}

func TestMergePolicyApply(t *testing.T) {
	existing := domain.Product{
		ID:          "P1",
		Slug:        "miles-davis-kind-of-blue",
		Source:      domain.ProductSourceCatalog,
		Title:       "Old Title",
		Price:       decimal.RequireFromString("20.00"),
		Images:      []domain.ProductImage{{ImageID: "IMG-OLD", URL: "https://cdn/old.jpg"}},
		Genre:       "bebop",
		Mood:        "",
		IsVisible:   false,
		StockStatus: domain.StockStatusInStock,
	}
	incoming := domain.Product{
		Title:       "Miles Davis - Kind of Blue",
		Price:       decimal.RequireFromString("25.00"),
		Images:      []domain.ProductImage{{ImageID: "IMG-NEW", URL: "https://cdn/new.jpg"}},
		Genre:       "jazz",
		Mood:        "late night",
		IsVisible:   true,
		Slug:        "should-not-apply",
		StockStatus: domain.StockStatusLowStock,
	}

	merged := DefaultMergePolicy().Apply(existing, incoming, true)
	if merged.Title != incoming.Title || !merged.Price.Equal(incoming.Price) {
		t.Fatalf("catalog fields not overwritten: %+v", merged)
	}
	if merged.Genre != "bebop" {
		t.Fatalf("curated genre overwritten: %q", merged.Genre)
	}
	if merged.Mood != "late night" {
		t.Fatalf("empty curated mood should be filled, got %q", merged.Mood)
	}
	if merged.IsVisible || merged.Slug != existing.Slug || merged.ID != "P1" {
		t.Fatalf("never-touch fields changed: %+v", merged)
	}
	if merged.StockStatus != domain.StockStatusLowStock {
		t.Fatalf("stock status not refreshed: %s", merged.StockStatus)
	}
	if len(merged.Images) != 1 || merged.Images[0].ImageID != "IMG-NEW" {
		t.Fatalf("images not replaced: %+v", merged.Images)
	}

	kept := DefaultMergePolicy().Apply(existing, incoming, false)
	if len(kept.Images) != 1 || kept.Images[0].ImageID != "IMG-OLD" {
		t.Fatalf("images should be kept when unresolved: %+v", kept.Images)
	}
}

func TestMergePolicyNeverClearsCuratedField(t *testing.T) {
	existing := domain.Product{Genre: "soul", Size: "12in"}
	merged := DefaultMergePolicy().Apply(existing, domain.Product{}, true)
	if merged.Genre != "soul" || merged.Size != "12in" {
		t.Fatalf("empty incoming values cleared curated fields: %+v", merged)
	}
}
