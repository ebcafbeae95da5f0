package repositories

import (
	"errors"
	"fmt"
	"testing"
)

func TestProductErrorClassification(t *testing.T) {
	slug := NewProductError("products.insert", ProductErrorSlugTaken, errors.New("duplicate key"))
	if !slug.IsConflict() || slug.IsNotFound() {
		t.Fatalf("expected slug error to be a conflict only")
	}
	wrapped := fmt.Errorf("reconcile: %w", slug)
	if !HasProductErrorCode(wrapped, ProductErrorSlugTaken) {
		t.Fatalf("expected code to survive wrapping")
	}
	if HasProductErrorCode(wrapped, ProductErrorExternalIDTaken) {
		t.Fatalf("unexpected code match")
	}

	missing := NewProductError("products.get", ProductErrorNotFound, nil)
	if !IsNotFound(fmt.Errorf("lookup: %w", missing)) {
		t.Fatalf("expected IsNotFound through wrapping")
	}
	if missing.Error() != "products.get: product_not_found" {
		t.Fatalf("unexpected message %q", missing.Error())
	}
	if IsUnavailable(errors.New("plain")) {
		t.Fatalf("plain errors are not repository errors")
	}
}
