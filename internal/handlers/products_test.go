package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/services"
)

type stubProductCatalog struct {
	getFunc         func(ctx context.Context) (services.ProductListing, error)
	refreshFunc     func(ctx context.Context) (services.ProductListing, error)
	invalidateCalls int
}

func (s *stubProductCatalog) Get(ctx context.Context) (services.ProductListing, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx)
	}
	return services.ProductListing{}, nil
}

func (s *stubProductCatalog) Refresh(ctx context.Context) (services.ProductListing, error) {
	if s.refreshFunc != nil {
		return s.refreshFunc(ctx)
	}
	return services.ProductListing{}, nil
}

func (s *stubProductCatalog) Invalidate(context.Context) {
	s.invalidateCalls++
}

func sampleProduct(now time.Time) services.Product {
	release := now.Add(30 * 24 * time.Hour)
	return services.Product{
		ID:                  "01JPROD",
		ExternalVariationID: "VAR-1",
		Slug:                "miles-davis-kind-of-blue",
		Source:              domain.ProductSourceCatalog,
		Title:               "Miles Davis - Kind of Blue",
		Artist:              "Miles Davis",
		Price:               decimal.RequireFromString("25.99"),
		Currency:            "USD",
		Images:              []domain.ProductImage{{ImageID: "IMG1", URL: "https://cdn.example/img1.jpg"}},
		ProductType:         domain.ProductTypeRecord,
		Genre:               "jazz",
		IsVisible:           true,
		StockQuantity:       2,
		StockStatus:         domain.StockStatusLowStock,
		AvailableAtLocation: true,
		IsPreorder:          true,
		PreorderReleaseDate: &release,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestProductHandlersList(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	catalog := &stubProductCatalog{
		getFunc: func(context.Context) (services.ProductListing, error) {
			return services.ProductListing{Products: []services.Product{sampleProduct(now)}, FromCache: true, CachedAt: now}, nil
		},
	}
	router := NewRouter(WithProductRoutes(NewProductHandlers(catalog).Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Products  []map[string]any `json:"products"`
		FromCache bool             `json:"fromCache"`
		CachedAt  string           `json:"cachedAt"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.FromCache || body.CachedAt != "2025-03-01T09:30:00Z" {
		t.Fatalf("expected cached listing, got fromCache=%v cachedAt=%s", body.FromCache, body.CachedAt)
	}
	if len(body.Products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(body.Products))
	}
	product := body.Products[0]
	if product["price"] != "25.99" {
		t.Fatalf("expected decimal price string, got %v", product["price"])
	}
	if product["stockStatus"] != "low_stock" || product["productType"] != "record" || product["slug"] != "miles-davis-kind-of-blue" {
		t.Fatalf("unexpected product payload %v", product)
	}
	if product["preorderReleaseDate"] != "2025-03-31T09:30:00Z" {
		t.Fatalf("expected preorder release date, got %v", product["preorderReleaseDate"])
	}
}

func TestProductHandlersListEmptyIsArray(t *testing.T) {
	router := NewRouter(WithProductRoutes(NewProductHandlers(&stubProductCatalog{}).Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	body := decodeBody(t, rr)
	if products, ok := body["products"].([]any); !ok || len(products) != 0 {
		t.Fatalf("expected empty products array, got %v", body["products"])
	}
	if _, ok := body["cachedAt"]; ok {
		t.Fatalf("expected no cachedAt for a fresh listing")
	}
}

func TestProductHandlersListStoreUnavailable(t *testing.T) {
	catalog := &stubProductCatalog{
		getFunc: func(context.Context) (services.ProductListing, error) {
			return services.ProductListing{}, errors.Join(services.ErrStoreUnavailable, errors.New("dial tcp"))
		},
	}
	router := NewRouter(WithProductRoutes(NewProductHandlers(catalog).Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "store_unavailable" {
		t.Fatalf("expected store_unavailable, got %v", body["error"])
	}
}

func TestProductHandlersRefresh(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	refreshed := 0
	catalog := &stubProductCatalog{
		refreshFunc: func(context.Context) (services.ProductListing, error) {
			refreshed++
			return services.ProductListing{Products: []services.Product{sampleProduct(now)}}, nil
		},
	}
	router := NewRouter(WithProductRoutes(NewProductHandlers(catalog, WithRefreshRateLimit(1, func() time.Time { return now })).Routes))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/refresh", nil)
		req.RemoteAddr = "198.51.100.4:1234"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", first.Code)
	}
	if body := decodeBody(t, first); body["fromCache"] != false {
		t.Fatalf("expected fresh listing, got %v", body["fromCache"])
	}

	second := send()
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if refreshed != 1 {
		t.Fatalf("expected one refresh, got %d", refreshed)
	}
}
