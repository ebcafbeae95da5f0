package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vinylyard/api/internal/platform/httpx"
	"github.com/vinylyard/api/internal/services"
)

// ProductHandlers serves the storefront product list from the read cache.
type ProductHandlers struct {
	catalog services.ProductCatalog
	limiter rateLimiter
}

// ProductHandlerOption customises ProductHandlers.
type ProductHandlerOption func(*ProductHandlers)

// WithRefreshRateLimit caps POST /products/refresh per client per minute.
func WithRefreshRateLimit(perMinute int, clock func() time.Time) ProductHandlerOption {
	return func(h *ProductHandlers) {
		h.limiter = newClientRateLimiter(perMinute, time.Minute, clock)
	}
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(catalog services.ProductCatalog, opts ...ProductHandlerOption) *ProductHandlers {
	h := &ProductHandlers{catalog: catalog}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Post("/refresh", h.refreshProducts)
}

type productListResponse struct {
	Products  []productPayload `json:"products"`
	FromCache bool             `json:"fromCache"`
	CachedAt  string           `json:"cachedAt,omitempty"`
}

type productImagePayload struct {
	ImageID string `json:"imageId,omitempty"`
	URL     string `json:"url"`
}

type productPayload struct {
	ID                  string                `json:"id"`
	Slug                string                `json:"slug"`
	Title               string                `json:"title"`
	Artist              string                `json:"artist,omitempty"`
	Price               decimal.Decimal       `json:"price"`
	Currency            string                `json:"currency"`
	Description         string                `json:"description,omitempty"`
	Images              []productImagePayload `json:"images"`
	ProductType         string                `json:"productType"`
	Genre               string                `json:"genre,omitempty"`
	Mood                string                `json:"mood,omitempty"`
	MerchCategory       string                `json:"merchCategory,omitempty"`
	Size                string                `json:"size,omitempty"`
	Color               string                `json:"color,omitempty"`
	IsVisible           bool                  `json:"isVisible"`
	StockQuantity       int                   `json:"stockQuantity"`
	StockStatus         string                `json:"stockStatus"`
	AvailableAtLocation bool                  `json:"availableAtLocation"`
	IsPreorder          bool                  `json:"isPreorder"`
	PreorderReleaseDate *string               `json:"preorderReleaseDate,omitempty"`
	PreorderQuantity    int                   `json:"preorderQuantity,omitempty"`
	PreorderMaxQuantity int                   `json:"preorderMaxQuantity,omitempty"`
	ExternalVariationID string                `json:"externalVariationId,omitempty"`
	Source              string                `json:"source"`
	CreatedAt           string                `json:"createdAt"`
	UpdatedAt           string                `json:"updatedAt"`
	LastSyncedAt        *string               `json:"lastSyncedAt,omitempty"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service unavailable", http.StatusServiceUnavailable))
		return
	}
	listing, err := h.catalog.Get(ctx)
	if err != nil {
		writeProductListError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildProductListResponse(listing))
}

func (h *ProductHandlers) refreshProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many refresh requests", http.StatusTooManyRequests))
		return
	}
	listing, err := h.catalog.Refresh(ctx)
	if err != nil {
		writeProductListError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildProductListResponse(listing))
}

func writeProductListError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrStoreUnavailable) {
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "product store unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("product_list_failed", "failed to list products", http.StatusInternalServerError))
}

func buildProductListResponse(listing services.ProductListing) productListResponse {
	products := make([]productPayload, 0, len(listing.Products))
	for _, product := range listing.Products {
		products = append(products, buildProductPayload(product))
	}
	resp := productListResponse{
		Products:  products,
		FromCache: listing.FromCache,
	}
	if listing.FromCache {
		resp.CachedAt = formatTime(listing.CachedAt)
	}
	return resp
}

func buildProductPayload(product services.Product) productPayload {
	images := make([]productImagePayload, 0, len(product.Images))
	for _, image := range product.Images {
		images = append(images, productImagePayload{ImageID: image.ImageID, URL: image.URL})
	}
	return productPayload{
		ID:                  product.ID,
		Slug:                product.Slug,
		Title:               product.Title,
		Artist:              product.Artist,
		Price:               product.Price,
		Currency:            product.Currency,
		Description:         product.Description,
		Images:              images,
		ProductType:         string(product.ProductType),
		Genre:               product.Genre,
		Mood:                product.Mood,
		MerchCategory:       product.MerchCategory,
		Size:                product.Size,
		Color:               product.Color,
		IsVisible:           product.IsVisible,
		StockQuantity:       product.StockQuantity,
		StockStatus:         string(product.StockStatus),
		AvailableAtLocation: product.AvailableAtLocation,
		IsPreorder:          product.IsPreorder,
		PreorderReleaseDate: formatTimePointer(product.PreorderReleaseDate),
		PreorderQuantity:    product.PreorderQuantity,
		PreorderMaxQuantity: product.PreorderMaxQuantity,
		ExternalVariationID: product.ExternalVariationID,
		Source:              string(product.Source),
		CreatedAt:           formatTime(product.CreatedAt),
		UpdatedAt:           formatTime(product.UpdatedAt),
		LastSyncedAt:        formatTimePointer(product.LastSyncedAt),
	}
}
