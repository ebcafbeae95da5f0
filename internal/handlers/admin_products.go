package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vinylyard/api/internal/platform/httpx"
	"github.com/vinylyard/api/internal/repositories"
	"github.com/vinylyard/api/internal/services"
)

const maxAdminProductRequestBody = 16 * 1024

// AdminProductHandlers exposes staff edits of local products.
type AdminProductHandlers struct {
	products services.AdminProductService
}

// NewAdminProductHandlers constructs a new AdminProductHandlers instance.
func NewAdminProductHandlers(products services.AdminProductService) *AdminProductHandlers {
	return &AdminProductHandlers{products: products}
}

// Routes registers the /admin/products endpoints.
func (h *AdminProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Patch("/products/{productId}", h.updateProduct)
}

type adminProductUpdateRequest struct {
	IsVisible     *bool            `json:"isVisible"`
	Price         *decimal.Decimal `json:"price"`
	Genre         *string          `json:"genre"`
	Mood          *string          `json:"mood"`
	MerchCategory *string          `json:"merchCategory"`
	Size          *string          `json:"size"`
	Color         *string          `json:"color"`
}

type adminProductResponse struct {
	Product productPayload `json:"product"`
}

func (h *AdminProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminProductRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req adminProductUpdateRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	product, err := h.products.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:     productID,
		IsVisible:     req.IsVisible,
		Price:         req.Price,
		Genre:         req.Genre,
		Mood:          req.Mood,
		MerchCategory: req.MerchCategory,
		Size:          req.Size,
		Color:         req.Color,
	})
	if err != nil {
		writeAdminProductError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, adminProductResponse{Product: buildProductPayload(product)})
}

func writeAdminProductError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStoreUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "product store unavailable", http.StatusServiceUnavailable))
	case repositories.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", "product conflicts with an existing record", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("product_update_failed", "failed to update product", http.StatusInternalServerError))
	}
}
