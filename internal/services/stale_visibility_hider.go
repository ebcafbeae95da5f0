package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinylyard/api/internal/repositories"
)

// StaleVisibilityHiderDeps bundles the collaborators required to construct a hider.
type StaleVisibilityHiderDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// StaleVisibilityHider hides catalog products that a full run did not see. It never deletes.
type StaleVisibilityHider struct {
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewStaleVisibilityHider wires dependencies into a hider.
func NewStaleVisibilityHider(deps StaleVisibilityHiderDeps) (*StaleVisibilityHider, error) {
	if deps.Products == nil {
		return nil, errors.New("stale visibility hider: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StaleVisibilityHider{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Hide sets isVisible=false on every visible linked product whose variation id is not in seen.
// An empty set would hide the whole catalog, so it is refused.
func (h *StaleVisibilityHider) Hide(ctx context.Context, seen []string) (int, error) {
	keep := make([]string, 0, len(seen))
	dedup := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := dedup[id]; ok {
			continue
		}
		dedup[id] = struct{}{}
		keep = append(keep, id)
	}
	if len(keep) == 0 {
		h.logger(ctx, "catalog.hide.skipped", map[string]any{"level": "warn", "reason": "empty synced set"})
		return 0, nil
	}

	hidden, err := h.products.HideMissing(ctx, keep, h.clock())
	if err != nil {
		return 0, fmt.Errorf("hide stale products: %w", err)
	}
	h.logger(ctx, "catalog.hide.completed", map[string]any{
		"kept":   len(keep),
		"hidden": hidden,
	})
	return hidden, nil
}
