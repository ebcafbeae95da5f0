// Package memory implements the repositories in process. It enforces the same unique constraints as
// the SQL stores and backs the engine tests and the "memory" store driver.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/repositories"
)

// Store holds every table behind one mutex.
type Store struct {
	mu        sync.RWMutex
	products  map[string]domain.Product
	order     []string
	preorders map[string]domain.Preorder
	state     *domain.LastSyncInfo
	closed    bool
}

var _ repositories.Registry = (*Store)(nil)

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		preorders: make(map[string]domain.Preorder),
	}
}

func (s *Store) Products() repositories.ProductRepository   { return productRepo{s} }
func (s *Store) Preorders() repositories.PreorderRepository { return preorderRepo{s} }
func (s *Store) SyncState() repositories.SyncStateRepository {
	return syncStateRepo{s}
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("memory store: closed")
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// PutPreorder seeds a preorder row.
func (s *Store) PutPreorder(p domain.Preorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preorders[p.ExternalVariationID] = clonePreorder(p)
}

// All returns every product in insertion order, hidden ones included.
func (s *Store) All() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneProduct(s.products[id]))
	}
	return out
}

type productRepo struct{ s *Store }

func (r productRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.Product{}, repositories.NewProductError("products.get", repositories.ProductErrorNotFound, nil)
	}
	return cloneProduct(p), nil
}

func (r productRepo) FindByExternalVariationID(_ context.Context, variationID string) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	variationID = strings.TrimSpace(variationID)
	if variationID != "" {
		for _, id := range r.s.order {
			if p := r.s.products[id]; p.ExternalVariationID == variationID {
				return cloneProduct(p), nil
			}
		}
	}
	return domain.Product{}, repositories.NewProductError("products.by_variation", repositories.ProductErrorNotFound, nil)
}

func (r productRepo) FindCatalogByTitle(_ context.Context, title string, exclude []string) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	skip := toSet(exclude)
	for _, id := range r.s.order {
		p := r.s.products[id]
		if p.Title != title || p.Source != domain.ProductSourceCatalog {
			continue
		}
		if _, excluded := skip[p.ExternalVariationID]; excluded && p.ExternalVariationID != "" {
			continue
		}
		return cloneProduct(p), nil
	}
	return domain.Product{}, repositories.NewProductError("products.by_title", repositories.ProductErrorNotFound, nil)
}

func (r productRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.slugTakenLocked(slug, ""), nil
}

func (r productRepo) Insert(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.products[product.ID]; exists || product.ID == "" {
		return repositories.NewProductError("products.insert", repositories.ProductErrorUnknown, errors.New("duplicate or empty id"))
	}
	if err := r.s.checkUniqueLocked("products.insert", product); err != nil {
		return err
	}
	r.s.products[product.ID] = cloneProduct(product)
	r.s.order = append(r.s.order, product.ID)
	return nil
}

func (r productRepo) Update(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.products[product.ID]; !exists {
		return repositories.NewProductError("products.update", repositories.ProductErrorNotFound, nil)
	}
	if err := r.s.checkUniqueLocked("products.update", product); err != nil {
		return err
	}
	r.s.products[product.ID] = cloneProduct(product)
	return nil
}

func (r productRepo) ListVisible(ctx context.Context) ([]domain.Product, error) {
	visible := true
	return r.List(ctx, repositories.ProductListFilter{Visible: &visible})
}

func (r productRepo) List(_ context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.s.order))
	for _, id := range r.s.order {
		p := r.s.products[id]
		if filter.Visible != nil && p.IsVisible != *filter.Visible {
			continue
		}
		if filter.Source != "" && p.Source != filter.Source {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r productRepo) HideMissing(_ context.Context, keep []string, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	keepSet := toSet(keep)
	hidden := 0
	for id, p := range r.s.products {
		if p.ExternalVariationID == "" || !p.IsVisible {
			continue
		}
		if _, ok := keepSet[p.ExternalVariationID]; ok {
			continue
		}
		p.IsVisible = false
		p.UpdatedAt = now
		r.s.products[id] = p
		hidden++
	}
	return hidden, nil
}

func (s *Store) checkUniqueLocked(op string, product domain.Product) error {
	if s.slugTakenLocked(product.Slug, product.ID) {
		return repositories.NewProductError(op, repositories.ProductErrorSlugTaken, errors.New("slug "+product.Slug))
	}
	if product.ExternalVariationID != "" {
		for id, other := range s.products {
			if id != product.ID && other.ExternalVariationID == product.ExternalVariationID {
				return repositories.NewProductError(op, repositories.ProductErrorExternalIDTaken, errors.New("variation "+product.ExternalVariationID))
			}
		}
	}
	return nil
}

func (s *Store) slugTakenLocked(slug, exceptID string) bool {
	for id, p := range s.products {
		if id != exceptID && p.Slug == slug {
			return true
		}
	}
	return false
}

type preorderRepo struct{ s *Store }

func (r preorderRepo) FindByExternalVariationID(_ context.Context, variationID string) (domain.Preorder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.preorders[strings.TrimSpace(variationID)]
	if !ok {
		return domain.Preorder{}, repositories.NewProductError("preorders.get", repositories.ProductErrorNotFound, nil)
	}
	return clonePreorder(p), nil
}

type syncStateRepo struct{ s *Store }

func (r syncStateRepo) Load(context.Context) (domain.LastSyncInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.state == nil {
		return domain.LastSyncInfo{}, nil
	}
	return *r.s.state, nil
}

func (r syncStateRepo) Record(_ context.Context, update repositories.SyncStateUpdate) (domain.LastSyncInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := domain.LastSyncInfo{}
	if r.s.state != nil {
		next = *r.s.state
	}
	if update.ResetCount || r.s.state == nil {
		next.LastSyncCount = 0
	}
	next.LastSyncCount += update.Processed
	next.LastSync = update.SyncedAt
	next.LocationID = update.LocationID
	next.RunID = update.RunID
	next.IsComplete = update.IsComplete
	r.s.state = &next
	return next, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func cloneProduct(p domain.Product) domain.Product {
	p.Images = append([]domain.ProductImage(nil), p.Images...)
	p.PreorderReleaseDate = cloneTime(p.PreorderReleaseDate)
	p.LastSyncedAt = cloneTime(p.LastSyncedAt)
	p.ExternalUpdatedAt = cloneTime(p.ExternalUpdatedAt)
	return p
}

func clonePreorder(p domain.Preorder) domain.Preorder {
	p.ReleaseDate = cloneTime(p.ReleaseDate)
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
