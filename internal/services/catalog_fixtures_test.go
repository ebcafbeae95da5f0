package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/iterator"

	domain "github.com/vinylyard/api/internal/domain"
)

var syncTestNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func sequenceIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

func recordItem(id, name string, cents int64) CatalogItem {
	return CatalogItem{
		ID:                    "ITEM-" + id,
		Name:                  name,
		Description:           "<p>Reissue on 180g vinyl</p><script>alert(1)</script>",
		PresentAtAllLocations: true,
		UpdatedAt:             time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC),
		Variations: []CatalogVariation{{
			ID:             "VAR-" + id,
			ItemID:         "ITEM-" + id,
			Name:           "Regular",
			Price:          &domain.Money{Amount: cents, Currency: "usd"},
			TrackInventory: true,
		}},
	}
}

type sliceIterator struct {
	items []CatalogItem
	err   error
	next  int
}

func (it *sliceIterator) Next() (CatalogItem, error) {
	if it.next < len(it.items) {
		item := it.items[it.next]
		it.next++
		return item, nil
	}
	if it.err != nil {
		return CatalogItem{}, it.err
	}
	return CatalogItem{}, iterator.Done
}

type stubInventory struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
	calls  int
	hook   func(call int)
	locs   []string
}

func (s *stubInventory) GetCounts(_ context.Context, locationID string, variationIDs []string) (map[string]int, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.locs = append(s.locs, locationID)
	s.mu.Unlock()
	if s.hook != nil {
		s.hook(call)
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]int)
	for _, id := range variationIDs {
		if qty, ok := s.counts[id]; ok {
			out[id] = qty
		}
	}
	return out, nil
}

type stubImages struct {
	images map[string]domain.ProductImage
	err    error
}

func (s *stubImages) ResolveImages(_ context.Context, ids []string) ([]domain.ProductImage, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.ProductImage, 0, len(ids))
	for _, id := range ids {
		if img, ok := s.images[id]; ok {
			out = append(out, img)
		}
	}
	return out, nil
}

type stubEvents struct {
	messages []SyncCompletedMessage
	err      error
}

func (s *stubEvents) PublishSyncCompleted(_ context.Context, msg SyncCompletedMessage) (string, error) {
	s.messages = append(s.messages, msg)
	return "msg-1", s.err
}

type stubArchiver struct {
	reports []SyncRunReport
	err     error
}

func (s *stubArchiver) ArchiveRunReport(_ context.Context, report SyncRunReport) (string, error) {
	s.reports = append(s.reports, report)
	return "sync-runs/" + report.RunID + ".json", s.err
}

type stubInvalidator struct {
	calls int
}

func (s *stubInvalidator) Invalidate(context.Context) { s.calls++ }
