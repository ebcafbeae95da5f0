package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/platform/observability"
	"github.com/vinylyard/api/internal/platform/runlock"
	"github.com/vinylyard/api/internal/repositories"
	"github.com/vinylyard/api/internal/repositories/memory"
)

type syncHarness struct {
	store       *memory.Store
	catalog     []CatalogItem
	byLocation  map[string][]CatalogItem
	fetchErr    error
	inventory   *stubInventory
	images      *stubImages
	events      *stubEvents
	archiver    *stubArchiver
	cache       *stubInvalidator
	locker      *runlock.Memory
	fetches     []string
	coordinator SyncCoordinator
}

func newSyncHarness(t *testing.T, location string, opts ...func(*SyncCoordinatorDeps)) *syncHarness {
	t.Helper()
	h := &syncHarness{
		store:     memory.New(),
		inventory: &stubInventory{counts: map[string]int{}},
		images:    &stubImages{images: map[string]domain.ProductImage{}},
		events:    &stubEvents{},
		archiver:  &stubArchiver{},
		cache:     &stubInvalidator{},
		locker:    runlock.NewMemory(func() time.Time { return syncTestNow }),
	}
	clock := func() time.Time { return syncTestNow }
	reconciler, err := NewProductReconciler(ProductReconcilerDeps{
		Products:    h.store.Products(),
		Preorders:   h.store.Preorders(),
		Clock:       clock,
		IDGenerator: sequenceIDs("P"),
	})
	if err != nil {
		t.Fatalf("NewProductReconciler: %v", err)
	}
	hider, err := NewStaleVisibilityHider(StaleVisibilityHiderDeps{Products: h.store.Products(), Clock: clock})
	if err != nil {
		t.Fatalf("NewStaleVisibilityHider: %v", err)
	}
	deps := SyncCoordinatorDeps{
		Catalog: CatalogSourceFunc(func(_ context.Context, loc string) CatalogIterator {
			h.fetches = append(h.fetches, loc)
			items := h.catalog
			if h.byLocation != nil {
				items = h.byLocation[loc]
			}
			return &sliceIterator{items: items, err: h.fetchErr}
		}),
		Inventory:        h.inventory,
		Images:           h.images,
		Reconciler:       reconciler,
		Hider:            hider,
		SyncState:        h.store.SyncState(),
		Locker:           h.locker,
		Cache:            h.cache,
		Events:           h.events,
		Archiver:         h.archiver,
		LocationID:       location,
		LocationFallback: true,
		Clock:            clock,
		IDGenerator:      sequenceIDs("RUN"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.coordinator, err = NewSyncCoordinator(deps)
	if err != nil {
		t.Fatalf("NewSyncCoordinator: %v", err)
	}
	return h
}

func (h *syncHarness) run(t *testing.T, req SyncRequest) SyncRunReport {
	t.Helper()
	report, err := h.coordinator.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run(%+v): %v", req, err)
	}
	return report
}

func (h *syncHarness) bySlug() map[string]domain.Product {
	out := make(map[string]domain.Product)
	for _, p := range h.store.All() {
		out[p.Slug] = p
	}
	return out
}

func catalogOf(names ...string) []CatalogItem {
	items := make([]CatalogItem, 0, len(names))
	for i, name := range names {
		items = append(items, recordItem(string(rune('A'+i)), name, int64(1000+i)))
	}
	return items
}

func TestSyncFullRunIsIdempotent(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("Alice Coltrane - Journey in Satchidananda", "Pharoah Sanders - Karma", "Sun Ra - Lanquidity")
	for _, item := range h.catalog {
		h.inventory.counts[item.Variations[0].ID] = 5
	}

	first := h.run(t, SyncRequest{Direction: SyncDirectionPull})
	if first.CreatedCount != 3 || first.SyncedCount != 3 || !first.IsComplete || !first.Full || first.NextChunk != nil {
		t.Fatalf("unexpected first report: %+v", first)
	}
	before := h.bySlug()

	second := h.run(t, SyncRequest{})
	if second.UpdatedCount != 3 || second.CreatedCount != 0 {
		t.Fatalf("unexpected second report: %+v", second)
	}
	after := h.bySlug()
	if len(after) != 3 || len(h.store.All()) != 3 {
		t.Fatalf("expected exactly 3 products, got %d", len(h.store.All()))
	}
	for slug, p := range before {
		if after[slug].ExternalVariationID != p.ExternalVariationID || after[slug].ID != p.ID {
			t.Fatalf("slug %s changed identity: %+v -> %+v", slug, p, after[slug])
		}
	}
	if h.cache.calls != 2 || len(h.events.messages) != 2 || len(h.archiver.reports) != 2 {
		t.Fatalf("expected invalidate/publish/archive per run, got %d/%d/%d", h.cache.calls, len(h.events.messages), len(h.archiver.reports))
	}
	if h.events.messages[0].RunID != first.RunID || h.events.messages[0].LocationID != "LOC" {
		t.Fatalf("unexpected event payload: %+v", h.events.messages[0])
	}
}

func TestSyncPreservesAdminEdits(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("Fela Kuti - Zombie")
	h.catalog[0].Attributes = map[string]string{domain.AttributeGenre: "afrobeat"}
	h.run(t, SyncRequest{})

	ctx := context.Background()
	product := h.store.All()[0]
	if product.Genre != "afrobeat" {
		t.Fatalf("catalog genre should fill an empty field, got %q", product.Genre)
	}
	product.IsVisible = false
	product.Genre = "highlife"
	if err := h.store.Products().Update(ctx, product); err != nil {
		t.Fatalf("admin update: %v", err)
	}

	h.catalog[0].Name = "Fela Kuti - Zombie (Remastered)"
	h.run(t, SyncRequest{})

	got, _ := h.store.Products().FindByID(ctx, product.ID)
	if got.IsVisible {
		t.Fatalf("sync restored visibility of a hidden product")
	}
	if got.Genre != "highlife" {
		t.Fatalf("sync overwrote curated genre: %q", got.Genre)
	}
	if got.Title != "Fela Kuti - Zombie (Remastered)" || got.Slug != product.Slug {
		t.Fatalf("unexpected title/slug after resync: %q %q", got.Title, got.Slug)
	}
}

func TestSyncMigratesIdentifierByTitle(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	ctx := context.Background()
	legacy := domain.Product{
		ID:                  "LEGACY",
		ExternalVariationID: "STAGING-VAR",
		Slug:                "can-tago-mago",
		Source:              domain.ProductSourceCatalog,
		Title:               "Can - Tago Mago",
		IsVisible:           true,
	}
	if err := h.store.Products().Insert(ctx, legacy); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.catalog = catalogOf("Can - Tago Mago")

	h.run(t, SyncRequest{})
	got, _ := h.store.Products().FindByID(ctx, "LEGACY")
	if got.ExternalVariationID != "VAR-A" {
		t.Fatalf("expected legacy product to gain the new variation id, got %q", got.ExternalVariationID)
	}

	h.catalog[0].Variations[0].Price = &domain.Money{Amount: 3100, Currency: "USD"}
	report := h.run(t, SyncRequest{})
	if report.UpdatedCount != 1 || len(h.store.All()) != 1 {
		t.Fatalf("expected the same record to be updated, report=%+v products=%d", report, len(h.store.All()))
	}
	got, _ = h.store.Products().FindByID(ctx, "LEGACY")
	if got.Price.String() != "31" {
		t.Fatalf("expected updated price, got %s", got.Price)
	}
}

func TestSyncKeepsDistinctItemsSharingATitle(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = []CatalogItem{
		recordItem("A", "Miles Davis - Kind of Blue", 2500),
		recordItem("B", "Miles Davis - Kind of Blue", 3500),
	}

	first := h.run(t, SyncRequest{})
	if first.CreatedCount != 2 || first.UpdatedCount != 0 {
		t.Fatalf("expected both pressings to be created, got %+v", first)
	}
	second := h.run(t, SyncRequest{})
	if second.CreatedCount != 0 || second.UpdatedCount != 2 || second.HiddenCount != 0 {
		t.Fatalf("expected both pressings to be updated in place, got %+v", second)
	}

	products := h.store.All()
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	prices := map[string]string{}
	for _, p := range products {
		prices[p.ExternalVariationID] = p.Price.String()
		if !p.IsVisible {
			t.Fatalf("product %s hidden after a full run that listed it", p.ExternalVariationID)
		}
	}
	if prices["VAR-A"] != "25" || prices["VAR-B"] != "35" {
		t.Fatalf("unexpected prices per variation: %v", prices)
	}
}

func TestSyncHidesProductsMissingFromFullRun(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("A - One", "B - Two", "C - Three")
	h.run(t, SyncRequest{})

	h.catalog = []CatalogItem{h.catalog[0], h.catalog[2]}
	report := h.run(t, SyncRequest{})
	if !report.Full || report.HiddenCount != 1 {
		t.Fatalf("expected one product hidden by a full run, got %+v", report)
	}

	products := h.store.All()
	if len(products) != 3 {
		t.Fatalf("hiding must not delete: %d products", len(products))
	}
	for _, p := range products {
		wantVisible := p.ExternalVariationID != "VAR-B"
		if p.IsVisible != wantVisible {
			t.Fatalf("product %s visible=%v, want %v", p.ExternalVariationID, p.IsVisible, wantVisible)
		}
	}
}

func TestSyncChunksAreResumableAndSafeToRetry(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	names := make([]string, 10)
	for i := range names {
		names[i] = "Artist " + string(rune('A'+i)) + " - Album"
	}
	h.catalog = catalogOf(names...)

	start := 0
	var wantNext = []int{3, 6, 9}
	for i := 0; ; i++ {
		report := h.run(t, SyncRequest{ChunkSize: 3, StartIndex: start})
		if report.Full || report.HiddenCount != 0 {
			t.Fatalf("chunked runs must not hide: %+v", report)
		}
		if report.IsComplete {
			if report.NextChunk != nil || report.TotalProcessed != 10 {
				t.Fatalf("unexpected final chunk report: %+v", report)
			}
			break
		}
		if report.NextChunk == nil || *report.NextChunk != wantNext[i] {
			t.Fatalf("chunk %d: unexpected next chunk %v", i, report.NextChunk)
		}
		start = *report.NextChunk
	}

	retry := h.run(t, SyncRequest{ChunkSize: 3, StartIndex: 3})
	if retry.UpdatedCount != 3 || retry.CreatedCount != 0 {
		t.Fatalf("retried chunk should only update: %+v", retry)
	}
	if len(h.store.All()) != 10 {
		t.Fatalf("expected 10 products, got %d", len(h.store.All()))
	}

	info, err := h.coordinator.LastSync(context.Background())
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if info.LastSyncCount != 13 || info.LocationID != "LOC" {
		t.Fatalf("expected cumulative count 13, got %+v", info)
	}

	h.run(t, SyncRequest{ChunkSize: 3})
	info, _ = h.coordinator.LastSync(context.Background())
	if info.LastSyncCount != 3 {
		t.Fatalf("a pass starting at 0 resets the count, got %d", info.LastSyncCount)
	}
}

func TestSyncFailsOpenWithoutLocation(t *testing.T) {
	h := newSyncHarness(t, "")
	h.catalog = catalogOf("Alice Coltrane - Ptah, the El Daoud")

	report := h.run(t, SyncRequest{})
	if report.SyncedCount != 1 {
		t.Fatalf("expected the item to be synced, got %+v", report)
	}
	product := h.store.All()[0]
	if product.StockQuantity != domain.UntrackedStockQuantity || product.StockStatus != domain.StockStatusInStock {
		t.Fatalf("expected fail-open stock, got %d %s", product.StockQuantity, product.StockStatus)
	}
	if len(report.Log) == 0 {
		t.Fatalf("expected a configuration warning in the run log")
	}
}

func TestSyncClassifiesStockAndDegradesOnInventoryFailure(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("Low - Stock", "None - Left")
	h.inventory.counts["VAR-A"] = 2
	h.run(t, SyncRequest{})

	stock := map[string]domain.StockStatus{}
	for _, p := range h.store.All() {
		stock[p.ExternalVariationID] = p.StockStatus
	}
	if stock["VAR-A"] != domain.StockStatusLowStock || stock["VAR-B"] != domain.StockStatusOutOfStock {
		t.Fatalf("unexpected stock classification: %+v", stock)
	}

	h.inventory.err = errors.New("inventory api: 503")
	report := h.run(t, SyncRequest{})
	if report.SyncedCount != 2 || report.ErrorCount != 2 {
		t.Fatalf("inventory failures should degrade items, got %+v", report)
	}
	for _, p := range h.store.All() {
		if p.StockQuantity != 0 || p.StockStatus != domain.StockStatusOutOfStock {
			t.Fatalf("expected degraded stock, got %+v", p)
		}
	}
}

func TestSyncKeepsImagesWhenResolutionFails(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("Sade - Diamond Life")
	h.catalog[0].ImageIDs = []string{"IMG-1"}
	h.images.images["IMG-1"] = domain.ProductImage{ImageID: "IMG-1", URL: "https://images.example.com/sade.jpg"}
	h.run(t, SyncRequest{})

	h.images.err = errors.New("image lookup timed out")
	report := h.run(t, SyncRequest{})
	if report.ErrorCount != 1 {
		t.Fatalf("expected a soft error for the image lookup, got %+v", report)
	}
	product := h.store.All()[0]
	if len(product.Images) != 1 || product.Images[0].URL != "https://images.example.com/sade.jpg" {
		t.Fatalf("images should survive a failed lookup: %+v", product.Images)
	}
}

func TestSyncSkipsItemsNotAtLocation(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("Here - Now", "Elsewhere - Later")
	h.catalog[1].PresentAtAllLocations = false
	h.catalog[1].PresentAtLocationIDs = []string{"WAREHOUSE"}

	report := h.run(t, SyncRequest{})
	if report.SyncedCount != 1 || report.SkippedCount != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
}

func TestSyncFallsBackToUnfilteredListing(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	item := catalogOf("Warehouse - Only")[0]
	item.PresentAtAllLocations = false
	item.PresentAtLocationIDs = []string{"WAREHOUSE"}
	h.byLocation = map[string][]CatalogItem{"LOC": nil, "": {item}}

	report := h.run(t, SyncRequest{})
	if report.SyncedCount != 1 {
		t.Fatalf("expected fallback listing to be synced, got %+v", report)
	}
	if len(h.fetches) != 2 || h.fetches[0] != "LOC" || h.fetches[1] != "" {
		t.Fatalf("unexpected fetch sequence %v", h.fetches)
	}
	if h.store.All()[0].AvailableAtLocation {
		t.Fatalf("fallback items not present at the location must not be marked available")
	}
}

func TestSyncWithoutFallbackStaysEmpty(t *testing.T) {
	h := newSyncHarness(t, "LOC", func(d *SyncCoordinatorDeps) { d.LocationFallback = false })
	h.byLocation = map[string][]CatalogItem{"LOC": nil, "": catalogOf("Any - Thing")}

	report := h.run(t, SyncRequest{})
	if report.TotalProducts != 0 || len(h.fetches) != 1 {
		t.Fatalf("expected a single empty listing, got %+v fetches=%v", report, h.fetches)
	}
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	lease, err := h.locker.TryAcquire(context.Background(), defaultSyncLockName, time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer lease.Release(context.Background())

	if _, err := h.coordinator.Run(context.Background(), SyncRequest{}); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
}

func TestSyncReleasesLockAfterRun(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("One - Track")
	h.run(t, SyncRequest{})
	h.run(t, SyncRequest{})
}

func TestSyncRenewsLockDuringLongRuns(t *testing.T) {
	now := syncTestNow
	clock := func() time.Time { return now }
	locker := runlock.NewMemory(clock)
	h := newSyncHarness(t, "LOC", func(deps *SyncCoordinatorDeps) {
		deps.Clock = clock
		deps.Locker = locker
		deps.LockTTL = 4 * time.Minute
	})
	h.catalog = catalogOf("Slow - One", "Slow - Two", "Slow - Three")

	var competitor error
	h.inventory.hook = func(call int) {
		now = now.Add(3 * time.Minute)
		if call == 3 {
			_, competitor = locker.TryAcquire(context.Background(), defaultSyncLockName, time.Minute)
		}
	}

	report := h.run(t, SyncRequest{})
	if !report.IsComplete || report.SyncedCount != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !errors.Is(competitor, runlock.ErrLocked) {
		t.Fatalf("a run past its initial TTL must still hold the lock, got %v", competitor)
	}
}

func TestSyncStopsWhenLockIsTakenOver(t *testing.T) {
	now := syncTestNow
	clock := func() time.Time { return now }
	locker := runlock.NewMemory(clock)
	h := newSyncHarness(t, "LOC", func(deps *SyncCoordinatorDeps) {
		deps.Clock = clock
		deps.Locker = locker
		deps.LockTTL = 4 * time.Minute
	})
	h.catalog = catalogOf("Stalled - One", "Stalled - Two", "Stalled - Three")

	h.inventory.hook = func(call int) {
		if call == 1 {
			now = now.Add(5 * time.Minute)
			if _, err := locker.TryAcquire(context.Background(), defaultSyncLockName, time.Hour); err != nil {
				t.Errorf("expired lock should be available: %v", err)
			}
		}
	}

	report := h.run(t, SyncRequest{})
	if report.IsComplete || report.NextChunk == nil || *report.NextChunk != 1 {
		t.Fatalf("expected the run to stop after losing the lock, got %+v", report)
	}
	if report.Full || report.HiddenCount != 0 || report.ErrorCount != 1 {
		t.Fatalf("a run without the lock must not hide products: %+v", report)
	}
	if _, err := locker.TryAcquire(context.Background(), defaultSyncLockName, time.Minute); !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("releasing a lost lease must not evict the new holder, got %v", err)
	}
}

func TestSyncValidatesRequest(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	for _, req := range []SyncRequest{
		{Direction: "push"},
		{StartIndex: -1},
	} {
		if _, err := h.coordinator.Run(context.Background(), req); !errors.Is(err, ErrSyncInvalidInput) {
			t.Fatalf("Run(%+v): expected ErrSyncInvalidInput, got %v", req, err)
		}
	}
	if report := h.run(t, SyncRequest{Direction: SyncDirectionFromCatalog}); report.Direction != SyncDirectionPull {
		t.Fatalf("from_catalog should normalise to pull, got %s", report.Direction)
	}
}

func TestSyncFetchFailureAbortsWithoutHiding(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("Keep - Me", "And - Me")
	h.run(t, SyncRequest{})

	h.catalog = h.catalog[:1]
	h.fetchErr = errors.New("catalog api: 500")
	_, err := h.coordinator.Run(context.Background(), SyncRequest{})

	var fetchErr *SyncFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected SyncFetchError, got %v", err)
	}
	if fetchErr.Report.TotalProducts != 1 || fetchErr.Report.Full {
		t.Fatalf("unexpected partial report: %+v", fetchErr.Report)
	}
	for _, p := range h.store.All() {
		if !p.IsVisible {
			t.Fatalf("a failed run must not hide products: %+v", p)
		}
	}
}

type contextAwareState struct {
	repositories.SyncStateRepository
}

func (s contextAwareState) Record(ctx context.Context, update repositories.SyncStateUpdate) (domain.LastSyncInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.LastSyncInfo{}, err
	}
	return s.SyncStateRepository.Record(ctx, update)
}

func TestSyncStopsOnCancellation(t *testing.T) {
	h := newSyncHarness(t, "LOC", func(deps *SyncCoordinatorDeps) {
		deps.SyncState = contextAwareState{SyncStateRepository: deps.SyncState}
	})
	h.catalog = catalogOf("One - A", "Two - B", "Three - C", "Four - D")
	h.run(t, SyncRequest{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.inventory.calls = 0
	h.inventory.hook = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	h.catalog = h.catalog[:3]

	report, err := h.coordinator.Run(ctx, SyncRequest{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.IsComplete || report.NextChunk == nil || *report.NextChunk != 1 {
		t.Fatalf("expected the interrupted item to be retried next, got %+v", report)
	}
	if report.TotalProcessed != 1 || report.SyncedCount != 1 || report.ErrorCount != 0 {
		t.Fatalf("the interrupted item must not be counted: %+v", report)
	}
	if report.Full || report.HiddenCount != 0 {
		t.Fatalf("a cancelled run must not hide products: %+v", report)
	}

	state, err := h.store.SyncState().Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.RunID != report.RunID || state.IsComplete || state.LastSyncCount != 1 {
		t.Fatalf("expected the cancelled run to be recorded, got %+v", state)
	}
	if len(h.events.messages) != 2 || h.events.messages[1].RunID != report.RunID {
		t.Fatalf("expected the cancelled run to be announced, got %+v", h.events.messages)
	}
}

func TestSyncPublishAndArchiveFailuresAreNotFatal(t *testing.T) {
	h := newSyncHarness(t, "LOC")
	h.catalog = catalogOf("Still - Fine")
	h.events.err = errors.New("pubsub unavailable")
	h.archiver.err = errors.New("bucket missing")

	report := h.run(t, SyncRequest{})
	if report.SyncedCount != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestSyncLogsFailuresAboveInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := newSyncHarness(t, "", func(deps *SyncCoordinatorDeps) {
		deps.Logger = observability.EventLogger(zap.New(core))
	})
	h.catalog = catalogOf("Loud - Enough")
	h.events.err = errors.New("pubsub unavailable")
	h.archiver.err = errors.New("bucket missing")
	h.run(t, SyncRequest{})

	h.fetchErr = errors.New("catalog down")
	if _, err := h.coordinator.Run(context.Background(), SyncRequest{}); err == nil {
		t.Fatalf("expected fetch failure")
	}

	want := map[string]zapcore.Level{
		"catalog.sync.location_missing": zapcore.WarnLevel,
		"catalog.sync.publish_failed":   zapcore.WarnLevel,
		"catalog.sync.archive_failed":   zapcore.WarnLevel,
		"catalog.sync.fetch_failed":     zapcore.ErrorLevel,
		"catalog.sync.completed":        zapcore.InfoLevel,
	}
	for event, level := range want {
		entries := logs.FilterMessage(event).All()
		if len(entries) == 0 {
			t.Fatalf("expected %s to be logged", event)
		}
		if entries[0].Level != level {
			t.Fatalf("%s logged at %s, want %s", event, entries[0].Level, level)
		}
	}
}

func TestNewSyncCoordinatorRequiresDependencies(t *testing.T) {
	if _, err := NewSyncCoordinator(SyncCoordinatorDeps{}); err == nil {
		t.Fatalf("expected error when dependencies missing")
	}
}
