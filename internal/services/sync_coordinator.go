package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/platform/observability"
	"github.com/vinylyard/api/internal/platform/requestctx"
	"github.com/vinylyard/api/internal/platform/runlock"
	"github.com/vinylyard/api/internal/repositories"
)

const (
	defaultSyncLockName = "catalog-sync"
	defaultSyncLockTTL  = 10 * time.Minute
	maxReportLogLines   = 500
)

// SyncCoordinatorDeps bundles the collaborators required to construct a sync coordinator.
type SyncCoordinatorDeps struct {
	Catalog    CatalogSource
	Inventory  InventorySource
	Images     ImageSource
	Reconciler *ProductReconciler
	Hider      *StaleVisibilityHider
	SyncState  repositories.SyncStateRepository
	Locker     runlock.Locker
	Cache      CacheInvalidator
	Events     SyncEventPublisher
	Archiver   RunReportArchiver

	LocationID string
	// LocationFallback retries an empty location-filtered listing without the filter.
	LocationFallback bool
	LockName         string
	LockTTL          time.Duration

	Meter       metric.Meter
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type syncCoordinator struct {
	catalog    CatalogSource
	inventory  InventorySource
	images     ImageSource
	reconciler *ProductReconciler
	hider      *StaleVisibilityHider
	state      repositories.SyncStateRepository
	locker     runlock.Locker
	cache      CacheInvalidator
	events     SyncEventPublisher
	archiver   RunReportArchiver

	location string
	fallback bool
	lockName string
	lockTTL  time.Duration

	tracer trace.Tracer
	items  metric.Int64Counter
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewSyncCoordinator wires dependencies into a SyncCoordinator.
func NewSyncCoordinator(deps SyncCoordinatorDeps) (SyncCoordinator, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("sync coordinator: catalog source is required")
	case deps.Inventory == nil:
		return nil, errors.New("sync coordinator: inventory source is required")
	case deps.Reconciler == nil:
		return nil, errors.New("sync coordinator: reconciler is required")
	case deps.Hider == nil:
		return nil, errors.New("sync coordinator: stale visibility hider is required")
	case deps.SyncState == nil:
		return nil, errors.New("sync coordinator: sync state repository is required")
	case deps.Locker == nil:
		return nil, errors.New("sync coordinator: locker is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	lockName := strings.TrimSpace(deps.LockName)
	if lockName == "" {
		lockName = defaultSyncLockName
	}
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultSyncLockTTL
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/vinylyard/api/internal/services")
	}
	items, err := meter.Int64Counter("catalog.sync.items",
		metric.WithDescription("Catalog items processed by sync runs, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("sync coordinator: create items counter: %w", err)
	}

	return &syncCoordinator{
		catalog:    deps.Catalog,
		inventory:  deps.Inventory,
		images:     deps.Images,
		reconciler: deps.Reconciler,
		hider:      deps.Hider,
		state:      deps.SyncState,
		locker:     deps.Locker,
		cache:      deps.Cache,
		events:     deps.Events,
		archiver:   deps.Archiver,
		location:   strings.TrimSpace(deps.LocationID),
		fallback:   deps.LocationFallback,
		lockName:   lockName,
		lockTTL:    lockTTL,
		tracer:     observability.Tracer("internal/services"),
		items:      items,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func normalizeDirection(direction SyncDirection) (SyncDirection, error) {
	switch SyncDirection(strings.ToLower(strings.TrimSpace(string(direction)))) {
	case "", SyncDirectionPull, SyncDirectionFromCatalog:
		return SyncDirectionPull, nil
	default:
		return "", fmt.Errorf("%w: unsupported direction %q", ErrSyncInvalidInput, direction)
	}
}

func (s *syncCoordinator) Run(ctx context.Context, req SyncRequest) (report SyncRunReport, err error) {
	direction, err := normalizeDirection(req.Direction)
	if err != nil {
		return SyncRunReport{}, err
	}
	if req.StartIndex < 0 {
		return SyncRunReport{}, fmt.Errorf("%w: startIndex must not be negative", ErrSyncInvalidInput)
	}
	chunkSize := max(req.ChunkSize, 0)

	lease, err := s.locker.TryAcquire(ctx, s.lockName, s.lockTTL)
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			return SyncRunReport{}, ErrSyncInProgress
		}
		return SyncRunReport{}, fmt.Errorf("sync: acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logger(ctx, "catalog.sync.lock_release_failed", map[string]any{"level": "warn", "error": releaseErr.Error()})
		}
	}()

	runID := s.newID()
	ctx = requestctx.WithRunID(ctx, runID)
	ctx, span := s.tracer.Start(ctx, "catalog.sync.run", trace.WithAttributes(
		attribute.String("catalog.sync.run_id", runID),
		attribute.Int("catalog.sync.start_index", req.StartIndex),
		attribute.Int("catalog.sync.chunk_size", chunkSize),
	))
	defer func() { observability.EndSpan(span, err) }()

	run := newRunReport(runID, direction, s.location, chunkSize, req.StartIndex, s.clock())
	if s.location == "" {
		run.logf("warning: no location configured, inventory checks fail open")
		s.logger(ctx, "catalog.sync.location_missing", map[string]any{"level": "warn", "runId": runID})
	}

	items, fallbackUsed, fetchErr := s.listCatalog(ctx, run)
	if fetchErr != nil {
		run.TotalProducts = len(items)
		run.Message = "catalog fetch failed"
		run.logf("error: catalog fetch failed: %v", fetchErr)
		run.FinishedAt = s.clock()
		s.logger(ctx, "catalog.sync.fetch_failed", map[string]any{
			"level":   "error",
			"runId":   runID,
			"fetched": len(items),
			"error":   fetchErr.Error(),
		})
		return run.SyncRunReport, &SyncFetchError{Report: run.SyncRunReport, Err: fetchErr}
	}

	total := len(items)
	start := min(req.StartIndex, total)
	end := total
	if chunkSize > 0 {
		end = min(start+chunkSize, total)
	}
	run.TotalProducts = total
	live := primaryVariationIDs(items)

	seen := make([]string, 0, end-start)
	stopped := false
	next := start
	renewedAt := s.clock()
	for ; next < end; next++ {
		if ctx.Err() != nil {
			stopped = true
			run.logf("warning: run cancelled at index %d", next)
			break
		}
		if lost := s.renewLease(ctx, lease, &renewedAt); lost {
			stopped = true
			run.ErrorCount++
			run.logf("error: run lock lost at index %d, stopping", next)
			break
		}
		outcome := s.processItem(ctx, items[next], fallbackUsed, run.StartedAt, live)
		if ctx.Err() != nil {
			// The item was interrupted part way; the next chunk starts at it again.
			stopped = true
			run.logf("warning: run cancelled at index %d", next)
			break
		}
		run.record(items[next], outcome)
		s.items.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome.Kind))))
		switch outcome.Kind {
		case OutcomeCreated, OutcomeUpdated, OutcomeFailed:
			if outcome.VariationID != "" {
				seen = append(seen, outcome.VariationID)
			}
		}
	}

	processed := next - start
	run.TotalProcessed = next
	run.IsComplete = !stopped && next >= total
	if !run.IsComplete {
		nextChunk := next
		run.NextChunk = &nextChunk
	}

	if start == 0 && run.IsComplete {
		run.Full = true
		hidden, hideErr := s.hider.Hide(ctx, seen)
		if hideErr != nil {
			run.ErrorCount++
			run.logf("error: stale visibility pass failed: %v", hideErr)
		}
		run.HiddenCount = hidden
	}

	// Bookkeeping below must survive a cancelled run context.
	finishCtx := context.WithoutCancel(ctx)
	_, stateErr := s.state.Record(finishCtx, repositories.SyncStateUpdate{
		RunID:      runID,
		LocationID: s.location,
		SyncedAt:   s.clock(),
		Processed:  processed,
		ResetCount: start == 0,
		IsComplete: run.IsComplete,
	})
	if stateErr != nil {
		run.logf("error: persisting sync state failed: %v", stateErr)
		s.logger(ctx, "catalog.sync.state_failed", map[string]any{"level": "error", "runId": runID, "error": stateErr.Error()})
	}

	if s.cache != nil {
		s.cache.Invalidate(finishCtx)
	}

	run.FinishedAt = s.clock()
	run.Message = run.summary()
	span.SetAttributes(
		attribute.Int("catalog.sync.synced", run.SyncedCount),
		attribute.Int("catalog.sync.errors", run.ErrorCount),
		attribute.Bool("catalog.sync.complete", run.IsComplete),
	)

	s.announce(finishCtx, run.SyncRunReport)

	s.logger(ctx, "catalog.sync.completed", map[string]any{
		"runId":      runID,
		"synced":     run.SyncedCount,
		"created":    run.CreatedCount,
		"updated":    run.UpdatedCount,
		"skipped":    run.SkippedCount,
		"errors":     run.ErrorCount,
		"hidden":     run.HiddenCount,
		"total":      total,
		"isComplete": run.IsComplete,
		"full":       run.Full,
	})
	return run.SyncRunReport, nil
}

func (s *syncCoordinator) LastSync(ctx context.Context) (LastSyncInfo, error) {
	info, err := s.state.Load(ctx)
	if err != nil {
		if repositories.IsUnavailable(err) {
			return LastSyncInfo{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return LastSyncInfo{}, fmt.Errorf("sync: load state: %w", err)
	}
	return info, nil
}

// renewLease extends the run lock once half its TTL has passed since the last renewal. It reports
// whether the lock was taken over, in which case the run must stop.
func (s *syncCoordinator) renewLease(ctx context.Context, lease runlock.Lease, renewedAt *time.Time) bool {
	now := s.clock()
	if now.Sub(*renewedAt) < s.lockTTL/2 {
		return false
	}
	err := lease.Renew(ctx, s.lockTTL)
	switch {
	case err == nil:
		*renewedAt = now
		return false
	case errors.Is(err, runlock.ErrLeaseLost):
		s.logger(ctx, "catalog.sync.lock_lost", map[string]any{"level": "error", "owner": lease.Owner()})
		return true
	default:
		s.logger(ctx, "catalog.sync.lock_renew_failed", map[string]any{"level": "warn", "error": err.Error()})
		return false
	}
}

// listCatalog drains the catalog, retrying without the location filter when the filtered listing
// is empty and the fallback is enabled.
func (s *syncCoordinator) listCatalog(ctx context.Context, run *runReport) ([]CatalogItem, bool, error) {
	items, err := drain(s.catalog.Fetch(ctx, s.location))
	if err != nil || len(items) > 0 || s.location == "" || !s.fallback {
		return items, false, err
	}
	run.logf("warning: no items listed at location %s, retrying without the location filter", s.location)
	s.logger(ctx, "catalog.sync.location_fallback", map[string]any{"level": "warn", "locationId": s.location})
	items, err = drain(s.catalog.Fetch(ctx, ""))
	return items, true, err
}

func primaryVariationIDs(items []CatalogItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		variation, ok := item.PrimaryVariation()
		if id := strings.TrimSpace(variation.ID); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func drain(it CatalogIterator) ([]CatalogItem, error) {
	var items []CatalogItem
	for {
		item, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}

func (s *syncCoordinator) processItem(ctx context.Context, item CatalogItem, fallbackUsed bool, runStartedAt time.Time, live []string) ItemOutcome {
	variation, ok := item.PrimaryVariation()
	if !ok {
		return skipped(SkipNoVariations, "")
	}
	present := item.PresentAt(s.location)
	if !present && !fallbackUsed {
		return skipped(SkipNotAtLocation, variation.ID)
	}

	var warnings []string
	productType := detectProductType(item)

	var stock StockLevel
	if productType == domain.ProductTypeVoucher {
		stock = deriveStock(productType, variation, nil, s.location)
	} else {
		counts, err := s.inventory.GetCounts(ctx, s.location, []string{variation.ID})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("inventory lookup failed: %v", err))
			stock = StockLevel{Quantity: 0, Status: domain.StockStatusOutOfStock}
		} else {
			stock = deriveStock(productType, variation, counts, s.location)
		}
	}

	images, resolved := s.resolveImages(ctx, item, &warnings)

	outcome := s.reconciler.Reconcile(ctx, ReconcileInput{
		Item:                item,
		Variation:           variation,
		Stock:               stock,
		AvailableAtLocation: present,
		Images:              images,
		ImagesResolved:      resolved,
		RunStartedAt:        runStartedAt,
		LiveVariationIDs:    live,
	})
	outcome.Warnings = append(warnings, outcome.Warnings...)
	return outcome
}

func (s *syncCoordinator) resolveImages(ctx context.Context, item CatalogItem, warnings *[]string) ([]domain.ProductImage, bool) {
	if len(item.ImageIDs) == 0 {
		return nil, true
	}
	if s.images == nil {
		return nil, false
	}
	images, err := s.images.ResolveImages(ctx, item.ImageIDs)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("image lookup failed: %v", err))
		return nil, false
	}
	return images, true
}

// announce publishes and archives the finished report. Failures are logged only.
func (s *syncCoordinator) announce(ctx context.Context, report SyncRunReport) {
	if s.events != nil {
		msgID, err := s.events.PublishSyncCompleted(ctx, SyncCompletedMessage{
			RunID:        report.RunID,
			LocationID:   report.LocationID,
			SyncedCount:  report.SyncedCount,
			SkippedCount: report.SkippedCount,
			ErrorCount:   report.ErrorCount,
			HiddenCount:  report.HiddenCount,
			IsComplete:   report.IsComplete,
			Full:         report.Full,
			StartedAt:    report.StartedAt,
			FinishedAt:   report.FinishedAt,
		})
		if err != nil {
			s.logger(ctx, "catalog.sync.publish_failed", map[string]any{"level": "warn", "runId": report.RunID, "error": err.Error()})
		} else {
			s.logger(ctx, "catalog.sync.published", map[string]any{"runId": report.RunID, "messageId": msgID})
		}
	}
	if s.archiver != nil {
		object, err := s.archiver.ArchiveRunReport(ctx, report)
		if err != nil {
			s.logger(ctx, "catalog.sync.archive_failed", map[string]any{"level": "warn", "runId": report.RunID, "error": err.Error()})
		} else {
			s.logger(ctx, "catalog.sync.archived", map[string]any{"runId": report.RunID, "object": object})
		}
	}
}

type runReport struct {
	SyncRunReport
	truncated int
}

func newRunReport(runID string, direction SyncDirection, location string, chunkSize, startIndex int, startedAt time.Time) *runReport {
	return &runReport{SyncRunReport: SyncRunReport{
		RunID:      runID,
		Direction:  direction,
		LocationID: location,
		ChunkSize:  chunkSize,
		StartIndex: startIndex,
		StartedAt:  startedAt,
		Log:        []string{},
	}}
}

func (r *runReport) logf(format string, args ...any) {
	if len(r.Log) >= maxReportLogLines {
		r.truncated++
		return
	}
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

func (r *runReport) record(item CatalogItem, outcome ItemOutcome) {
	label := item.Name
	if outcome.VariationID != "" {
		label = fmt.Sprintf("%s (%s)", item.Name, outcome.VariationID)
	}
	switch outcome.Kind {
	case OutcomeCreated:
		r.CreatedCount++
		r.SyncedCount++
	case OutcomeUpdated:
		r.UpdatedCount++
		r.SyncedCount++
	case OutcomeSkipped:
		r.SkippedCount++
		r.logf("skipped %s: %s", label, outcome.Reason)
	case OutcomeFailed:
		r.ErrorCount++
		r.logf("error %s: %v", label, outcome.Err)
	}
	for _, warning := range outcome.Warnings {
		r.ErrorCount++
		r.logf("warning %s: %s", label, warning)
	}
}

func (r *runReport) summary() string {
	if r.truncated > 0 {
		r.Log = append(r.Log, fmt.Sprintf("%d more log lines omitted", r.truncated))
	}
	if r.IsComplete {
		return fmt.Sprintf("Synced %d of %d catalog items (%d skipped, %d errors)", r.SyncedCount, r.TotalProducts, r.SkippedCount, r.ErrorCount)
	}
	return fmt.Sprintf("Synced %d items; processed %d of %d, continue from %d", r.SyncedCount, r.TotalProcessed, r.TotalProducts, r.TotalProcessed)
}
