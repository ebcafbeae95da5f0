package services

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInProgress is returned when another run holds the sync lock.
	ErrSyncInProgress = errors.New("sync: a sync is already in progress")
	// ErrSyncInvalidInput signals an unsupported direction or negative offsets.
	ErrSyncInvalidInput = errors.New("sync: invalid input")
	// ErrProductInvalidInput signals a malformed admin edit.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product id does not exist.
	ErrProductNotFound = errors.New("product: not found")
	// ErrStoreUnavailable indicates the local store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// SyncFetchError aborts a run when the catalog listing fails. Report holds the counts reached before
// the failure; the stale visibility pass never runs for such a run.
type SyncFetchError struct {
	Report SyncRunReport
	Err    error
}

func (e *SyncFetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("sync: catalog fetch failed after listing %d items: %v", e.Report.TotalProducts, e.Err)
}

func (e *SyncFetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SkipReason explains why an item was not written.
type SkipReason string

const (
	SkipNoVariations  SkipReason = "no-variations"
	SkipMissingPrice  SkipReason = "missing-price"
	SkipNotAtLocation SkipReason = "not-at-location"
	SkipSlugExhausted SkipReason = "slug-exhausted"
)

// OutcomeKind classifies what happened to one catalog item.
type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// ItemOutcome is the result of reconciling one item. Errors never escape the item boundary; they
// travel here instead.
type ItemOutcome struct {
	Kind        OutcomeKind
	ProductID   string
	VariationID string
	Reason      SkipReason
	Err         error
	// Warnings are soft errors (inventory or image lookups) that degraded a field without failing the item.
	Warnings []string
}

func created(productID, variationID string) ItemOutcome {
	return ItemOutcome{Kind: OutcomeCreated, ProductID: productID, VariationID: variationID}
}

func updated(productID, variationID string) ItemOutcome {
	return ItemOutcome{Kind: OutcomeUpdated, ProductID: productID, VariationID: variationID}
}

func skipped(reason SkipReason, variationID string) ItemOutcome {
	return ItemOutcome{Kind: OutcomeSkipped, Reason: reason, VariationID: variationID}
}

func failed(err error, variationID string) ItemOutcome {
	return ItemOutcome{Kind: OutcomeFailed, Err: err, VariationID: variationID}
}
