package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vinylyard/api/internal/platform/httpx"
	"github.com/vinylyard/api/internal/services"
)

const maxSyncRequestBody = 4 * 1024

// SyncHandlers exposes the catalog pull trigger and the last-run summary.
type SyncHandlers struct {
	sync             services.SyncCoordinator
	limiter          rateLimiter
	defaultChunkSize int
}

// SyncHandlerOption customises SyncHandlers.
type SyncHandlerOption func(*SyncHandlers)

// WithSyncRateLimit caps POST /sync per client per minute. Zero disables the limit.
func WithSyncRateLimit(perMinute int, clock func() time.Time) SyncHandlerOption {
	return func(h *SyncHandlers) {
		h.limiter = newClientRateLimiter(perMinute, time.Minute, clock)
	}
}

// WithSyncDefaultChunkSize applies when a request omits chunkSize.
func WithSyncDefaultChunkSize(size int) SyncHandlerOption {
	return func(h *SyncHandlers) {
		if size > 0 {
			h.defaultChunkSize = size
		}
	}
}

// NewSyncHandlers constructs a new SyncHandlers instance.
func NewSyncHandlers(sync services.SyncCoordinator, opts ...SyncHandlerOption) *SyncHandlers {
	h := &SyncHandlers{sync: sync}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /sync endpoints.
func (h *SyncHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.runSync)
	r.Get("/", h.syncStatus)
}

type syncRequest struct {
	Direction  string `json:"direction"`
	ChunkSize  *int   `json:"chunkSize"`
	StartIndex *int   `json:"startIndex"`
}

type syncResponse struct {
	RunID          string   `json:"runId"`
	Direction      string   `json:"direction"`
	LocationID     string   `json:"locationId,omitempty"`
	SyncedCount    int      `json:"syncedCount"`
	CreatedCount   int      `json:"createdCount"`
	UpdatedCount   int      `json:"updatedCount"`
	SkippedCount   int      `json:"skippedCount"`
	ErrorCount     int      `json:"errorCount"`
	TotalProcessed int      `json:"totalProcessed"`
	TotalProducts  int      `json:"totalProducts"`
	IsComplete     bool     `json:"isComplete"`
	NextChunk      *int     `json:"nextChunk"`
	HiddenCount    int      `json:"hiddenCount"`
	Message        string   `json:"message"`
	Log            []string `json:"log"`
	StartedAt      string   `json:"startedAt,omitempty"`
	FinishedAt     string   `json:"finishedAt,omitempty"`
}

type syncStatusResponse struct {
	LastSync      *string `json:"lastSync"`
	LastSyncCount int     `json:"lastSyncCount"`
	LocationID    string  `json:"locationId"`
	RunID         string  `json:"runId,omitempty"`
	IsComplete    bool    `json:"isComplete"`
}

func (h *SyncHandlers) runSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sync_unavailable", "sync service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many sync requests", http.StatusTooManyRequests))
		return
	}

	req, err := decodeSyncRequest(r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.SyncRequest{
		Direction: services.SyncDirection(strings.ToLower(strings.TrimSpace(req.Direction))),
		ChunkSize: h.defaultChunkSize,
	}
	if req.ChunkSize != nil {
		cmd.ChunkSize = *req.ChunkSize
	}
	if req.StartIndex != nil {
		cmd.StartIndex = *req.StartIndex
	}

	report, err := h.sync.Run(ctx, cmd)
	if err != nil {
		writeSyncError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildSyncResponse(report))
}

func decodeSyncRequest(r *http.Request) (syncRequest, error) {
	var req syncRequest
	body, err := readLimitedBody(r, maxSyncRequestBody)
	if err != nil {
		if errors.Is(err, errEmptyBody) {
			return req, nil
		}
		return req, err
	}
	if err := decodeStrict(body, &req); err != nil {
		return req, errors.New("invalid JSON payload")
	}
	return req, nil
}

func (h *SyncHandlers) syncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sync_unavailable", "sync service unavailable", http.StatusServiceUnavailable))
		return
	}
	info, err := h.sync.LastSync(ctx)
	if err != nil {
		writeSyncError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{
		LastSync:      formatTimePointer(&info.LastSync),
		LastSyncCount: info.LastSyncCount,
		LocationID:    info.LocationID,
		RunID:         info.RunID,
		IsComplete:    info.IsComplete,
	})
}

func buildSyncResponse(report services.SyncRunReport) syncResponse {
	logLines := report.Log
	if logLines == nil {
		logLines = []string{}
	}
	return syncResponse{
		RunID:          report.RunID,
		Direction:      string(report.Direction),
		LocationID:     report.LocationID,
		SyncedCount:    report.SyncedCount,
		CreatedCount:   report.CreatedCount,
		UpdatedCount:   report.UpdatedCount,
		SkippedCount:   report.SkippedCount,
		ErrorCount:     report.ErrorCount,
		TotalProcessed: report.TotalProcessed,
		TotalProducts:  report.TotalProducts,
		IsComplete:     report.IsComplete,
		NextChunk:      report.NextChunk,
		HiddenCount:    report.HiddenCount,
		Message:        report.Message,
		Log:            logLines,
		StartedAt:      formatTime(report.StartedAt),
		FinishedAt:     formatTime(report.FinishedAt),
	}
}

func writeSyncError(ctx context.Context, w http.ResponseWriter, err error) {
	var fetchErr *services.SyncFetchError
	switch {
	case errors.As(err, &fetchErr):
		report := fetchErr.Report
		httpx.WriteError(ctx, w, httpx.NewError("catalog_fetch_failed", err.Error(), http.StatusBadGateway).WithDetails(map[string]any{
			"runId":          report.RunID,
			"syncedCount":    report.SyncedCount,
			"skippedCount":   report.SkippedCount,
			"errorCount":     report.ErrorCount,
			"totalProcessed": report.TotalProcessed,
			"totalProducts":  report.TotalProducts,
			"isComplete":     false,
		}))
	case errors.Is(err, services.ErrSyncInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("sync_in_progress", "a sync is already in progress", http.StatusConflict))
	case errors.Is(err, services.ErrSyncInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStoreUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "product store unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("sync_cancelled", err.Error(), http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("sync_failed", "sync failed", http.StatusInternalServerError))
	}
}
