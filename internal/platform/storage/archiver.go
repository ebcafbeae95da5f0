package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinylyard/api/internal/services"
)

// ObjectStore is the subset of Copier used by the archiver.
type ObjectStore interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
}

// ReportArchiver stores every sync run report as JSON and keeps a copy of the latest complete run.
type ReportArchiver struct {
	objects ObjectStore
	bucket  string
	prefix  string
	marshal func(any) ([]byte, error)
}

var _ services.RunReportArchiver = (*ReportArchiver)(nil)

// ArchiverOption customises the archiver.
type ArchiverOption func(*ReportArchiver)

// WithPrefix sets the object prefix (default "sync-runs").
func WithPrefix(prefix string) ArchiverOption {
	return func(a *ReportArchiver) {
		a.prefix = prefix
	}
}

// NewReportArchiver builds an archiver writing into bucket.
func NewReportArchiver(objects ObjectStore, bucket string, opts ...ArchiverOption) (*ReportArchiver, error) {
	if objects == nil {
		return nil, errors.New("report archiver: object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("report archiver: bucket is required")
	}
	archiver := &ReportArchiver{
		objects: objects,
		bucket:  bucket,
		marshal: func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(archiver)
		}
	}
	if _, err := validatePrefix(archiver.prefix); err != nil {
		return nil, fmt.Errorf("report archiver: %w", err)
	}
	return archiver, nil
}

type runReportDocument struct {
	RunID          string    `json:"runId"`
	Direction      string    `json:"direction"`
	LocationID     string    `json:"locationId,omitempty"`
	ChunkSize      int       `json:"chunkSize"`
	StartIndex     int       `json:"startIndex"`
	SyncedCount    int       `json:"syncedCount"`
	CreatedCount   int       `json:"createdCount"`
	UpdatedCount   int       `json:"updatedCount"`
	SkippedCount   int       `json:"skippedCount"`
	ErrorCount     int       `json:"errorCount"`
	TotalProcessed int       `json:"totalProcessed"`
	TotalProducts  int       `json:"totalProducts"`
	IsComplete     bool      `json:"isComplete"`
	NextChunk      *int      `json:"nextChunk"`
	Full           bool      `json:"full"`
	HiddenCount    int       `json:"hiddenCount"`
	Message        string    `json:"message,omitempty"`
	Log            []string  `json:"log"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// ArchiveRunReport writes the report and returns its object name. Full runs are also copied to the
// latest pointer object.
func (a *ReportArchiver) ArchiveRunReport(ctx context.Context, report services.SyncRunReport) (string, error) {
	object, err := BuildObjectPath(PurposeSyncReport, PathParams{
		Prefix:    a.prefix,
		RunID:     report.RunID,
		StartedAt: report.StartedAt,
	})
	if err != nil {
		return "", err
	}

	data, err := a.marshal(runReportDocument{
		RunID:          report.RunID,
		Direction:      string(report.Direction),
		LocationID:     report.LocationID,
		ChunkSize:      report.ChunkSize,
		StartIndex:     report.StartIndex,
		SyncedCount:    report.SyncedCount,
		CreatedCount:   report.CreatedCount,
		UpdatedCount:   report.UpdatedCount,
		SkippedCount:   report.SkippedCount,
		ErrorCount:     report.ErrorCount,
		TotalProcessed: report.TotalProcessed,
		TotalProducts:  report.TotalProducts,
		IsComplete:     report.IsComplete,
		NextChunk:      report.NextChunk,
		Full:           report.Full,
		HiddenCount:    report.HiddenCount,
		Message:        report.Message,
		Log:            report.Log,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal run report: %w", err)
	}

	if err := a.objects.WriteObject(ctx, a.bucket, object, "application/json", data); err != nil {
		return "", fmt.Errorf("write run report %s: %w", object, err)
	}

	if report.Full {
		latest, err := BuildObjectPath(PurposeLatestSyncReport, PathParams{Prefix: a.prefix, LocationID: report.LocationID})
		if err != nil {
			return object, err
		}
		if err := a.objects.CopyObject(ctx, a.bucket, object, a.bucket, latest); err != nil {
			return object, fmt.Errorf("copy run report to %s: %w", latest, err)
		}
	}
	return object, nil
}
