package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ObjectPurpose captures high-level intent for storage layout decisions.
type ObjectPurpose string

const (
	// PurposeSyncReport is the per-run report archive.
	PurposeSyncReport ObjectPurpose = "sync-report"
	// PurposeLatestSyncReport is the stable copy of the most recent complete run.
	PurposeLatestSyncReport ObjectPurpose = "latest-sync-report"
)

const defaultReportPrefix = "sync-runs"

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	Prefix     string
	RunID      string
	StartedAt  time.Time
	LocationID string
}

// PathBuilder composes the object path for a given purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[ObjectPurpose]PathBuilder{
		PurposeSyncReport:       buildSyncReportPath,
		PurposeLatestSyncReport: buildLatestSyncReportPath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose ObjectPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ObjectPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported object purpose %q", purpose)
	}
	return builder(params)
}

func buildSyncReportPath(params PathParams) (string, error) {
	prefix, err := validatePrefix(params.Prefix)
	if err != nil {
		return "", err
	}
	runID, err := validateSegment("runID", params.RunID)
	if err != nil {
		return "", err
	}
	if params.StartedAt.IsZero() {
		return "", fmt.Errorf("storage: startedAt is required")
	}
	day := params.StartedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", prefix, day.Year(), int(day.Month()), day.Day(), runID), nil
}

func buildLatestSyncReportPath(params PathParams) (string, error) {
	prefix, err := validatePrefix(params.Prefix)
	if err != nil {
		return "", err
	}
	if loc := strings.TrimSpace(params.LocationID); loc != "" {
		location, err := validateSegment("locationID", loc)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s/latest/%s.json", prefix, location), nil
	}
	return prefix + "/latest.json", nil
}

func validatePrefix(value string) (string, error) {
	value = strings.Trim(strings.TrimSpace(value), "/")
	if value == "" {
		return defaultReportPrefix, nil
	}
	for _, part := range strings.Split(value, "/") {
		if _, err := validateSegment("prefix", part); err != nil {
			return "", err
		}
	}
	return value, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
