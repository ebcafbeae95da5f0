package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/repositories"
)

// SyncHealthCheckName is the readiness check that reports catalog sync freshness.
const SyncHealthCheckName = "catalog_sync"

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// SyncState and SyncStaleAfter enable the freshness check. Both are optional.
	SyncState      repositories.SyncStateRepository
	SyncStaleAfter time.Duration
	Clock          func() time.Time
	Build          BuildInfo
}

type systemService struct {
	health     repositories.HealthRepository
	syncState  repositories.SyncStateRepository
	staleAfter time.Duration
	clock      func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind the health endpoints.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	if deps.SyncStaleAfter < 0 {
		return nil, errors.New("system service: sync stale threshold must not be negative")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		health:     deps.HealthRepository,
		syncState:  deps.SyncState,
		staleAfter: deps.SyncStaleAfter,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = firstNonBlank(report.Version, s.build.Version)
	report.CommitSHA = firstNonBlank(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonBlank(report.Environment, s.build.Environment)
	if report.Uptime <= 0 && !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt)
	}

	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if s.syncState != nil && s.staleAfter > 0 {
		report.Checks[SyncHealthCheckName] = s.syncFreshness(ctx, now)
		report.Status = ""
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = deriveStatus(report.Checks)
	}
	return report, nil
}

// syncFreshness degrades readiness once the last recorded sync is older than the threshold. A store
// that has never been synced stays ok so a fresh deployment can take its first sync request.
func (s *systemService) syncFreshness(ctx context.Context, now time.Time) domain.SystemHealthCheck {
	check := domain.SystemHealthCheck{Status: domain.HealthStatusOK, CheckedAt: now}
	info, err := s.syncState.Load(ctx)
	check.Latency = s.clock().Sub(now)
	switch {
	case err != nil:
		check.Status = domain.HealthStatusDegraded
		check.Detail = "sync state unavailable"
		check.Error = err.Error()
	case info.LastSync.IsZero():
		check.Detail = "never synced"
	default:
		age := now.Sub(info.LastSync).Truncate(time.Second)
		check.Detail = fmt.Sprintf("last sync %s ago, %d items", age, info.LastSyncCount)
		if age > s.staleAfter {
			check.Status = domain.HealthStatusDegraded
			check.Error = fmt.Sprintf("last sync older than %s", s.staleAfter)
		}
	}
	return check
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
			continue
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
