package handlers

import (
	"testing"
	"time"
)

func TestClientRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := newClientRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected first two calls allowed")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected third call rejected")
	}
	if !limiter.Allow("b") {
		t.Fatalf("expected separate key allowed")
	}

	now = now.Add(31 * time.Second)
	if !limiter.Allow("a") {
		t.Fatalf("expected one token refilled after half a window")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected bucket empty again")
	}

	now = now.Add(time.Minute + time.Second)
	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected full burst after a quiet window")
	}
}

func TestClientRateLimiterPrunesIdleClients(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := newClientRateLimiter(1, time.Minute, func() time.Time { return now }).(*clientRateLimiter)

	limiter.Allow("a")
	now = now.Add(2 * time.Minute)
	limiter.Allow("b")

	if _, ok := limiter.buckets["a"]; ok {
		t.Fatalf("expected idle bucket pruned")
	}
	if len(limiter.buckets) != 1 {
		t.Fatalf("expected one live bucket, got %d", len(limiter.buckets))
	}
}

func TestClientRateLimiterDisabled(t *testing.T) {
	if limiter := newClientRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
}
