// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package extractor

import (
	"sync"
	"time"

	"github.com/resona-dev/resona/pkg/health"
)

// DefaultHealthCooldown is the duration after which a failing extractor is
// considered eligible again.
const DefaultHealthCooldown = 30 * time.Second

// HealthTracker tracks the observed health of the extraction sidecar. The
// sidecar is considered available until a request fails; after a failure it
// is reported unavailable for a cooldown period so operators can tell a
// blip from an outage.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time // for testing
}

// NewHealthTracker creates a HealthTracker that starts healthy.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		healthy:  true,
		cooldown: DefaultHealthCooldown,
		nowFunc:  time.Now,
	}
}

func (h *HealthTracker) isAvailableLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsAvailable reports whether the sidecar is healthy or its cooldown has
// elapsed.
func (h *HealthTracker) IsAvailable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isAvailableLocked()
}

// RecordSuccess marks the sidecar healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure marks the sidecar unhealthy and increments the cumulative
// failure count.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the tracker's state.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		FailureCount: h.failureCount,
	}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	m.Available = h.isAvailableLocked()
	if !h.healthy {
		cooldownEnd := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}
