// Package ratelimit tracks a catalog backend's request quota and gates
// outgoing requests. It reads the X-RateLimit-Remaining and X-RateLimit-Reset
// response headers so a client backs off before the backend starts refusing
// it.
package ratelimit

import (
	"time"
)

// Thresholds for quota decisions.
const (
	// QuotaThresholdCritical blocks requests when the remaining quota falls
	// below this value, until the window resets.
	QuotaThresholdCritical = 5

	// QuotaThresholdWarning throttles requests below this value.
	QuotaThresholdWarning = 20

	// QuotaThresholdHealthy is the level at which the quota counts as healthy.
	QuotaThresholdHealthy = 50
)

// QuotaState is the last quota reported by the backend.
type QuotaState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= QuotaThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock reports whether requests must be blocked.
// A window that has already reset never blocks.
func (s *QuotaState) NeedsCriticalBlock() bool {
	return s.Remaining < QuotaThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling reports whether requests should be slowed down.
func (s *QuotaState) NeedsThrottling() bool {
	return s.Remaining < QuotaThresholdWarning && s.TimeUntilReset() > 0 && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= QuotaThresholdHealthy
}
