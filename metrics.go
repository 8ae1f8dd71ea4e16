package authcore

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics set.
type MetricID uint8

const (
	// MetricLoginSuccess counts completed logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins, all reasons collapsed.
	MetricLoginFailure
	// MetricLoginTwoFactorRequired counts logins halted for a second factor.
	MetricLoginTwoFactorRequired
	// MetricRefreshSuccess counts access tokens minted via refresh.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricLogout counts logout calls, including idempotent repeats.
	MetricLogout
	// MetricLogoutAll counts global logouts.
	MetricLogoutAll
	// MetricAccessRejected counts failed access-token verifications.
	MetricAccessRejected
	// MetricCsrfIssued counts issued CSRF tokens.
	MetricCsrfIssued
	// MetricCsrfRejected counts failed CSRF validations.
	MetricCsrfRejected
	// MetricResetRequested counts password-reset requests that issued a token.
	MetricResetRequested
	// MetricResetCompleted counts completed password resets.
	MetricResetCompleted
	// MetricResetFailed counts rejected reset completions.
	MetricResetFailed
	// MetricVerificationRequested counts email-verification requests.
	MetricVerificationRequested
	// MetricVerificationConfirmed counts confirmed email verifications.
	MetricVerificationConfirmed
	// MetricTwoFactorEnabled counts completed enrollments.
	MetricTwoFactorEnabled
	// MetricTwoFactorVerified counts successful second-factor checks.
	MetricTwoFactorVerified
	// MetricTwoFactorRejected counts failed second-factor checks.
	MetricTwoFactorRejected
	// MetricTwoFactorDisabled counts cleared enrollments.
	MetricTwoFactorDisabled
	// MetricBackupCodeConsumed counts spent backup codes.
	MetricBackupCodeConsumed

	metricCount
)

var metricNames = [metricCount]string{
	MetricLoginSuccess:           "login_success",
	MetricLoginFailure:           "login_failure",
	MetricLoginTwoFactorRequired: "login_two_factor_required",
	MetricRefreshSuccess:         "refresh_success",
	MetricRefreshFailure:         "refresh_failure",
	MetricLogout:                 "logout",
	MetricLogoutAll:              "logout_all",
	MetricAccessRejected:         "access_rejected",
	MetricCsrfIssued:             "csrf_issued",
	MetricCsrfRejected:           "csrf_rejected",
	MetricResetRequested:         "reset_requested",
	MetricResetCompleted:         "reset_completed",
	MetricResetFailed:            "reset_failed",
	MetricVerificationRequested:  "verification_requested",
	MetricVerificationConfirmed:  "verification_confirmed",
	MetricTwoFactorEnabled:       "two_factor_enabled",
	MetricTwoFactorVerified:      "two_factor_verified",
	MetricTwoFactorRejected:      "two_factor_rejected",
	MetricTwoFactorDisabled:      "two_factor_disabled",
	MetricBackupCodeConsumed:     "backup_code_consumed",
}

// String returns the snake_case metric name used by exporters.
func (id MetricID) String() string {
	if id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs lists every defined counter, for exporters.
func MetricIDs() []MetricID {
	out := make([]MetricID, metricCount)
	for i := range out {
		out[i] = MetricID(i)
	}
	return out
}

// Metrics holds lock-free counters. When disabled every operation is a
// no-op, so the hot path carries no cost for callers that scrape elsewhere.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

// NewMetrics builds the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc bumps one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot map[MetricID]uint64

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	out := make(MetricsSnapshot, metricCount)
	if m == nil {
		return out
	}
	for i := range m.counters {
		out[MetricID(i)] = m.counters[i].Load()
	}
	return out
}
