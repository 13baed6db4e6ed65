// Package internaldefs holds the shared name/help tables the metric
// exporters render from. Internal to the export packages; the IDs map
// straight onto the engine's counter slots.
package internaldefs

import (
	gatekit "github.com/afyadigital/gatekit"
)

// CounterDef binds an engine counter slot to its exported name.
type CounterDef struct {
	ID   gatekit.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram slot to its exported name.
type HistogramDef struct {
	ID   gatekit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: gatekit.MetricAdmissionAllowed, Name: "gatekit_admission_allowed_total", Help: "Requests admitted by the gate."},
	{ID: gatekit.MetricAdmissionDenied, Name: "gatekit_admission_denied_total", Help: "Requests denied by the gate."},
	{ID: gatekit.MetricRateLimitHit, Name: "gatekit_rate_limit_hit_total", Help: "Denials caused by window ceilings."},
	{ID: gatekit.MetricOffenderBlocked, Name: "gatekit_offender_blocked_total", Help: "Denials caused by extended offender blocks."},
	{ID: gatekit.MetricDeviceBlocked, Name: "gatekit_device_blocked_total", Help: "Denials caused by blocked device fingerprints."},
	{ID: gatekit.MetricDeviceAutoBlocked, Name: "gatekit_device_auto_blocked_total", Help: "Devices blocked automatically by risk scoring."},
	{ID: gatekit.MetricSuspicionBlocked, Name: "gatekit_suspicion_blocked_total", Help: "Denials driven by the security-event feed."},
	{ID: gatekit.MetricOTPIssued, Name: "gatekit_otp_issued_total", Help: "Issued OTP challenges."},
	{ID: gatekit.MetricOTPVerified, Name: "gatekit_otp_verified_total", Help: "Successful OTP verifications."},
	{ID: gatekit.MetricOTPMismatch, Name: "gatekit_otp_mismatch_total", Help: "Wrong-code OTP submissions."},
	{ID: gatekit.MetricOTPExpired, Name: "gatekit_otp_expired_total", Help: "Submissions against expired challenges."},
	{ID: gatekit.MetricOTPExhausted, Name: "gatekit_otp_exhausted_total", Help: "Submissions against exhausted challenges."},
	{ID: gatekit.MetricSessionCreated, Name: "gatekit_session_created_total", Help: "Sessions opened at login."},
	{ID: gatekit.MetricSessionSuperseded, Name: "gatekit_session_superseded_total", Help: "Sessions closed by re-login on the same device."},
	{ID: gatekit.MetricSessionRefreshed, Name: "gatekit_session_refreshed_total", Help: "Successful token refreshes."},
	{ID: gatekit.MetricRefreshRejected, Name: "gatekit_refresh_rejected_total", Help: "Refresh attempts with unknown or superseded tokens."},
	{ID: gatekit.MetricSessionRevoked, Name: "gatekit_session_revoked_total", Help: "Security and admin session revocations."},
	{ID: gatekit.MetricTokenRejected, Name: "gatekit_token_rejected_total", Help: "Access tokens failing validation."},
	{ID: gatekit.MetricLogout, Name: "gatekit_logout_total", Help: "Manual logouts."},
	{ID: gatekit.MetricEventRecorded, Name: "gatekit_event_recorded_total", Help: "Security events written to the store."},
	{ID: gatekit.MetricEventDropped, Name: "gatekit_event_dropped_total", Help: "Security events lost to store failures."},
	{ID: gatekit.MetricStoreUnavailable, Name: "gatekit_store_unavailable_total", Help: "Store failures seen by the gate."},
}

var HistogramDefs = []HistogramDef{
	{ID: gatekit.MetricEvaluateLatency, Name: "gatekit_evaluate_latency_seconds", Help: "Evaluate latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// 8-bucket layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms use.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
