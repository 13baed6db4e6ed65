package gatekit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single counter or histogram slot in the in-process
// metrics system.
type MetricID uint16

const (
	// MetricAdmissionAllowed counts requests admitted by Evaluate.
	MetricAdmissionAllowed MetricID = iota
	// MetricAdmissionDenied counts requests denied by Evaluate for any reason.
	MetricAdmissionDenied
	// MetricRateLimitHit counts window-ceiling denials.
	MetricRateLimitHit
	// MetricOffenderBlocked counts denials caused by an extended offender block.
	MetricOffenderBlocked
	// MetricDeviceBlocked counts denials caused by a blocked device fingerprint.
	MetricDeviceBlocked
	// MetricDeviceAutoBlocked counts devices flipped to blocked by risk scoring.
	MetricDeviceAutoBlocked
	// MetricSuspicionBlocked counts denials driven by the security-event feed.
	MetricSuspicionBlocked
	// MetricOTPIssued counts issued challenges.
	MetricOTPIssued
	// MetricOTPVerified counts successful verifications.
	MetricOTPVerified
	// MetricOTPMismatch counts wrong-code submissions.
	MetricOTPMismatch
	// MetricOTPExpired counts submissions against expired challenges.
	MetricOTPExpired
	// MetricOTPExhausted counts submissions against exhausted challenges.
	MetricOTPExhausted
	// MetricSessionCreated counts sessions opened at login.
	MetricSessionCreated
	// MetricSessionSuperseded counts sessions closed by a re-login on the same device.
	MetricSessionSuperseded
	// MetricSessionRefreshed counts successful token refreshes.
	MetricSessionRefreshed
	// MetricRefreshRejected counts refresh attempts with unknown or superseded tokens.
	MetricRefreshRejected
	// MetricSessionRevoked counts security/admin revocations.
	MetricSessionRevoked
	// MetricTokenRejected counts access tokens failing signature, expiry,
	// or fingerprint checks.
	MetricTokenRejected
	// MetricLogout counts manual logouts.
	MetricLogout
	// MetricEventRecorded counts security events written to the store.
	MetricEventRecorded
	// MetricEventDropped counts security events lost to store failures.
	MetricEventDropped
	// MetricStoreUnavailable counts store timeouts/failures seen by the gate.
	MetricStoreUnavailable
	// MetricEvaluateLatency is the Evaluate latency histogram slot.
	MetricEvaluateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and an optional Evaluate latency
// histogram. All methods are safe for concurrent use and allocation-free
// on the write path.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metric values.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc atomically increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only MetricEvaluateLatency carries a
// histogram; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricEvaluateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot deep-copies all counters and histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricEvaluateLatency].buckets[i])
		}
		s.Histograms[MetricEvaluateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
