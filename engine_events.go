package gatekit

import (
	"context"
	"time"
)

// RecordEvent appends a security event on behalf of the embedding app.
// Recording never fails the caller: on store trouble the event is dropped
// and counted. The returned string is the event's assigned ID.
func (e *Engine) RecordEvent(ctx context.Context, event SecurityEvent) string {
	if e == nil {
		return ""
	}

	before := e.recorder.Dropped()
	id := e.recorder.Record(ctx, event)
	if e.recorder.Dropped() > before {
		e.metricInc(MetricEventDropped)
	} else {
		e.metricInc(MetricEventRecorded)
	}
	return id
}

// RecentEventCount reports how many events at or above min severity the IP
// produced inside the trailing window.
func (e *Engine) RecentEventCount(ctx context.Context, ip string, min Severity, window time.Duration) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	return e.recorder.CountRecent(ctx, ip, min, time.Now(), window)
}

// SevereEventCount reports high-or-critical events for a fingerprint since
// the given instant.
func (e *Engine) SevereEventCount(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	return e.recorder.SevereEventCount(ctx, fingerprint, since)
}
