package gatekit

import (
	"context"
	"time"

	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/jwt"
	"github.com/afyadigital/gatekit/otp"
	"github.com/afyadigital/gatekit/ratelimit"
	"github.com/afyadigital/gatekit/session"
)

// Engine is the built, immutable entry point. All fields are wired by the
// builder; methods are safe for concurrent use.
type Engine struct {
	config     Config
	ledger     *ratelimit.Ledger
	otpManager *otp.Manager
	tracker    *device.Tracker
	recorder   *events.Recorder
	sessions   session.Store
	jwtManager *jwt.Manager
	audit      *auditDispatcher
	metrics    *Metrics

	failClosed map[string]struct{}
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) failsClosed(endpoint string) bool {
	_, ok := e.failClosed[endpoint]
	return ok
}

// Sweep removes expired window, block, and session rows. Embedders call it
// on their own schedule; the engine starts no background sweeper.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	now := time.Now()

	purged, err := e.ledger.Sweep(ctx, now)
	if err != nil {
		return purged, err
	}

	expired, err := e.sessions.ExpireDue(ctx, now)
	if err != nil {
		return purged, err
	}

	return purged + expired, nil
}
