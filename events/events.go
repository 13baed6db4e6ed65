// Package events is the append-only security-event log. Recording is
// best-effort by contract: a store failure is logged locally and swallowed
// so that observability never blocks business traffic. Windowed severity
// counts feed the admission gate's block decisions.
package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Severity ranks how security-relevant an event is.
type Severity uint8

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ErrUnavailable wraps store timeouts and failures on the query path.
var ErrUnavailable = errors.New("event store unavailable")

// Event is one security-relevant occurrence. Rows are never mutated after
// creation. The three blob fields are schema-less on purpose: new signal
// types must not require a migration.
type Event struct {
	ID          string
	Type        string
	Severity    Severity
	UserID      string
	IP          string
	Fingerprint string
	Endpoint    string
	Data        map[string]any
	Network     map[string]any
	Geo         map[string]any
	Blocked     bool
	CreatedAt   time.Time
}

// Store is the persistence contract for the event log.
type Store interface {
	// Append inserts the event. Events are write-once.
	Append(ctx context.Context, e *Event) error

	// CountByIP counts events for an IP at or above min severity with
	// created_at >= since.
	CountByIP(ctx context.Context, ip string, min Severity, since time.Time) (int, error)

	// CountByFingerprint is CountByIP keyed by device fingerprint.
	CountByFingerprint(ctx context.Context, fingerprint string, min Severity, since time.Time) (int, error)
}

// Recorder writes events and answers windowed queries.
type Recorder struct {
	store   Store
	dropped atomic.Uint64
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record assigns the event an ID and timestamp and appends it. It never
// returns an error: on store failure the event is dropped with a local
// log line and the assigned ID is still returned.
func (r *Recorder) Record(ctx context.Context, e Event) string {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.ID = ulid.MustNew(ulid.Timestamp(e.CreatedAt), ulid.DefaultEntropy()).String()

	if r == nil || r.store == nil {
		return e.ID
	}

	if err := r.store.Append(ctx, &e); err != nil {
		r.dropped.Add(1)
		log.Printf("gatekit: security event dropped: %v", err)
	}

	return e.ID
}

// Dropped reports how many events were lost to store failures.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// CountRecent counts events for an IP at or above min severity inside the
// window trailing now. Callers thread their own clock so the check stays
// deterministic. Unlike Record, query failures propagate: the caller owns
// the fail-open/fail-closed decision.
func (r *Recorder) CountRecent(ctx context.Context, ip string, min Severity, now time.Time, window time.Duration) (int, error) {
	if r == nil || r.store == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now()
	}
	n, err := r.store.CountByIP(ctx, ip, min, now.Add(-window))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// SevereEventCount counts high/critical events for a fingerprint since the
// given instant. Satisfies the device tracker's EventHistory.
func (r *Recorder) SevereEventCount(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	if r == nil || r.store == nil {
		return 0, nil
	}
	n, err := r.store.CountByFingerprint(ctx, fingerprint, SeverityHigh, since)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
