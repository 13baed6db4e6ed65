// Package ratelimit implements fixed-window request accounting keyed by
// (identifier, endpoint), with identifier-scoped extended blocks for repeat
// offenders. Window state lives in a pluggable Store so that the increment
// path can be a single atomic upsert against the shared database.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable wraps store timeouts and failures.
	ErrUnavailable = errors.New("rate limit store unavailable")
)

// Policy is the per-endpoint tuning for the ledger. OffenderThreshold and
// OffenderBlock layer an identifier-wide block on top of window blocks:
// once an identifier accumulates OffenderThreshold blocked windows inside
// OffenderLookback, it is blocked across all endpoints for OffenderBlock.
type Policy struct {
	Window            time.Duration
	Ceiling           int
	OffenderThreshold int
	OffenderLookback  time.Duration
	OffenderBlock     time.Duration
}

// Window is one fixed-window counter row. At most one open window exists
// per (identifier, endpoint) pair; the store enforces uniqueness on
// (identifier, endpoint, window_start).
type Window struct {
	Identifier   string
	Endpoint     string
	WindowStart  time.Time
	WindowEnd    time.Time
	RequestCount int
	Blocked      bool
	BlockReason  string
}

// Block is an extended, endpoint-independent block record for a repeat
// offender identifier.
type Block struct {
	Identifier string
	Reason     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Store is the persistence contract for the ledger. IncrementWindow must be
// atomic per (identifier, endpoint, windowStart): a conditional
// upsert-and-increment, never read-then-write.
type Store interface {
	// IncrementWindow creates the window row with request_count=1 or
	// atomically increments an existing one, returning the updated row.
	IncrementWindow(ctx context.Context, identifier, endpoint string, windowStart, windowEnd time.Time) (*Window, error)

	// MarkWindowBlocked flags an open window. Idempotent: re-flagging an
	// already blocked window is a no-op.
	MarkWindowBlocked(ctx context.Context, identifier, endpoint string, windowStart time.Time, reason string) error

	// BlockedWindowCount counts blocked windows for an identifier across
	// all endpoints with window_start >= since.
	BlockedWindowCount(ctx context.Context, identifier string, since time.Time) (int, error)

	// UpsertBlock inserts or extends the identifier's extended block.
	UpsertBlock(ctx context.Context, block *Block) error

	// ActiveBlock returns the unexpired extended block for the identifier,
	// or nil when none exists.
	ActiveBlock(ctx context.Context, identifier string, now time.Time) (*Block, error)

	// PurgeWindows deletes non-blocked windows whose window_end has passed.
	PurgeWindows(ctx context.Context, before time.Time) (int, error)

	// PurgeBlocks deletes extended blocks whose expiry has passed.
	PurgeBlocks(ctx context.Context, before time.Time) (int, error)
}

// Result is the ledger's answer for a single identifier/endpoint check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Reason     string
}

// Block reasons surfaced in Result.Reason and stored on window and block
// rows.
const (
	ReasonCeiling  = "window ceiling exceeded"
	ReasonOffender = "repeat offender"
)

// Ledger answers allow/deny per (identifier, endpoint) using fixed windows.
type Ledger struct {
	store    Store
	policies map[string]Policy
	def      Policy
}

// NewLedger creates a ledger over the given store. policies maps endpoint
// names to their tuning; endpoints without an entry use def.
func NewLedger(store Store, policies map[string]Policy, def Policy) *Ledger {
	cloned := make(map[string]Policy, len(policies))
	for k, v := range policies {
		cloned[k] = v
	}
	return &Ledger{
		store:    store,
		policies: cloned,
		def:      def,
	}
}

// PolicyFor returns the effective policy for an endpoint.
func (l *Ledger) PolicyFor(endpoint string) Policy {
	if p, ok := l.policies[endpoint]; ok {
		return p
	}
	return l.def
}

// CheckAndIncrement counts the request against the identifier's current
// window and answers whether it is allowed. A denied request still costs a
// counted attempt; re-checking inside a blocked window never resets the
// counter.
func (l *Ledger) CheckAndIncrement(ctx context.Context, identifier, endpoint string, now time.Time) (Result, error) {
	policy := l.PolicyFor(endpoint)

	if block, err := l.store.ActiveBlock(ctx, identifier, now); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	} else if block != nil {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: block.ExpiresAt.Sub(now),
			Reason:     block.Reason,
		}, nil
	}

	windowStart := now.Truncate(policy.Window)
	windowEnd := windowStart.Add(policy.Window)

	w, err := l.store.IncrementWindow(ctx, identifier, endpoint, windowStart, windowEnd)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if w.Blocked || w.RequestCount > policy.Ceiling {
		retryAfter := windowEnd.Sub(now)

		if !w.Blocked {
			if err := l.store.MarkWindowBlocked(ctx, identifier, endpoint, windowStart, ReasonCeiling); err != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}

			if extended, expiry, err := l.escalateOffender(ctx, identifier, policy, now); err != nil {
				return Result{}, err
			} else if extended {
				return Result{
					Allowed:    false,
					Remaining:  0,
					RetryAfter: expiry.Sub(now),
					Reason:     ReasonOffender,
				}, nil
			}
		}

		reason := w.BlockReason
		if reason == "" {
			reason = ReasonCeiling
		}
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retryAfter,
			Reason:     reason,
		}, nil
	}

	return Result{
		Allowed:   true,
		Remaining: policy.Ceiling - w.RequestCount,
	}, nil
}

func (l *Ledger) escalateOffender(ctx context.Context, identifier string, policy Policy, now time.Time) (bool, time.Time, error) {
	if policy.OffenderThreshold <= 0 || policy.OffenderBlock <= 0 {
		return false, time.Time{}, nil
	}

	lookback := policy.OffenderLookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}

	strikes, err := l.store.BlockedWindowCount(ctx, identifier, now.Add(-lookback))
	if err != nil {
		return false, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if strikes < policy.OffenderThreshold {
		return false, time.Time{}, nil
	}

	expiresAt := now.Add(policy.OffenderBlock)
	block := &Block{
		Identifier: identifier,
		Reason:     ReasonOffender,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	if err := l.store.UpsertBlock(ctx, block); err != nil {
		return false, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return true, expiresAt, nil
}

// Sweep purges closed, unblocked windows and expired extended blocks,
// bounding storage growth. Blocked windows survive until their offender
// lookback no longer needs them.
func (l *Ledger) Sweep(ctx context.Context, now time.Time) (int, error) {
	purged, err := l.store.PurgeWindows(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	blocks, err := l.store.PurgeBlocks(ctx, now)
	if err != nil {
		return purged, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return purged + blocks, nil
}
