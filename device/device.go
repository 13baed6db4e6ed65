// Package device tracks client device fingerprints and maintains a 0-100
// risk score per device. Scoring is deterministic and rule-based: velocity
// signals (distinct users per device, distinct devices per IP) come from
// short-lived redis sets, drift and history signals from the device row and
// the security-event log. Crossing the block threshold flips is_blocked via
// a store compare-and-set; the flag never clears automatically.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"
)

var (
	// ErrNotFound is returned for lookups of unknown fingerprints.
	ErrNotFound = errors.New("device not found")
	// ErrUnavailable wraps store timeouts and failures.
	ErrUnavailable = errors.New("device store unavailable")
)

// Device is one tracked fingerprint row.
type Device struct {
	Fingerprint   string
	UserID        string
	UserAgentHash string
	VisitCount    int64
	Trusted       bool
	Blocked       bool
	RiskScore     int
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Observation is the per-request context a sighting is scored against.
type Observation struct {
	IP        string
	UserID    string
	UserAgent string
	Now       time.Time
}

// Assessment is the outcome of one Observe call. AutoBlocked is true only
// on the observation that performed the block transition.
type Assessment struct {
	Score       int
	Blocked     bool
	AutoBlocked bool
	Trusted     bool
	Factors     map[string]int
}

// Store is the persistence contract for device rows. SetBlocked must be a
// compare-and-set so concurrent observers cannot both decide to flip it.
type Store interface {
	// UpsertVisit inserts the fingerprint on first sight (visit_count=1)
	// or increments visit_count and advances last_seen, binding userID and
	// the user-agent hash when provided. It returns the row as it was
	// BEFORE this visit was applied (nil on first sight) so the caller can
	// detect drift, plus the updated row.
	UpsertVisit(ctx context.Context, fingerprint string, obs Observation, uaHash string) (prior *Device, current *Device, err error)

	// UpdateScore persists a recomputed risk score.
	UpdateScore(ctx context.Context, fingerprint string, score int) error

	// SetBlocked flips is_blocked only when its current value differs,
	// reporting whether this call performed the transition.
	SetBlocked(ctx context.Context, fingerprint string, blocked bool) (bool, error)

	// SetTrusted marks or unmarks the device as trusted.
	SetTrusted(ctx context.Context, fingerprint string, trusted bool) error

	// Get returns the device row or ErrNotFound.
	Get(ctx context.Context, fingerprint string) (*Device, error)
}

// EventHistory is the slice of the security-event log the tracker consults.
// Implemented by the event recorder.
type EventHistory interface {
	SevereEventCount(ctx context.Context, fingerprint string, since time.Time) (int, error)
}

// ScoringConfig holds the policy parameters of the rule-based scorer.
// Thresholds and weights are policy, not contract.
type ScoringConfig struct {
	BlockThreshold     int
	VelocityWindow     time.Duration
	MaxUsersPerDevice  int
	MaxDevicesPerIP    int
	UserVelocityWeight int
	IPVelocityWeight   int
	UADriftWeight      int
	SevereEventWeight  int
	SevereEventCap     int
	EventLookback      time.Duration
}

// Tracker observes sightings and maintains risk state.
type Tracker struct {
	store    Store
	velocity *Velocity
	history  EventHistory
	cfg      ScoringConfig
}

// NewTracker creates a Tracker. velocity and history may be nil; the
// corresponding factors then contribute zero.
func NewTracker(store Store, velocity *Velocity, history EventHistory, cfg ScoringConfig) *Tracker {
	return &Tracker{
		store:    store,
		velocity: velocity,
		history:  history,
		cfg:      cfg,
	}
}

// Observe registers a sighting of the fingerprint and recomputes its risk
// score. The score moves both ways as signals come and go, but a blocked
// device stays blocked until explicitly cleared.
func (t *Tracker) Observe(ctx context.Context, fingerprint string, obs Observation) (*Assessment, error) {
	if obs.Now.IsZero() {
		obs.Now = time.Now()
	}

	uaHash := ""
	if obs.UserAgent != "" {
		uaHash = hashAttribute(obs.UserAgent)
	}

	prior, current, err := t.store.UpsertVisit(ctx, fingerprint, obs, uaHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	usersOnDevice, devicesBehindIP, err := t.velocity.Touch(ctx, fingerprint, obs.UserID, obs.IP)
	if err != nil {
		// Velocity signals are advisory; score without them rather than
		// failing the observation.
		log.Printf("gatekit: velocity signals unavailable for %q, scoring without them: %v", fingerprint, err)
		usersOnDevice, devicesBehindIP = 0, 0
	}

	factors := map[string]int{}

	if t.cfg.MaxUsersPerDevice > 0 && usersOnDevice > t.cfg.MaxUsersPerDevice {
		factors["user_velocity"] = (usersOnDevice - t.cfg.MaxUsersPerDevice) * t.cfg.UserVelocityWeight
	}
	if t.cfg.MaxDevicesPerIP > 0 && devicesBehindIP > t.cfg.MaxDevicesPerIP {
		factors["ip_velocity"] = (devicesBehindIP - t.cfg.MaxDevicesPerIP) * t.cfg.IPVelocityWeight
	}
	if prior != nil && prior.UserAgentHash != "" && uaHash != "" && prior.UserAgentHash != uaHash {
		factors["ua_drift"] = t.cfg.UADriftWeight
	}
	if t.history != nil && t.cfg.SevereEventWeight > 0 {
		lookback := t.cfg.EventLookback
		if lookback <= 0 {
			lookback = 24 * time.Hour
		}
		severe, err := t.history.SevereEventCount(ctx, fingerprint, obs.Now.Add(-lookback))
		if err == nil && severe > 0 {
			weight := severe * t.cfg.SevereEventWeight
			if t.cfg.SevereEventCap > 0 && weight > t.cfg.SevereEventCap {
				weight = t.cfg.SevereEventCap
			}
			factors["event_history"] = weight
		}
	}

	score := 0
	for _, v := range factors {
		score += v
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	if err := t.store.UpdateScore(ctx, fingerprint, score); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	blocked := current.Blocked
	autoBlocked := false
	if !blocked && t.cfg.BlockThreshold > 0 && score >= t.cfg.BlockThreshold {
		changed, err := t.store.SetBlocked(ctx, fingerprint, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		blocked = true
		autoBlocked = changed
	}

	return &Assessment{
		Score:       score,
		Blocked:     blocked,
		AutoBlocked: autoBlocked,
		Trusted:     current.Trusted,
		Factors:     factors,
	}, nil
}

// Block force-blocks a fingerprint regardless of score.
func (t *Tracker) Block(ctx context.Context, fingerprint string) error {
	if _, err := t.store.SetBlocked(ctx, fingerprint, true); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Unblock clears the block flag. This is the only path out of the blocked
// state; scoring never unblocks.
func (t *Tracker) Unblock(ctx context.Context, fingerprint string) error {
	if _, err := t.store.SetBlocked(ctx, fingerprint, false); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Trust marks a device trusted. Trust is advisory metadata for the
// embedding app; it does not bypass blocks.
func (t *Tracker) Trust(ctx context.Context, fingerprint string, trusted bool) error {
	if err := t.store.SetTrusted(ctx, fingerprint, trusted); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the current device row.
func (t *Tracker) Get(ctx context.Context, fingerprint string) (*Device, error) {
	d, err := t.store.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return d, nil
}

func hashAttribute(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
