// Package otp implements the one-time-code challenge lifecycle: issuance
// with supersede-on-reissue, attempt-capped verification with constant-time
// code comparison, and one-shot success. Codes are hashed at rest; the
// plaintext exists only in the Issue return value.
package otp

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/afyadigital/gatekit/internal"
)

// Purpose scopes a challenge to the flow that issued it.
type Purpose string

const (
	PurposeSignup            Purpose = "signup"
	PurposeForgotPassword    Purpose = "forgot_password"
	PurposePhoneVerification Purpose = "phone_verification"
	PurposeEmailVerification Purpose = "email_verification"
)

var (
	// ErrExpired is returned when the challenge's TTL has elapsed.
	ErrExpired = errors.New("otp challenge expired")
	// ErrAttemptsExhausted is returned once attempts reach the cap,
	// regardless of code correctness.
	ErrAttemptsExhausted = errors.New("otp attempts exhausted")
	// ErrAlreadyVerified is returned when verifying a challenge that has
	// already succeeded.
	ErrAlreadyVerified = errors.New("otp challenge already verified")
	// ErrMismatch is returned for a wrong code, and for owners with no
	// live challenge so that probing cannot distinguish the two.
	ErrMismatch = errors.New("otp code mismatch")
	// ErrUnavailable wraps store timeouts and failures.
	ErrUnavailable = errors.New("otp store unavailable")
)

// Policy is the per-purpose tuning for challenges.
type Policy struct {
	TTL         time.Duration
	MaxAttempts int
	Digits      int
}

// Challenge is one issued code. VerifiedAt is set exactly once.
type Challenge struct {
	ID            string
	Owner         string
	Purpose       Purpose
	CodeHash      [32]byte
	Attempts      int
	MaxAttempts   int
	ExpiresAt     time.Time
	VerifiedAt    *time.Time
	IssuingIP     string
	IssuingDevice string
	CreatedAt     time.Time
}

// IssueMeta carries request provenance recorded on the challenge row.
type IssueMeta struct {
	IP     string
	Device string
}

// Store is the persistence contract. ReplaceChallenge must atomically
// supersede any prior challenge for (owner, purpose); IncrementAttempts
// must be atomic per row.
type Store interface {
	// ReplaceChallenge removes prior challenges for (owner, purpose) and
	// inserts the new one as a single operation.
	ReplaceChallenge(ctx context.Context, c *Challenge) error

	// LatestChallenge returns the current challenge for (owner, purpose),
	// verified or not, or nil when none exists.
	LatestChallenge(ctx context.Context, owner string, purpose Purpose) (*Challenge, error)

	// IncrementAttempts atomically bumps the attempt counter and returns
	// the new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	// MarkVerified sets verified_at if and only if it is still unset,
	// reporting whether this call won.
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)
}

// Manager issues and verifies challenges.
type Manager struct {
	store    Store
	policies map[Purpose]Policy
	def      Policy
}

// NewManager creates a Manager. policies maps purposes to their tuning;
// purposes without an entry use def.
func NewManager(store Store, policies map[Purpose]Policy, def Policy) *Manager {
	cloned := make(map[Purpose]Policy, len(policies))
	for k, v := range policies {
		cloned[k] = v
	}
	return &Manager{
		store:    store,
		policies: cloned,
		def:      def,
	}
}

// PolicyFor returns the effective policy for a purpose.
func (m *Manager) PolicyFor(purpose Purpose) Policy {
	if p, ok := m.policies[purpose]; ok {
		return p
	}
	return m.def
}

// Issue generates a fresh code for (owner, purpose), invalidating any prior
// live challenge. Resend is the same path: new code, attempts reset.
// The plaintext code is returned once and never stored.
func (m *Manager) Issue(ctx context.Context, owner string, purpose Purpose, meta IssueMeta, now time.Time) (string, *Challenge, error) {
	policy := m.PolicyFor(purpose)

	code, err := internal.NewNumericCode(policy.Digits)
	if err != nil {
		return "", nil, err
	}

	challenge := &Challenge{
		ID:            uuid.NewString(),
		Owner:         owner,
		Purpose:       purpose,
		Attempts:      0,
		MaxAttempts:   policy.MaxAttempts,
		ExpiresAt:     now.Add(policy.TTL),
		IssuingIP:     meta.IP,
		IssuingDevice: meta.Device,
		CreatedAt:     now,
	}
	challenge.CodeHash = hashCode(challenge.ID, code)

	if err := m.store.ReplaceChallenge(ctx, challenge); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return code, challenge, nil
}

// Verify checks a submitted code. Order of checks is load-bearing: expiry,
// then attempt exhaustion (before any comparison, so exhausted challenges
// leak no timing signal about the real code), then a counted, constant-time
// comparison. Success is one-shot.
func (m *Manager) Verify(ctx context.Context, owner string, purpose Purpose, code string, now time.Time) (*Challenge, error) {
	challenge, err := m.store.LatestChallenge(ctx, owner, purpose)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if challenge == nil {
		return nil, ErrMismatch
	}

	if challenge.VerifiedAt != nil {
		return challenge, ErrAlreadyVerified
	}
	if now.After(challenge.ExpiresAt) {
		return challenge, ErrExpired
	}
	if challenge.Attempts >= challenge.MaxAttempts {
		return challenge, ErrAttemptsExhausted
	}

	attempts, err := m.store.IncrementAttempts(ctx, challenge.ID)
	if err != nil {
		return challenge, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	challenge.Attempts = attempts
	if attempts > challenge.MaxAttempts {
		// Lost a race against concurrent submissions past the cap.
		return challenge, ErrAttemptsExhausted
	}

	submitted := hashCode(challenge.ID, code)
	if subtle.ConstantTimeCompare(submitted[:], challenge.CodeHash[:]) != 1 {
		return challenge, ErrMismatch
	}

	won, err := m.store.MarkVerified(ctx, challenge.ID, now)
	if err != nil {
		return challenge, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !won {
		return challenge, ErrAlreadyVerified
	}

	verifiedAt := now
	challenge.VerifiedAt = &verifiedAt
	return challenge, nil
}

// Remaining reports attempts left on a challenge, never below zero.
func (c *Challenge) Remaining() int {
	left := c.MaxAttempts - c.Attempts
	if left < 0 {
		return 0
	}
	return left
}

func hashCode(challengeID, code string) [32]byte {
	return sha256.Sum256([]byte(challengeID + ":" + code))
}
