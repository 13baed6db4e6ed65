// Package session defines the persisted session and refresh-token records
// and their store contract. Lifecycle orchestration (issuance, rotation,
// supersession) lives in the engine; this package owns the state machine
// rules the stores must uphold.
package session

import (
	"errors"
	"time"
)

// LogoutReason explains why a session left the active state.
type LogoutReason string

const (
	LogoutManual     LogoutReason = "manual"
	LogoutExpired    LogoutReason = "expired"
	LogoutSecurity   LogoutReason = "security"
	LogoutAdmin      LogoutReason = "admin"
	LogoutSuperseded LogoutReason = "superseded"
)

var (
	// ErrNotFound is returned for lookups of unknown session or token IDs.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps store timeouts and failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Session is one authenticated session row. Once Active is false the row
// is terminal: stores must reject further transitions.
type Session struct {
	ID           string
	UserID       string
	IP           string
	Fingerprint  string
	Active       bool
	LastActivity time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LogoutAt     *time.Time
	LogoutReason LogoutReason
}

// Live reports whether the session is active and unexpired at the given
// instant.
func (s *Session) Live(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// RefreshToken is the server-side record of an opaque refresh credential.
// Only the secret's hash is stored; the store keeps at most one row per
// user, replaced wholesale on each issuance.
type RefreshToken struct {
	TokenID    string
	UserID     string
	SecretHash [32]byte
	SessionID  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
