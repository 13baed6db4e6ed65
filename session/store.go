package session

import (
	"context"
	"time"
)

// Store is the persistence contract for sessions and refresh tokens.
//
// Transition methods are compare-and-set on the active flag: a session that
// already left the active state must never be reactivated or re-closed, and
// callers learn via the returned bool whether their call performed the
// transition.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, s *Session) error

	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Touch advances last_activity on an active session. Touching an
	// inactive session is a no-op.
	Touch(ctx context.Context, sessionID string, at time.Time) error

	// Extend pushes expires_at forward on an active, unexpired session,
	// reporting whether the extension was applied.
	Extend(ctx context.Context, sessionID string, expiresAt, now time.Time) (bool, error)

	// Close transitions the session to inactive with the given reason,
	// reporting whether this call performed the transition.
	Close(ctx context.Context, sessionID string, reason LogoutReason, at time.Time) (bool, error)

	// CloseActiveForDevice closes any active sessions for (userID,
	// fingerprint) and returns how many were closed.
	CloseActiveForDevice(ctx context.Context, userID, fingerprint string, reason LogoutReason, at time.Time) (int, error)

	// CloseAllForUser closes every active session for the user.
	CloseAllForUser(ctx context.Context, userID string, reason LogoutReason, at time.Time) (int, error)

	// ExpireDue closes active sessions whose expires_at has passed,
	// marking them with LogoutExpired. Returns how many were closed.
	ExpireDue(ctx context.Context, now time.Time) (int, error)

	// ActiveForUser lists the user's active sessions.
	ActiveForUser(ctx context.Context, userID string) ([]*Session, error)

	// ReplaceRefreshToken deletes any existing refresh token for
	// t.UserID and inserts t as a single operation.
	ReplaceRefreshToken(ctx context.Context, t *RefreshToken) error

	// RefreshTokenByID returns the token row or ErrNotFound. A replaced
	// or deleted token is indistinguishable from one that never existed.
	RefreshTokenByID(ctx context.Context, tokenID string) (*RefreshToken, error)

	// DeleteRefreshToken removes the user's refresh token if present.
	DeleteRefreshToken(ctx context.Context, userID string) error
}
