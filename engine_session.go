package gatekit

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/internal"
	"github.com/afyadigital/gatekit/session"
)

// CreateSession opens a session for an already-authenticated user and
// issues its token pair. When SingleSessionPerDevice is set, any prior
// active session for the same user and fingerprint is closed first. The
// user's refresh token is replaced wholesale: exactly one refresh
// credential exists per user at any time.
func (e *Engine) CreateSession(ctx context.Context, userID string, rc RequestContext) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := rc.Now
	if now.IsZero() {
		now = time.Now()
	}

	if e.config.Session.SingleSessionPerDevice && rc.Fingerprint != "" {
		closed, err := e.sessions.CloseActiveForDevice(ctx, userID, rc.Fingerprint, session.LogoutSuperseded, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if closed > 0 {
			e.metricInc(MetricSessionSuperseded)
		}
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	s := &session.Session{
		ID:           sid.String(),
		UserID:       userID,
		IP:           rc.IP,
		Fingerprint:  rc.Fingerprint,
		Active:       true,
		LastActivity: now,
		ExpiresAt:    now.Add(e.config.Session.TTL),
		CreatedAt:    now,
	}
	if err := e.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pair, err := e.issueTokens(ctx, s, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType:   "session_create",
		UserID:      userID,
		SessionID:   s.ID,
		IP:          rc.IP,
		Fingerprint: rc.Fingerprint,
		Success:     true,
	})

	return pair, nil
}

// Refresh rotates the opaque refresh credential and mints a new access
// token. Presenting a replaced, deleted, or unknown token fails with
// ErrInvalidRefreshToken and is recorded as a possible replay.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, rc RequestContext) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := rc.Now
	if now.IsZero() {
		now = time.Now()
	}

	tokenID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshRejected)
		return nil, ErrInvalidRefreshToken
	}

	record, err := e.sessions.RefreshTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.noteRefreshRejected(ctx, rc, now)
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if now.After(record.ExpiresAt) {
		_ = e.sessions.DeleteRefreshToken(ctx, record.UserID)
		e.noteRefreshRejected(ctx, rc, now)
		return nil, ErrInvalidRefreshToken
	}

	submitted := internal.HashRefreshSecret(secret)
	if subtle.ConstantTimeCompare(submitted[:], record.SecretHash[:]) != 1 {
		e.noteRefreshRejected(ctx, rc, now)
		return nil, ErrInvalidRefreshToken
	}

	s, err := e.sessions.Get(ctx, record.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !s.Live(now) {
		return nil, ErrSessionExpired
	}

	if e.config.Session.ExtendOnRefresh {
		if _, err := e.sessions.Extend(ctx, s.ID, now.Add(e.config.Session.TTL), now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if err := e.sessions.Touch(ctx, s.ID, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pair, err := e.issueTokens(ctx, s, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionRefreshed)
	e.emitAudit(ctx, AuditEvent{
		EventType: "session_refresh",
		UserID:    s.UserID,
		SessionID: s.ID,
		IP:        rc.IP,
		Success:   true,
	})

	return pair, nil
}

// ValidateAccess parses the access token, confirms its session is still
// live, and advances the session's activity marker. When both the token
// and the request carry a fingerprint they must match.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken, fingerprint string) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}

	if claims.FPH != "" && fingerprint != "" {
		fph := internal.HashFingerprint(fingerprint)
		if subtle.ConstantTimeCompare([]byte(claims.FPH), []byte(hex.EncodeToString(fph[:]))) != 1 {
			e.metricInc(MetricTokenRejected)
			e.recorder.Record(ctx, events.Event{
				Type:        "token_fingerprint_mismatch",
				Severity:    events.SeverityHigh,
				UserID:      claims.UID,
				Fingerprint: fingerprint,
			})
			return nil, ErrTokenInvalid
		}
	}

	s, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	if !s.Live(now) {
		if s.Active {
			// Lazy expiry: flag the row so later reads agree.
			_, _ = e.sessions.Close(ctx, s.ID, session.LogoutExpired, now)
		}
		return nil, ErrSessionExpired
	}

	if err := e.sessions.Touch(ctx, s.ID, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.LastActivity = now

	return s, nil
}

// Logout closes the session and revokes the user's refresh token. Closing
// an already closed session is a no-op.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	closed, err := e.sessions.Close(ctx, sessionID, session.LogoutManual, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if closed {
		if err := e.sessions.DeleteRefreshToken(ctx, s.UserID); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, AuditEvent{
			EventType: "logout",
			UserID:    s.UserID,
			SessionID: sessionID,
			Success:   true,
		})
	}

	return nil
}

// RevokeUserSessions closes every active session for the user and deletes
// their refresh token. Used for security response and administrative
// lockout; the reason is stamped on each closed row.
func (e *Engine) RevokeUserSessions(ctx context.Context, userID string, reason LogoutReason) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	now := time.Now()
	closed, err := e.sessions.CloseAllForUser(ctx, userID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := e.sessions.DeleteRefreshToken(ctx, userID); err != nil {
		return closed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if closed > 0 {
		e.metricInc(MetricSessionRevoked)
	}
	e.recorder.Record(ctx, events.Event{
		Type:      "sessions_revoked",
		Severity:  events.SeverityMedium,
		UserID:    userID,
		Data:      map[string]any{"count": closed, "reason": string(reason)},
		CreatedAt: now,
	})
	e.emitAudit(ctx, AuditEvent{
		EventType: "sessions_revoked",
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"reason": string(reason)},
	})

	return closed, nil
}

// ActiveSessions lists the user's currently active sessions.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	list, err := e.sessions.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return list, nil
}

func (e *Engine) issueTokens(ctx context.Context, s *session.Session, now time.Time) (*TokenPair, error) {
	tokenID, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	refreshExpiry := now.Add(e.config.JWT.RefreshTTL)
	record := &session.RefreshToken{
		TokenID:    tokenID.String(),
		UserID:     s.UserID,
		SecretHash: internal.HashRefreshSecret(secret),
		SessionID:  s.ID,
		ExpiresAt:  refreshExpiry,
		CreatedAt:  now,
	}
	if err := e.sessions.ReplaceRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	opaque, err := internal.EncodeRefreshToken(tokenID.String(), secret)
	if err != nil {
		return nil, err
	}

	fph := ""
	if s.Fingerprint != "" {
		sum := internal.HashFingerprint(s.Fingerprint)
		fph = hex.EncodeToString(sum[:])
	}

	access, err := e.jwtManager.CreateAccess(s.UserID, s.ID, fph)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     opaque,
		SessionID:        s.ID,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (e *Engine) noteRefreshRejected(ctx context.Context, rc RequestContext, now time.Time) {
	e.metricInc(MetricRefreshRejected)
	e.recorder.Record(ctx, events.Event{
		Type:        "refresh_rejected",
		Severity:    events.SeverityMedium,
		IP:          rc.IP,
		Fingerprint: rc.Fingerprint,
		CreatedAt:   now,
	})
}
