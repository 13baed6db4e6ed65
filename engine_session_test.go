package gatekit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func sessionRequest(fingerprint string) RequestContext {
	return RequestContext{
		IP:          "203.0.113.5",
		Fingerprint: fingerprint,
		Endpoint:    "login",
	}
}

func TestCreateSessionIssuesTokenPair(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.SessionID == "" {
		t.Fatalf("incomplete token pair: %+v", pair)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatal("refresh credential must outlive the access token")
	}

	sessions, err := engine.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != pair.SessionID {
		t.Fatalf("expected one active session %s, got %+v", pair.SessionID, sessions)
	}
}

func TestCreateSessionSupersedesSameDevice(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("second CreateSession failed: %v", err)
	}

	sessions, err := engine.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected single active session per device, got %d", len(sessions))
	}
	if sessions[0].ID != second.SessionID {
		t.Fatal("the newer session should survive")
	}

	// The superseded session is closed; its access token no longer works.
	if _, err := engine.ValidateAccess(ctx, first.AccessToken, "fp-1"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for superseded session, got %v", err)
	}
}

func TestCreateSessionDifferentDevicesCoexist(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-phone")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-laptop")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sessions, err := engine.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected two active sessions, got %d", len(sessions))
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	rotated, err := engine.Refresh(ctx, pair.RefreshToken, sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must rotate the opaque credential")
	}
	if rotated.SessionID != pair.SessionID {
		t.Fatal("refresh must keep the session")
	}

	// The consumed credential is dead.
	if _, err := engine.Refresh(ctx, pair.RefreshToken, sessionRequest("fp-1")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on replay, got %v", err)
	}
}

func TestSecondLoginInvalidatesFirstRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-phone"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-laptop")); err != nil {
		t.Fatalf("second CreateSession failed: %v", err)
	}

	// One refresh credential per user: the second login replaced it.
	if _, err := engine.Refresh(ctx, first.RefreshToken, sessionRequest("fp-phone")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	if _, err := engine.Refresh(context.Background(), "not-a-token", sessionRequest("fp-1")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshRejectsTamperedSecret(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Flip a character in the secret half of the credential.
	raw := []byte(pair.RefreshToken)
	last := len(raw) - 1
	if raw[last] == 'A' {
		raw[last] = 'B'
	} else {
		raw[last] = 'A'
	}

	if _, err := engine.Refresh(ctx, string(raw), sessionRequest("fp-1")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshRejectedRecordsEvent(t *testing.T) {
	engine, mem := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken, sessionRequest("fp-1")); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken, sessionRequest("fp-1")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}

	count, err := mem.Events().CountByIP(ctx, "203.0.113.5", SeverityMedium, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountByIP failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 refresh_rejected event, got %d", count)
	}
}

func TestValidateAccess(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sess, err := engine.ValidateAccess(ctx, pair.AccessToken, "fp-1")
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if sess.UserID != "u1" || sess.ID != pair.SessionID {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestValidateAccessFingerprintMismatch(t *testing.T) {
	engine, mem := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := engine.ValidateAccess(ctx, pair.AccessToken, "fp-stolen"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	count, err := mem.Events().CountByFingerprint(ctx, "fp-stolen", SeverityHigh, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountByFingerprint failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a fingerprint-mismatch event, got %d", count)
	}
}

func TestValidateAccessGarbageToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	if _, err := engine.ValidateAccess(context.Background(), "garbage.token.here", ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateAccessAfterLogout(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := engine.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := engine.ValidateAccess(ctx, pair.AccessToken, "fp-1"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := engine.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken, sessionRequest("fp-1")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after logout, got %v", err)
	}

	// Logging out again is a no-op.
	if err := engine.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("repeat Logout failed: %v", err)
	}
}

func TestLogoutUnknownSession(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	if err := engine.Logout(context.Background(), "no-such-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-phone")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	pair, err := engine.CreateSession(ctx, "u1", sessionRequest("fp-laptop"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	closed, err := engine.RevokeUserSessions(ctx, "u1", LogoutSecurity)
	if err != nil {
		t.Fatalf("RevokeUserSessions failed: %v", err)
	}
	if closed != 2 {
		t.Fatalf("expected 2 closed sessions, got %d", closed)
	}

	sessions, err := engine.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(sessions))
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken, sessionRequest("fp-laptop")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after revocation, got %v", err)
	}
}

func TestAccessTokenShape(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	pair, err := engine.CreateSession(context.Background(), "u1", sessionRequest("fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if strings.Count(pair.AccessToken, ".") != 2 {
		t.Fatalf("access token should be a compact JWT, got %q", pair.AccessToken)
	}
	if strings.ContainsAny(pair.RefreshToken, "+/=") {
		t.Fatalf("refresh token should be base64url without padding, got %q", pair.RefreshToken)
	}
}
