package memory

import (
	"context"
	"sync"
	"time"

	"github.com/afyadigital/gatekit/session"
)

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	// refresh tokens keyed by user (one per user) with a token-id index
	byUser  map[string]*session.RefreshToken
	byToken map[string]string // token id -> user id
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session.Session),
		byUser:   make(map[string]*session.RefreshToken),
		byToken:  make(map[string]string),
	}
}

func (s *sessionStore) Create(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *sessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (s *sessionStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok && sess.Active {
		sess.LastActivity = at
	}
	return nil
}

func (s *sessionStore) Extend(ctx context.Context, sessionID string, expiresAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || !sess.Active || !sess.ExpiresAt.After(now) {
		return false, nil
	}
	sess.ExpiresAt = expiresAt
	return true, nil
}

func (s *sessionStore) Close(ctx context.Context, sessionID string, reason session.LogoutReason, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || !sess.Active {
		return false, nil
	}
	closeLocked(sess, reason, at)
	return true, nil
}

func (s *sessionStore) CloseActiveForDevice(ctx context.Context, userID, fingerprint string, reason session.LogoutReason, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for _, sess := range s.sessions {
		if sess.Active && sess.UserID == userID && sess.Fingerprint == fingerprint {
			closeLocked(sess, reason, at)
			closed++
		}
	}
	return closed, nil
}

func (s *sessionStore) CloseAllForUser(ctx context.Context, userID string, reason session.LogoutReason, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for _, sess := range s.sessions {
		if sess.Active && sess.UserID == userID {
			closeLocked(sess, reason, at)
			closed++
		}
	}
	return closed, nil
}

func (s *sessionStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, sess := range s.sessions {
		if sess.Active && !sess.ExpiresAt.After(now) {
			closeLocked(sess, session.LogoutExpired, now)
			expired++
		}
	}
	return expired, nil
}

func (s *sessionStore) ActiveForUser(ctx context.Context, userID string) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.Active && sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *sessionStore) ReplaceRefreshToken(ctx context.Context, t *session.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.byUser[t.UserID]; ok {
		delete(s.byToken, prior.TokenID)
	}

	cp := *t
	s.byUser[t.UserID] = &cp
	s.byToken[t.TokenID] = t.UserID
	return nil
}

func (s *sessionStore) RefreshTokenByID(ctx context.Context, tokenID string) (*session.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byToken[tokenID]
	if !ok {
		return nil, session.ErrNotFound
	}
	t, ok := s.byUser[userID]
	if !ok || t.TokenID != tokenID {
		return nil, session.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *sessionStore) DeleteRefreshToken(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.byUser[userID]; ok {
		delete(s.byToken, t.TokenID)
		delete(s.byUser, userID)
	}
	return nil
}

func closeLocked(sess *session.Session, reason session.LogoutReason, at time.Time) {
	sess.Active = false
	logoutAt := at
	sess.LogoutAt = &logoutAt
	sess.LogoutReason = reason
}
