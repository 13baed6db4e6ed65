package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/afyadigital/gatekit/session"
)

type sessionStore struct {
	db *bun.DB
}

var _ session.Store = (*sessionStore)(nil)

func (s *sessionStore) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.db.NewInsert().Model(sessionToRow(sess)).Exec(ctx)
	return err
}

func (s *sessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return sessionFromRow(row), nil
}

func (s *sessionStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("last_activity = ?", at).
		Where("id = ?", sessionID).
		Where("active = TRUE").
		Exec(ctx)
	return err
}

func (s *sessionStore) Extend(ctx context.Context, sessionID string, expiresAt, now time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("expires_at = ?", expiresAt).
		Where("id = ?", sessionID).
		Where("active = TRUE").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

// Close is the only transition out of the active state. The active guard
// makes the terminal state immutable: a second close, or a close racing an
// expiry sweep, affects zero rows.
func (s *sessionStore) Close(ctx context.Context, sessionID string, reason session.LogoutReason, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("active = FALSE").
		Set("logout_at = ?", at).
		Set("logout_reason = ?", string(reason)).
		Where("id = ?", sessionID).
		Where("active = TRUE").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

func (s *sessionStore) CloseActiveForDevice(ctx context.Context, userID, fingerprint string, reason session.LogoutReason, at time.Time) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("active = FALSE").
		Set("logout_at = ?", at).
		Set("logout_reason = ?", string(reason)).
		Where("user_id = ?", userID).
		Where("fingerprint = ?", fingerprint).
		Where("active = TRUE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (s *sessionStore) CloseAllForUser(ctx context.Context, userID string, reason session.LogoutReason, at time.Time) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("active = FALSE").
		Set("logout_at = ?", at).
		Set("logout_reason = ?", string(reason)).
		Where("user_id = ?", userID).
		Where("active = TRUE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (s *sessionStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("active = FALSE").
		Set("logout_at = ?", now).
		Set("logout_reason = ?", string(session.LogoutExpired)).
		Where("active = TRUE").
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (s *sessionStore) ActiveForUser(ctx context.Context, userID string) ([]*session.Session, error) {
	var rows []sessionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("active = TRUE").
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*session.Session, 0, len(rows))
	for i := range rows {
		out = append(out, sessionFromRow(&rows[i]))
	}
	return out, nil
}

// ReplaceRefreshToken keys the table by user, so the upsert enforces the
// one-credential-per-user rule: issuing replaces whatever existed.
func (s *sessionStore) ReplaceRefreshToken(ctx context.Context, t *session.RefreshToken) error {
	row := &refreshTokenRow{
		UserID:     t.UserID,
		TokenID:    t.TokenID,
		SecretHash: t.SecretHash[:],
		SessionID:  t.SessionID,
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("token_id = EXCLUDED.token_id").
		Set("secret_hash = EXCLUDED.secret_hash").
		Set("session_id = EXCLUDED.session_id").
		Set("expires_at = EXCLUDED.expires_at").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	return err
}

func (s *sessionStore) RefreshTokenByID(ctx context.Context, tokenID string) (*session.RefreshToken, error) {
	row := new(refreshTokenRow)
	err := s.db.NewSelect().
		Model(row).
		Where("token_id = ?", tokenID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}

	t := &session.RefreshToken{
		TokenID:   row.TokenID,
		UserID:    row.UserID,
		SessionID: row.SessionID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}
	copy(t.SecretHash[:], row.SecretHash)
	return t, nil
}

func (s *sessionStore) DeleteRefreshToken(ctx context.Context, userID string) error {
	_, err := s.db.NewDelete().
		Model((*refreshTokenRow)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func sessionToRow(sess *session.Session) *sessionRow {
	return &sessionRow{
		ID:           sess.ID,
		UserID:       sess.UserID,
		IP:           sess.IP,
		Fingerprint:  sess.Fingerprint,
		Active:       sess.Active,
		LastActivity: sess.LastActivity,
		ExpiresAt:    sess.ExpiresAt,
		CreatedAt:    sess.CreatedAt,
		LogoutAt:     sess.LogoutAt,
		LogoutReason: string(sess.LogoutReason),
	}
}

func sessionFromRow(row *sessionRow) *session.Session {
	return &session.Session{
		ID:           row.ID,
		UserID:       row.UserID,
		IP:           row.IP,
		Fingerprint:  row.Fingerprint,
		Active:       row.Active,
		LastActivity: row.LastActivity,
		ExpiresAt:    row.ExpiresAt,
		CreatedAt:    row.CreatedAt,
		LogoutAt:     row.LogoutAt,
		LogoutReason: session.LogoutReason(row.LogoutReason),
	}
}
