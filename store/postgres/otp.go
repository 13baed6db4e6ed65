package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/afyadigital/gatekit/otp"
)

type otpStore struct {
	db *bun.DB
}

var _ otp.Store = (*otpStore)(nil)

// ReplaceChallenge deletes any prior challenge for the owner/purpose pair
// and inserts the new one inside one transaction, keeping at most one
// challenge live per pair.
func (s *otpStore) ReplaceChallenge(ctx context.Context, c *otp.Challenge) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*challengeRow)(nil)).
			Where("owner = ?", c.Owner).
			Where("purpose = ?", string(c.Purpose)).
			Exec(ctx)
		if err != nil {
			return err
		}

		row := &challengeRow{
			ID:            c.ID,
			Owner:         c.Owner,
			Purpose:       string(c.Purpose),
			CodeHash:      c.CodeHash[:],
			Attempts:      c.Attempts,
			MaxAttempts:   c.MaxAttempts,
			ExpiresAt:     c.ExpiresAt,
			VerifiedAt:    c.VerifiedAt,
			IssuingIP:     c.IssuingIP,
			IssuingDevice: c.IssuingDevice,
			CreatedAt:     c.CreatedAt,
		}
		_, err = tx.NewInsert().Model(row).Exec(ctx)
		return err
	})
}

func (s *otpStore) LatestChallenge(ctx context.Context, owner string, purpose otp.Purpose) (*otp.Challenge, error) {
	row := new(challengeRow)
	err := s.db.NewSelect().
		Model(row).
		Where("owner = ?", owner).
		Where("purpose = ?", string(purpose)).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return challengeFromRow(row), nil
}

// IncrementAttempts bumps the counter in one statement and returns the
// value this caller produced, so concurrent submissions each see a
// distinct attempt number.
func (s *otpStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	_, err := s.db.NewUpdate().
		Model((*challengeRow)(nil)).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Returning("attempts").
		Exec(ctx, &attempts)
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// MarkVerified sets verified_at only when still unset. Exactly one of any
// concurrent callers wins.
func (s *otpStore) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*challengeRow)(nil)).
		Set("verified_at = ?", at).
		Where("id = ?", id).
		Where("verified_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

func challengeFromRow(row *challengeRow) *otp.Challenge {
	c := &otp.Challenge{
		ID:            row.ID,
		Owner:         row.Owner,
		Purpose:       otp.Purpose(row.Purpose),
		Attempts:      row.Attempts,
		MaxAttempts:   row.MaxAttempts,
		ExpiresAt:     row.ExpiresAt,
		VerifiedAt:    row.VerifiedAt,
		IssuingIP:     row.IssuingIP,
		IssuingDevice: row.IssuingDevice,
		CreatedAt:     row.CreatedAt,
	}
	copy(c.CodeHash[:], row.CodeHash)
	return c
}
