package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/afyadigital/gatekit/device"
)

type deviceStore struct {
	db *bun.DB
}

var _ device.Store = (*deviceStore)(nil)

// UpsertVisit reads the row as it stood before this visit (for drift
// detection), then applies the visit as one upsert. The increment itself
// is atomic; the prior read is advisory.
func (s *deviceStore) UpsertVisit(ctx context.Context, fingerprint string, obs device.Observation, uaHash string) (*device.Device, *device.Device, error) {
	var prior *device.Device

	priorRow := new(deviceRow)
	err := s.db.NewSelect().
		Model(priorRow).
		Where("fingerprint = ?", fingerprint).
		Scan(ctx)
	switch {
	case err == nil:
		prior = deviceFromRow(priorRow)
	case errors.Is(err, sql.ErrNoRows):
		// first sight
	default:
		return nil, nil, err
	}

	row := &deviceRow{
		Fingerprint:   fingerprint,
		UserID:        obs.UserID,
		UserAgentHash: uaHash,
		VisitCount:    1,
		FirstSeen:     obs.Now,
		LastSeen:      obs.Now,
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (fingerprint) DO UPDATE").
		Set("visit_count = dv.visit_count + 1").
		Set("last_seen = EXCLUDED.last_seen").
		Set("user_id = CASE WHEN EXCLUDED.user_id <> '' THEN EXCLUDED.user_id ELSE dv.user_id END").
		Set("user_agent_hash = CASE WHEN EXCLUDED.user_agent_hash <> '' THEN EXCLUDED.user_agent_hash ELSE dv.user_agent_hash END").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, nil, err
	}

	return prior, deviceFromRow(row), nil
}

func (s *deviceStore) UpdateScore(ctx context.Context, fingerprint string, score int) error {
	_, err := s.db.NewUpdate().
		Model((*deviceRow)(nil)).
		Set("risk_score = ?", score).
		Where("fingerprint = ?", fingerprint).
		Exec(ctx)
	return err
}

// SetBlocked flips the flag only when the current value differs; the bool
// reports whether this call made the transition.
func (s *deviceStore) SetBlocked(ctx context.Context, fingerprint string, blocked bool) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*deviceRow)(nil)).
		Set("blocked = ?", blocked).
		Where("fingerprint = ?", fingerprint).
		Where("blocked = ?", !blocked).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

func (s *deviceStore) SetTrusted(ctx context.Context, fingerprint string, trusted bool) error {
	res, err := s.db.NewUpdate().
		Model((*deviceRow)(nil)).
		Set("trusted = ?", trusted).
		Where("fingerprint = ?", fingerprint).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("%w: %s", device.ErrNotFound, fingerprint)
	}
	return nil
}

func (s *deviceStore) Get(ctx context.Context, fingerprint string) (*device.Device, error) {
	row := new(deviceRow)
	err := s.db.NewSelect().
		Model(row).
		Where("fingerprint = ?", fingerprint).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, device.ErrNotFound
		}
		return nil, err
	}
	return deviceFromRow(row), nil
}

func deviceFromRow(row *deviceRow) *device.Device {
	return &device.Device{
		Fingerprint:   row.Fingerprint,
		UserID:        row.UserID,
		UserAgentHash: row.UserAgentHash,
		VisitCount:    row.VisitCount,
		Trusted:       row.Trusted,
		Blocked:       row.Blocked,
		RiskScore:     row.RiskScore,
		FirstSeen:     row.FirstSeen,
		LastSeen:      row.LastSeen,
	}
}
