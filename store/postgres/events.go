package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/afyadigital/gatekit/events"
)

type eventStore struct {
	db *bun.DB
}

var _ events.Store = (*eventStore)(nil)

func (s *eventStore) Append(ctx context.Context, e *events.Event) error {
	row := &eventRow{
		ID:          e.ID,
		Type:        e.Type,
		Severity:    uint8(e.Severity),
		UserID:      e.UserID,
		IP:          e.IP,
		Fingerprint: e.Fingerprint,
		Endpoint:    e.Endpoint,
		Data:        e.Data,
		Network:     e.Network,
		Geo:         e.Geo,
		Blocked:     e.Blocked,
		CreatedAt:   e.CreatedAt,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (s *eventStore) CountByIP(ctx context.Context, ip string, min events.Severity, since time.Time) (int, error) {
	return s.db.NewSelect().
		Model((*eventRow)(nil)).
		Where("ip = ?", ip).
		Where("severity >= ?", uint8(min)).
		Where("created_at >= ?", since).
		Count(ctx)
}

func (s *eventStore) CountByFingerprint(ctx context.Context, fingerprint string, min events.Severity, since time.Time) (int, error) {
	return s.db.NewSelect().
		Model((*eventRow)(nil)).
		Where("fingerprint = ?", fingerprint).
		Where("severity >= ?", uint8(min)).
		Where("created_at >= ?", since).
		Count(ctx)
}
