package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/afyadigital/gatekit/ratelimit"
)

type rateLimitStore struct {
	db *bun.DB
}

var _ ratelimit.Store = (*rateLimitStore)(nil)

// IncrementWindow is a single conditional upsert: the first request of a
// window inserts the row with request_count=1, every later request
// increments it, and the updated row comes back via RETURNING.
func (s *rateLimitStore) IncrementWindow(ctx context.Context, identifier, endpoint string, windowStart, windowEnd time.Time) (*ratelimit.Window, error) {
	row := &windowRow{
		Identifier:   identifier,
		Endpoint:     endpoint,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		RequestCount: 1,
	}

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (identifier, endpoint, window_start) DO UPDATE").
		Set("request_count = rlw.request_count + 1").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return windowFromRow(row), nil
}

func (s *rateLimitStore) MarkWindowBlocked(ctx context.Context, identifier, endpoint string, windowStart time.Time, reason string) error {
	_, err := s.db.NewUpdate().
		Model((*windowRow)(nil)).
		Set("blocked = TRUE").
		Set("block_reason = ?", reason).
		Where("identifier = ?", identifier).
		Where("endpoint = ?", endpoint).
		Where("window_start = ?", windowStart).
		Where("blocked = FALSE").
		Exec(ctx)
	return err
}

func (s *rateLimitStore) BlockedWindowCount(ctx context.Context, identifier string, since time.Time) (int, error) {
	return s.db.NewSelect().
		Model((*windowRow)(nil)).
		Where("identifier = ?", identifier).
		Where("blocked = TRUE").
		Where("window_start >= ?", since).
		Count(ctx)
}

func (s *rateLimitStore) UpsertBlock(ctx context.Context, block *ratelimit.Block) error {
	row := &blockRow{
		Identifier: block.Identifier,
		Reason:     block.Reason,
		CreatedAt:  block.CreatedAt,
		ExpiresAt:  block.ExpiresAt,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (identifier) DO UPDATE").
		Set("reason = EXCLUDED.reason").
		Set("expires_at = GREATEST(rlb.expires_at, EXCLUDED.expires_at)").
		Exec(ctx)
	return err
}

func (s *rateLimitStore) ActiveBlock(ctx context.Context, identifier string, now time.Time) (*ratelimit.Block, error) {
	row := new(blockRow)
	err := s.db.NewSelect().
		Model(row).
		Where("identifier = ?", identifier).
		Where("expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &ratelimit.Block{
		Identifier: row.Identifier,
		Reason:     row.Reason,
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
	}, nil
}

func (s *rateLimitStore) PurgeWindows(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*windowRow)(nil)).
		Where("window_end <= ?", before).
		Where("blocked = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (s *rateLimitStore) PurgeBlocks(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*blockRow)(nil)).
		Where("expires_at <= ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func windowFromRow(row *windowRow) *ratelimit.Window {
	return &ratelimit.Window{
		Identifier:   row.Identifier,
		Endpoint:     row.Endpoint,
		WindowStart:  row.WindowStart,
		WindowEnd:    row.WindowEnd,
		RequestCount: row.RequestCount,
		Blocked:      row.Blocked,
		BlockReason:  row.BlockReason,
	}
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
