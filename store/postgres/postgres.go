// Package postgres backs every gatekit store interface with one bun
// database. All counter and state-transition paths are single SQL
// statements (conditional upserts and guarded updates), never
// read-then-write, so concurrent engine instances sharing the database
// stay correct.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/otp"
	"github.com/afyadigital/gatekit/ratelimit"
	"github.com/afyadigital/gatekit/session"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 10 * time.Second
)

// Store owns the bun handle and hands out the per-domain store views.
type Store struct {
	db *bun.DB
}

// New wraps an existing bun database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Connect opens a pooled connection to the given DSN, retrying with
// exponential backoff so a restarting database does not fail startup.
func Connect(dsn string) (*Store, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err := attemptConnect(dsn)
		if err == nil {
			if attempt > 1 {
				log.Printf("gatekit: database connected on attempt %d", attempt)
			}
			return New(db), nil
		}
		lastErr = err

		if attempt < maxRetries {
			log.Printf("gatekit: database connection attempt %d/%d failed: %v", attempt, maxRetries, err)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxRetries, lastErr)
}

func attemptConnect(dsn string) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(30*time.Second),
		pgdriver.WithWriteTimeout(30*time.Second),
	)
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(5)
	sqldb.SetConnMaxLifetime(30 * time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// DB exposes the underlying bun handle.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTables creates every gatekit table if missing. Intended for tests
// and bootstrap; production schemas usually come from migrations.
func (s *Store) CreateTables(ctx context.Context) error {
	models := []any{
		(*windowRow)(nil),
		(*blockRow)(nil),
		(*challengeRow)(nil),
		(*sessionRow)(nil),
		(*refreshTokenRow)(nil),
		(*deviceRow)(nil),
		(*eventRow)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_otp_owner_purpose ON otp_challenges (owner, purpose)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON user_sessions (user_id) WHERE active`,
		`CREATE INDEX IF NOT EXISTS idx_events_ip_time ON security_events (ip, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_fp_time ON security_events (fingerprint, created_at)`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// RateLimit returns the rate-limit ledger store view.
func (s *Store) RateLimit() ratelimit.Store {
	return &rateLimitStore{db: s.db}
}

// OTP returns the challenge store view.
func (s *Store) OTP() otp.Store {
	return &otpStore{db: s.db}
}

// Device returns the device tracking store view.
func (s *Store) Device() device.Store {
	return &deviceStore{db: s.db}
}

// Session returns the session and refresh-token store view.
func (s *Store) Session() session.Store {
	return &sessionStore{db: s.db}
}

// Events returns the security-event store view.
func (s *Store) Events() events.Store {
	return &eventStore{db: s.db}
}
