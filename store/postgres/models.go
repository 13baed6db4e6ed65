package postgres

import (
	"time"

	"github.com/uptrace/bun"
)

type windowRow struct {
	bun.BaseModel `bun:"table:rate_limit_windows,alias:rlw"`

	Identifier   string    `bun:"identifier,pk"`
	Endpoint     string    `bun:"endpoint,pk"`
	WindowStart  time.Time `bun:"window_start,pk"`
	WindowEnd    time.Time `bun:"window_end,notnull"`
	RequestCount int       `bun:"request_count,notnull,default:0"`
	Blocked      bool      `bun:"blocked,notnull,default:false"`
	BlockReason  string    `bun:"block_reason,default:''"`
}

type blockRow struct {
	bun.BaseModel `bun:"table:rate_limit_blocks,alias:rlb"`

	Identifier string    `bun:"identifier,pk"`
	Reason     string    `bun:"reason,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
}

type challengeRow struct {
	bun.BaseModel `bun:"table:otp_challenges,alias:oc"`

	ID            string     `bun:"id,pk"`
	Owner         string     `bun:"owner,notnull"`
	Purpose       string     `bun:"purpose,notnull"`
	CodeHash      []byte     `bun:"code_hash,notnull"`
	Attempts      int        `bun:"attempts,notnull,default:0"`
	MaxAttempts   int        `bun:"max_attempts,notnull"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull"`
	VerifiedAt    *time.Time `bun:"verified_at"`
	IssuingIP     string     `bun:"issuing_ip,default:''"`
	IssuingDevice string     `bun:"issuing_device,default:''"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:user_sessions,alias:us"`

	ID           string     `bun:"id,pk"`
	UserID       string     `bun:"user_id,notnull"`
	IP           string     `bun:"ip,default:''"`
	Fingerprint  string     `bun:"fingerprint,default:''"`
	Active       bool       `bun:"active,notnull,default:true"`
	LastActivity time.Time  `bun:"last_activity,notnull"`
	ExpiresAt    time.Time  `bun:"expires_at,notnull"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	LogoutAt     *time.Time `bun:"logout_at"`
	LogoutReason string     `bun:"logout_reason,default:''"`
}

type refreshTokenRow struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	UserID     string    `bun:"user_id,pk"`
	TokenID    string    `bun:"token_id,notnull,unique"`
	SecretHash []byte    `bun:"secret_hash,notnull"`
	SessionID  string    `bun:"session_id,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

type deviceRow struct {
	bun.BaseModel `bun:"table:devices,alias:dv"`

	Fingerprint   string    `bun:"fingerprint,pk"`
	UserID        string    `bun:"user_id,default:''"`
	UserAgentHash string    `bun:"user_agent_hash,default:''"`
	VisitCount    int64     `bun:"visit_count,notnull,default:0"`
	Trusted       bool      `bun:"trusted,notnull,default:false"`
	Blocked       bool      `bun:"blocked,notnull,default:false"`
	RiskScore     int       `bun:"risk_score,notnull,default:0"`
	FirstSeen     time.Time `bun:"first_seen,notnull"`
	LastSeen      time.Time `bun:"last_seen,notnull"`
}

type eventRow struct {
	bun.BaseModel `bun:"table:security_events,alias:se"`

	ID          string         `bun:"id,pk"`
	Type        string         `bun:"type,notnull"`
	Severity    uint8          `bun:"severity,notnull"`
	UserID      string         `bun:"user_id,default:''"`
	IP          string         `bun:"ip,default:''"`
	Fingerprint string         `bun:"fingerprint,default:''"`
	Endpoint    string         `bun:"endpoint,default:''"`
	Data        map[string]any `bun:"data,type:jsonb"`
	Network     map[string]any `bun:"network,type:jsonb"`
	Geo         map[string]any `bun:"geo,type:jsonb"`
	Blocked     bool           `bun:"blocked,notnull,default:false"`
	CreatedAt   time.Time      `bun:"created_at,notnull"`
}
