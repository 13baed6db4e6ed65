package gatekit

import (
	"errors"
	"time"

	"github.com/afyadigital/gatekit/otp"
	"github.com/afyadigital/gatekit/ratelimit"
)

// Config is the full engine configuration tree. Configure once, pass to the
// builder, treat as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	OTP       OTPConfig
	Device    DeviceConfig
	Admission AdmissionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	TTL time.Duration
	// ExtendOnRefresh pushes the session expiry forward by TTL on each
	// successful token refresh.
	ExtendOnRefresh bool
	// SingleSessionPerDevice closes any prior active session for the same
	// user and fingerprint when a new one is created.
	SingleSessionPerDevice bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

type RateLimitConfig struct {
	// Endpoints maps endpoint names to their window tuning. Endpoints
	// without an entry use Default.
	Endpoints map[string]ratelimit.Policy
	Default   ratelimit.Policy
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	// Purposes maps challenge purposes to their tuning. Purposes without
	// an entry use Default.
	Purposes map[otp.Purpose]otp.Policy
	Default  otp.Policy
}

/*
====================================
DEVICE CONFIG
====================================
*/

type DeviceConfig struct {
	Enabled bool
	// BlockThreshold is the risk score at or above which a device is
	// blocked automatically. Scores are clamped to 0..100.
	BlockThreshold     int
	VelocityWindow     time.Duration
	MaxUsersPerDevice  int
	MaxDevicesPerIP    int
	UserVelocityWeight int
	IPVelocityWeight   int
	UADriftWeight      int
	SevereEventWeight  int
	SevereEventCap     int
	EventLookback      time.Duration
}

/*
====================================
ADMISSION CONFIG
====================================
*/

type AdmissionConfig struct {
	// FailClosed lists endpoints denied outright when a backing store is
	// unreachable. All other endpoints fail open with a logged warning.
	FailClosed []string
	// EventWindow and MaxHighSeverityEvents bound the recent-event check:
	// an IP with more than MaxHighSeverityEvents high-or-critical events
	// inside EventWindow is denied.
	EventWindow           time.Duration
	MaxHighSeverityEvents int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Session: SessionConfig{
			TTL:                    24 * time.Hour,
			ExtendOnRefresh:        true,
			SingleSessionPerDevice: true,
		},
		RateLimit: RateLimitConfig{
			Endpoints: map[string]ratelimit.Policy{
				"login": {
					Window:            15 * time.Minute,
					Ceiling:           5,
					OffenderThreshold: 3,
					OffenderLookback:  24 * time.Hour,
					OffenderBlock:     time.Hour,
				},
				"otp_request": {
					Window:  time.Hour,
					Ceiling: 5,
				},
				"otp_verify": {
					Window:  15 * time.Minute,
					Ceiling: 10,
				},
				"password_reset": {
					Window:  time.Hour,
					Ceiling: 3,
				},
				"signup": {
					Window:  time.Hour,
					Ceiling: 3,
				},
			},
			Default: ratelimit.Policy{
				Window:  time.Minute,
				Ceiling: 60,
			},
		},
		OTP: OTPConfig{
			Purposes: map[otp.Purpose]otp.Policy{
				otp.PurposeForgotPassword: {
					TTL:         10 * time.Minute,
					MaxAttempts: 5,
					Digits:      6,
				},
			},
			Default: otp.Policy{
				TTL:         5 * time.Minute,
				MaxAttempts: 5,
				Digits:      6,
			},
		},
		Device: DeviceConfig{
			Enabled:            true,
			BlockThreshold:     80,
			VelocityWindow:     time.Hour,
			MaxUsersPerDevice:  3,
			MaxDevicesPerIP:    5,
			UserVelocityWeight: 20,
			IPVelocityWeight:   10,
			UADriftWeight:      15,
			SevereEventWeight:  10,
			SevereEventCap:     40,
			EventLookback:      24 * time.Hour,
		},
		Admission: AdmissionConfig{
			FailClosed:            []string{"login", "otp_request", "otp_verify", "password_reset", "signup"},
			EventWindow:           time.Hour,
			MaxHighSeverityEvents: 10,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the baseline configuration embedders start from.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)

	if cfg.RateLimit.Endpoints != nil {
		out.RateLimit.Endpoints = make(map[string]ratelimit.Policy, len(cfg.RateLimit.Endpoints))
		for k, v := range cfg.RateLimit.Endpoints {
			out.RateLimit.Endpoints[k] = v
		}
	}
	if cfg.OTP.Purposes != nil {
		out.OTP.Purposes = make(map[otp.Purpose]otp.Policy, len(cfg.OTP.Purposes))
		for k, v := range cfg.OTP.Purposes {
			out.OTP.Purposes[k] = v
		}
	}
	if cfg.Admission.FailClosed != nil {
		out.Admission.FailClosed = append([]string(nil), cfg.Admission.FailClosed...)
	}

	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.JWT.AccessTTL > c.Session.TTL {
		return errors.New("JWT AccessTTL must not exceed Session TTL")
	}

	// Rate limiting
	if err := validatePolicy("RateLimit Default", c.RateLimit.Default); err != nil {
		return err
	}
	for endpoint, p := range c.RateLimit.Endpoints {
		if err := validatePolicy("RateLimit endpoint "+endpoint, p); err != nil {
			return err
		}
	}

	// OTP
	if err := validateOTPPolicy("OTP Default", c.OTP.Default); err != nil {
		return err
	}
	for purpose, p := range c.OTP.Purposes {
		if err := validateOTPPolicy("OTP purpose "+string(purpose), p); err != nil {
			return err
		}
	}

	// Device
	if c.Device.Enabled {
		if c.Device.BlockThreshold < 1 || c.Device.BlockThreshold > 100 {
			return errors.New("Device BlockThreshold must be within 1..100")
		}
		if c.Device.VelocityWindow <= 0 {
			return errors.New("Device VelocityWindow must be > 0")
		}
	}

	// Admission
	if c.Admission.EventWindow < 0 {
		return errors.New("Admission EventWindow must be >= 0")
	}
	if c.Admission.MaxHighSeverityEvents < 0 {
		return errors.New("Admission MaxHighSeverityEvents must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func validatePolicy(name string, p ratelimit.Policy) error {
	if p.Window <= 0 {
		return errors.New(name + " Window must be > 0")
	}
	if p.Ceiling <= 0 {
		return errors.New(name + " Ceiling must be > 0")
	}
	if p.OffenderThreshold > 0 && p.OffenderBlock <= 0 {
		return errors.New(name + " OffenderBlock must be > 0 when OffenderThreshold is set")
	}
	return nil
}

func validateOTPPolicy(name string, p otp.Policy) error {
	if p.TTL <= 0 {
		return errors.New(name + " TTL must be > 0")
	}
	if p.MaxAttempts <= 0 {
		return errors.New(name + " MaxAttempts must be > 0")
	}
	if p.Digits < 4 || p.Digits > 10 {
		return errors.New(name + " Digits must be between 4 and 10")
	}
	return nil
}
