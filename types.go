package gatekit

import (
	"time"

	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/otp"
	"github.com/afyadigital/gatekit/ratelimit"
	"github.com/afyadigital/gatekit/session"
)

// Re-exported record types so embedders work against the root package alone.
type (
	Session         = session.Session
	RefreshToken    = session.RefreshToken
	LogoutReason    = session.LogoutReason
	Device          = device.Device
	Assessment      = device.Assessment
	SecurityEvent   = events.Event
	Severity        = events.Severity
	OTPPurpose      = otp.Purpose
	OTPChallenge    = otp.Challenge
	RateLimitWindow = ratelimit.Window
	RateLimitResult = ratelimit.Result
)

const (
	LogoutManual     = session.LogoutManual
	LogoutExpired    = session.LogoutExpired
	LogoutSecurity   = session.LogoutSecurity
	LogoutAdmin      = session.LogoutAdmin
	LogoutSuperseded = session.LogoutSuperseded

	SeverityLow      = events.SeverityLow
	SeverityMedium   = events.SeverityMedium
	SeverityHigh     = events.SeverityHigh
	SeverityCritical = events.SeverityCritical

	PurposeSignup            = otp.PurposeSignup
	PurposeForgotPassword    = otp.PurposeForgotPassword
	PurposePhoneVerification = otp.PurposePhoneVerification
	PurposeEmailVerification = otp.PurposeEmailVerification
)

// IdentifierKind names the namespace an identifier value belongs to.
type IdentifierKind string

const (
	IdentifierUser   IdentifierKind = "user"
	IdentifierDevice IdentifierKind = "device"
	IdentifierEmail  IdentifierKind = "email"
	IdentifierPhone  IdentifierKind = "phone"
	IdentifierIP     IdentifierKind = "ip"
)

// Identifier is one namespaced rate-limit key, rendered "kind:value" so
// values from different namespaces can never collide in storage.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

func (i Identifier) String() string {
	return string(i.Kind) + ":" + i.Value
}

// RequestContext carries everything the admission gate knows about one
// inbound request. Zero-value fields mean the signal is absent.
type RequestContext struct {
	IP          string
	UserID      string
	Email       string
	Phone       string
	Fingerprint string
	UserAgent   string
	Endpoint    string
	Now         time.Time
}

// Decision is the admission gate's verdict for one request.
type Decision struct {
	Admit      bool
	Reason     error
	RetryAfter time.Duration
	Remaining  int
	RiskScore  int
}

// TokenPair is what a successful session issuance or refresh hands back.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
