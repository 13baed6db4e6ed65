package gatekit

import "errors"

var (
	// ErrRateLimited is returned when a request exceeds its window ceiling
	// or hits an extended offender block.
	ErrRateLimited = errors.New("rate limited")
	// ErrOTPExpired is returned when a verification code's TTL has elapsed.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPAttemptsExhausted is returned once a challenge's attempt cap is
	// reached, regardless of code correctness.
	ErrOTPAttemptsExhausted = errors.New("otp attempts exhausted")
	// ErrOTPAlreadyVerified is returned when verifying an already verified
	// challenge.
	ErrOTPAlreadyVerified = errors.New("otp already verified")
	// ErrOTPMismatch is returned for a wrong code, and when no live
	// challenge exists for the owner.
	ErrOTPMismatch = errors.New("otp code mismatch")
	// ErrDeviceBlocked is returned when the request's device fingerprint is
	// blocked.
	ErrDeviceBlocked = errors.New("device blocked")
	// ErrSuspiciousActivity is returned when recent high-severity events
	// for the caller exceed the admission policy's ceiling.
	ErrSuspiciousActivity = errors.New("suspicious activity detected")
	// ErrSessionNotFound is returned for unknown or closed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session's expiry has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidRefreshToken is returned for malformed, unknown, replaced,
	// or secret-mismatched refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrTokenInvalid is returned for access tokens that fail signature,
	// algorithm, expiry, or claim checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUnauthorized is returned when no usable credential accompanies a
	// request that requires one.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable is returned when a backing store cannot answer and
	// the endpoint's policy is fail-closed.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned from methods on a nil or unbuilt
	// engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
