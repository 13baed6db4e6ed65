// Package gatekit is an embeddable abuse-prevention and access-trust engine
// for storefront and booking backends: fixed-window rate limiting with
// repeat-offender escalation, OTP challenge lifecycle, JWT access tokens
// paired with rotating opaque refresh tokens, device fingerprint risk
// scoring, and an append-only security-event log, all fronted by a single
// admission gate.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// gatekit is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Decision, TokenPair, SecurityReport, etc.). Domain
// mechanics live in the ratelimit, otp, device, session, events, and jwt
// sub-packages behind store interfaces; persistence implementations live
// under store/.
//
// # What this package must NOT do
//
//   - Expose database handles, store internals, or token hashing details in
//     its public API.
//   - Start background goroutines besides the audit dispatcher; sweeping is
//     driven by the embedder through [Engine.Sweep].
//   - Import any sub-package that re-imports gatekit (no import cycles).
//
// # Availability contract
//
// Evaluate is the hot path and must answer even when a backing store is
// down: endpoints listed in AdmissionConfig.FailClosed are denied, all
// others are admitted with a logged warning. Event recording is always
// best-effort and never fails a request.
package gatekit
