// Package middleware exposes HTTP adapters for the gatekit engine: [Admit]
// runs the admission gate in front of a handler, [Guard] enforces a valid
// access token.
//
// # Architecture boundaries
//
// This package translates HTTP semantics (headers, status codes) into
// engine calls. It does NOT implement rate limiting, token parsing, or
// device logic itself; all decisions are delegated to the engine.
//
// # What this package must NOT do
//
//   - Parse JWTs or fingerprints directly (delegates to the engine).
//   - Touch the database or redis (engine handles I/O).
//   - Leak deny reasons beyond status code and Retry-After: a blocked
//     device and a suspicious caller both see a generic 403.
package middleware
