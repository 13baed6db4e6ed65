// Package memory implements every gatekit store interface with
// mutex-guarded maps. Used by tests and single-process deployments; it
// honors the same atomicity contracts as the postgres store, just under
// one lock per concern.
package memory

import (
	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/otp"
	"github.com/afyadigital/gatekit/ratelimit"
	"github.com/afyadigital/gatekit/session"
)

// Store aggregates the per-domain in-memory stores.
type Store struct {
	rateLimit *rateLimitStore
	otp       *otpStore
	device    *deviceStore
	session   *sessionStore
	events    *eventStore
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		rateLimit: newRateLimitStore(),
		otp:       newOTPStore(),
		device:    newDeviceStore(),
		session:   newSessionStore(),
		events:    newEventStore(),
	}
}

func (s *Store) RateLimit() ratelimit.Store { return s.rateLimit }
func (s *Store) OTP() otp.Store             { return s.otp }
func (s *Store) Device() device.Store       { return s.device }
func (s *Store) Session() session.Store     { return s.session }
func (s *Store) Events() events.Store       { return s.events }
