package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/afyadigital/gatekit/otp"
)

type otpKey struct {
	owner   string
	purpose otp.Purpose
}

type otpStore struct {
	mu         sync.Mutex
	challenges map[otpKey]*otp.Challenge
	byID       map[string]*otp.Challenge
}

func newOTPStore() *otpStore {
	return &otpStore{
		challenges: make(map[otpKey]*otp.Challenge),
		byID:       make(map[string]*otp.Challenge),
	}
}

func (s *otpStore) ReplaceChallenge(ctx context.Context, c *otp.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := otpKey{owner: c.Owner, purpose: c.Purpose}
	if prior, ok := s.challenges[key]; ok {
		delete(s.byID, prior.ID)
	}

	cp := *c
	s.challenges[key] = &cp
	s.byID[c.ID] = &cp
	return nil
}

func (s *otpStore) LatestChallenge(ctx context.Context, owner string, purpose otp.Purpose) (*otp.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[otpKey{owner: owner, purpose: purpose}]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *otpStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return 0, errors.New("challenge not found")
	}
	c.Attempts++
	return c.Attempts, nil
}

func (s *otpStore) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return false, errors.New("challenge not found")
	}
	if c.VerifiedAt != nil {
		return false, nil
	}
	verifiedAt := at
	c.VerifiedAt = &verifiedAt
	return true, nil
}
