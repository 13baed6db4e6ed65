package memory

import (
	"context"
	"sync"

	"github.com/afyadigital/gatekit/device"
)

type deviceStore struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newDeviceStore() *deviceStore {
	return &deviceStore{
		devices: make(map[string]*device.Device),
	}
}

func (s *deviceStore) UpsertVisit(ctx context.Context, fingerprint string, obs device.Observation, uaHash string) (*device.Device, *device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior *device.Device
	d, ok := s.devices[fingerprint]
	if ok {
		cp := *d
		prior = &cp
	} else {
		d = &device.Device{
			Fingerprint: fingerprint,
			FirstSeen:   obs.Now,
		}
		s.devices[fingerprint] = d
	}

	d.VisitCount++
	d.LastSeen = obs.Now
	if obs.UserID != "" {
		d.UserID = obs.UserID
	}
	if uaHash != "" {
		d.UserAgentHash = uaHash
	}

	current := *d
	return prior, &current, nil
}

func (s *deviceStore) UpdateScore(ctx context.Context, fingerprint string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.devices[fingerprint]; ok {
		d.RiskScore = score
	}
	return nil
}

func (s *deviceStore) SetBlocked(ctx context.Context, fingerprint string, blocked bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[fingerprint]
	if !ok || d.Blocked == blocked {
		return false, nil
	}
	d.Blocked = blocked
	return true, nil
}

func (s *deviceStore) SetTrusted(ctx context.Context, fingerprint string, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[fingerprint]
	if !ok {
		return device.ErrNotFound
	}
	d.Trusted = trusted
	return nil
}

func (s *deviceStore) Get(ctx context.Context, fingerprint string) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[fingerprint]
	if !ok {
		return nil, device.ErrNotFound
	}
	out := *d
	return &out, nil
}
