package gatekit

import (
	"context"
	"errors"

	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/events"
)

// errDeviceTrackingDisabled is returned from device admin operations when
// DeviceConfig.Enabled is false.
var errDeviceTrackingDisabled = errors.New("device tracking disabled")

// GetDevice returns the tracked state for a fingerprint.
func (e *Engine) GetDevice(ctx context.Context, fingerprint string) (*Device, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.tracker == nil {
		return nil, errDeviceTrackingDisabled
	}
	return e.tracker.Get(ctx, fingerprint)
}

// BlockDevice force-blocks a fingerprint regardless of its risk score.
func (e *Engine) BlockDevice(ctx context.Context, fingerprint, actor string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.tracker == nil {
		return errDeviceTrackingDisabled
	}

	if err := e.tracker.Block(ctx, fingerprint); err != nil {
		return err
	}

	e.recorder.Record(ctx, events.Event{
		Type:        "device_blocked",
		Severity:    events.SeverityHigh,
		Fingerprint: fingerprint,
		Data:        map[string]any{"actor": actor},
	})
	e.emitAudit(ctx, AuditEvent{
		EventType:   "device_block",
		Fingerprint: fingerprint,
		Success:     true,
		Metadata:    map[string]string{"actor": actor},
	})
	return nil
}

// UnblockDevice clears a device block. Risk scoring never unblocks on its
// own, so this is the only way back in for a blocked fingerprint.
func (e *Engine) UnblockDevice(ctx context.Context, fingerprint, actor string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.tracker == nil {
		return errDeviceTrackingDisabled
	}

	if err := e.tracker.Unblock(ctx, fingerprint); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType:   "device_unblock",
		Fingerprint: fingerprint,
		Success:     true,
		Metadata:    map[string]string{"actor": actor},
	})
	return nil
}

// TrustDevice marks or unmarks a fingerprint as trusted.
func (e *Engine) TrustDevice(ctx context.Context, fingerprint string, trusted bool) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.tracker == nil {
		return errDeviceTrackingDisabled
	}
	return e.tracker.Trust(ctx, fingerprint, trusted)
}

// IsDeviceBlocked answers the block flag alone, without scoring a visit.
// Unknown fingerprints are not blocked.
func (e *Engine) IsDeviceBlocked(ctx context.Context, fingerprint string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if e.tracker == nil {
		return false, nil
	}

	d, err := e.tracker.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return d.Blocked, nil
}
