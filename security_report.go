package gatekit

import "time"

// SecurityReport is a point-in-time snapshot of which protections the
// engine is running with. Intended for startup logs and ops dashboards;
// it contains configuration posture only, no per-user data.
type SecurityReport struct {
	RateLimitEndpoints     int
	OffenderEscalation     bool
	DeviceTracking         bool
	DeviceBlockThreshold   int
	EventFeedCheck         bool
	FailClosedEndpoints    []string
	SessionTTL             time.Duration
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	SingleSessionPerDevice bool
	AuditEnabled           bool
	MetricsEnabled         bool
}

// Report summarizes the engine's active protections.
func (e *Engine) Report() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	offender := e.config.RateLimit.Default.OffenderThreshold > 0
	for _, p := range e.config.RateLimit.Endpoints {
		if p.OffenderThreshold > 0 {
			offender = true
			break
		}
	}

	return SecurityReport{
		RateLimitEndpoints:     len(e.config.RateLimit.Endpoints),
		OffenderEscalation:     offender,
		DeviceTracking:         e.tracker != nil,
		DeviceBlockThreshold:   e.config.Device.BlockThreshold,
		EventFeedCheck:         e.config.Admission.MaxHighSeverityEvents > 0,
		FailClosedEndpoints:    append([]string(nil), e.config.Admission.FailClosed...),
		SessionTTL:             e.config.Session.TTL,
		AccessTTL:              e.config.JWT.AccessTTL,
		RefreshTTL:             e.config.JWT.RefreshTTL,
		SingleSessionPerDevice: e.config.Session.SingleSessionPerDevice,
		AuditEnabled:           e.audit != nil,
		MetricsEnabled:         e.metrics.Enabled(),
	}
}
