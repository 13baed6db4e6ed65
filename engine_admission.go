package gatekit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/ratelimit"
)

// Evaluate runs the full admission pipeline for one request: rate-limit
// ledger across every identifier on the request, device block and risk
// check, then a recent-event sweep for the caller's IP. The most
// restrictive answer wins. Every evaluation is itself a counted attempt,
// so denied callers cannot probe for free.
//
// Store outages deny endpoints listed in AdmissionConfig.FailClosed and
// admit everything else with a logged warning.
func (e *Engine) Evaluate(ctx context.Context, rc RequestContext) (Decision, error) {
	if e == nil {
		return Decision{}, ErrEngineNotReady
	}
	start := time.Now()
	if rc.Now.IsZero() {
		rc.Now = start
	}
	defer func() {
		e.metricObserve(MetricEvaluateLatency, time.Since(start))
	}()

	decision, err := e.evaluate(ctx, rc)

	if decision.Admit {
		e.metricInc(MetricAdmissionAllowed)
	} else {
		e.metricInc(MetricAdmissionDenied)
	}

	return decision, err
}

func (e *Engine) evaluate(ctx context.Context, rc RequestContext) (Decision, error) {
	ids := resolveIdentifiers(rc)
	if len(ids) == 0 {
		// Nothing to key on; nothing to account against.
		return Decision{Admit: true}, nil
	}

	worst := Decision{Admit: true, Remaining: -1}

	for _, id := range ids {
		result, err := e.ledger.CheckAndIncrement(ctx, id.String(), rc.Endpoint, rc.Now)
		if err != nil {
			if d, handled := e.storeOutage(rc, "rate limit", err); handled {
				return d, nil
			}
			return Decision{}, err
		}

		if !result.Allowed {
			e.metricInc(MetricRateLimitHit)
			if result.Reason == ratelimit.ReasonOffender {
				e.metricInc(MetricOffenderBlocked)
			}
			e.recordDenied(ctx, rc, "rate_limit_exceeded", events.SeverityMedium)
			e.auditDecision(ctx, rc, false, ErrRateLimited)
			return Decision{
				Admit:      false,
				Reason:     ErrRateLimited,
				RetryAfter: result.RetryAfter,
			}, nil
		}

		if worst.Remaining < 0 || result.Remaining < worst.Remaining {
			worst.Remaining = result.Remaining
		}
	}

	if e.tracker != nil && rc.Fingerprint != "" {
		assessment, err := e.tracker.Observe(ctx, rc.Fingerprint, device.Observation{
			IP:        rc.IP,
			UserID:    rc.UserID,
			UserAgent: rc.UserAgent,
			Now:       rc.Now,
		})
		if err != nil {
			if d, handled := e.storeOutage(rc, "device tracking", err); handled {
				return d, nil
			}
			return Decision{}, err
		}

		worst.RiskScore = assessment.Score

		if assessment.AutoBlocked {
			e.metricInc(MetricDeviceAutoBlocked)
			e.recordDenied(ctx, rc, "device_auto_blocked", events.SeverityHigh)
		}

		if assessment.Blocked {
			e.metricInc(MetricDeviceBlocked)
			e.recordDenied(ctx, rc, "blocked_device_attempt", events.SeverityHigh)
			e.auditDecision(ctx, rc, false, ErrDeviceBlocked)
			return Decision{
				Admit:     false,
				Reason:    ErrDeviceBlocked,
				RiskScore: assessment.Score,
			}, nil
		}
	}

	if e.config.Admission.MaxHighSeverityEvents > 0 && rc.IP != "" {
		recent, err := e.recorder.CountRecent(ctx, rc.IP, events.SeverityHigh, rc.Now, e.config.Admission.EventWindow)
		if err != nil {
			if d, handled := e.storeOutage(rc, "event history", err); handled {
				return d, nil
			}
			return Decision{}, err
		}
		if recent > e.config.Admission.MaxHighSeverityEvents {
			e.metricInc(MetricSuspicionBlocked)
			e.recordDenied(ctx, rc, "suspicious_activity", events.SeverityHigh)
			e.auditDecision(ctx, rc, false, ErrSuspiciousActivity)
			return Decision{
				Admit:     false,
				Reason:    ErrSuspiciousActivity,
				RiskScore: worst.RiskScore,
			}, nil
		}
	}

	if e.failsClosed(rc.Endpoint) {
		e.recordAdmitted(ctx, rc)
	}
	e.auditDecision(ctx, rc, true, nil)
	return worst, nil
}

// storeOutage applies the endpoint's outage policy. The bool reports
// whether the error was an availability failure this method absorbed.
func (e *Engine) storeOutage(rc RequestContext, component string, err error) (Decision, bool) {
	if !isUnavailable(err) {
		return Decision{}, false
	}

	e.metricInc(MetricStoreUnavailable)

	if e.failsClosed(rc.Endpoint) {
		log.Printf("gatekit: %s unavailable, denying %q: %v", component, rc.Endpoint, err)
		return Decision{
			Admit:  false,
			Reason: ErrUnavailable,
		}, true
	}

	log.Printf("gatekit: %s unavailable, admitting %q without checks: %v", component, rc.Endpoint, err)
	return Decision{Admit: true}, true
}

func isUnavailable(err error) bool {
	return errors.Is(err, ratelimit.ErrUnavailable) ||
		errors.Is(err, device.ErrUnavailable) ||
		errors.Is(err, events.ErrUnavailable)
}

func (e *Engine) recordDenied(ctx context.Context, rc RequestContext, eventType string, severity events.Severity) {
	e.metricInc(MetricEventRecorded)
	e.recorder.Record(ctx, events.Event{
		Type:        eventType,
		Severity:    severity,
		UserID:      rc.UserID,
		IP:          rc.IP,
		Fingerprint: rc.Fingerprint,
		Endpoint:    rc.Endpoint,
		Blocked:     true,
		CreatedAt:   rc.Now,
	})
}

// recordAdmitted leaves a low-severity trail row for admitted traffic on
// sensitive endpoints, so windowed queries see normal activity too.
func (e *Engine) recordAdmitted(ctx context.Context, rc RequestContext) {
	e.metricInc(MetricEventRecorded)
	e.recorder.Record(ctx, events.Event{
		Type:        "access_attempt",
		Severity:    events.SeverityLow,
		UserID:      rc.UserID,
		IP:          rc.IP,
		Fingerprint: rc.Fingerprint,
		Endpoint:    rc.Endpoint,
		CreatedAt:   rc.Now,
	})
}

func (e *Engine) auditDecision(ctx context.Context, rc RequestContext, admitted bool, reason error) {
	event := AuditEvent{
		EventType:   "admission",
		UserID:      rc.UserID,
		IP:          rc.IP,
		Fingerprint: rc.Fingerprint,
		Endpoint:    rc.Endpoint,
		Success:     admitted,
	}
	if reason != nil {
		event.Error = reason.Error()
	}
	e.emitAudit(ctx, event)
}
