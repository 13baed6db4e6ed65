package gatekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/otp"
)

// OTPResult reports the outcome of an OTP operation, including how many
// attempts remain on the challenge.
type OTPResult struct {
	ChallengeID       string
	ExpiresAt         time.Time
	RemainingAttempts int
}

// IssueOTP creates a fresh challenge for (owner, purpose) and returns the
// plaintext code exactly once, alongside challenge metadata. Reissuing
// before verification invalidates the previous code. Delivery of the code
// to the user is the embedder's job.
func (e *Engine) IssueOTP(ctx context.Context, owner string, purpose OTPPurpose, rc RequestContext) (string, *OTPResult, error) {
	if e == nil {
		return "", nil, ErrEngineNotReady
	}
	if rc.Now.IsZero() {
		rc.Now = time.Now()
	}

	code, challenge, err := e.otpManager.Issue(ctx, owner, purpose, otp.IssueMeta{
		IP:     rc.IP,
		Device: rc.Fingerprint,
	}, rc.Now)
	if err != nil {
		e.auditOTP(ctx, "otp_issue", owner, purpose, rc, err)
		if errors.Is(err, otp.ErrUnavailable) {
			return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", nil, err
	}

	e.metricInc(MetricOTPIssued)
	e.auditOTP(ctx, "otp_issue", owner, purpose, rc, nil)

	return code, &OTPResult{
		ChallengeID:       challenge.ID,
		ExpiresAt:         challenge.ExpiresAt,
		RemainingAttempts: challenge.Remaining(),
	}, nil
}

// VerifyOTP checks a submitted code against the owner's live challenge.
// On failure the result still carries the remaining attempt count so the
// embedder can surface it.
func (e *Engine) VerifyOTP(ctx context.Context, owner string, purpose OTPPurpose, code string, rc RequestContext) (*OTPResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if rc.Now.IsZero() {
		rc.Now = time.Now()
	}

	challenge, err := e.otpManager.Verify(ctx, owner, purpose, code, rc.Now)

	result := &OTPResult{}
	if challenge != nil {
		result.ChallengeID = challenge.ID
		result.ExpiresAt = challenge.ExpiresAt
		result.RemainingAttempts = challenge.Remaining()
	}

	if err != nil {
		mapped := mapOTPError(err)
		e.noteOTPFailure(ctx, mapped, owner, rc)
		e.auditOTP(ctx, "otp_verify", owner, purpose, rc, mapped)
		return result, mapped
	}

	e.metricInc(MetricOTPVerified)
	e.auditOTP(ctx, "otp_verify", owner, purpose, rc, nil)
	return result, nil
}

func mapOTPError(err error) error {
	switch {
	case errors.Is(err, otp.ErrExpired):
		return ErrOTPExpired
	case errors.Is(err, otp.ErrAttemptsExhausted):
		return ErrOTPAttemptsExhausted
	case errors.Is(err, otp.ErrAlreadyVerified):
		return ErrOTPAlreadyVerified
	case errors.Is(err, otp.ErrMismatch):
		return ErrOTPMismatch
	case errors.Is(err, otp.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}

func (e *Engine) noteOTPFailure(ctx context.Context, err error, owner string, rc RequestContext) {
	switch {
	case errors.Is(err, ErrOTPMismatch):
		e.metricInc(MetricOTPMismatch)
		e.recorder.Record(ctx, events.Event{
			Type:        "otp_failure",
			Severity:    events.SeverityLow,
			UserID:      rc.UserID,
			IP:          rc.IP,
			Fingerprint: rc.Fingerprint,
			Endpoint:    rc.Endpoint,
			Data:        map[string]any{"owner": owner},
			CreatedAt:   rc.Now,
		})
	case errors.Is(err, ErrOTPExpired):
		e.metricInc(MetricOTPExpired)
	case errors.Is(err, ErrOTPAttemptsExhausted):
		e.metricInc(MetricOTPExhausted)
		e.recorder.Record(ctx, events.Event{
			Type:        "otp_exhausted",
			Severity:    events.SeverityMedium,
			UserID:      rc.UserID,
			IP:          rc.IP,
			Fingerprint: rc.Fingerprint,
			Endpoint:    rc.Endpoint,
			Data:        map[string]any{"owner": owner},
			CreatedAt:   rc.Now,
		})
	}
}

func (e *Engine) auditOTP(ctx context.Context, eventType, owner string, purpose OTPPurpose, rc RequestContext, opErr error) {
	event := AuditEvent{
		EventType:   eventType,
		UserID:      rc.UserID,
		IP:          rc.IP,
		Fingerprint: rc.Fingerprint,
		Endpoint:    rc.Endpoint,
		Success:     opErr == nil,
		Metadata: map[string]string{
			"owner":   owner,
			"purpose": string(purpose),
		},
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.emitAudit(ctx, event)
}
