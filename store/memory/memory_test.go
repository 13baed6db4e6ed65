package memory

import (
	"context"
	"testing"
	"time"

	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/otp"
	"github.com/afyadigital/gatekit/ratelimit"
)

func TestRateLimitIncrementIsAtomicPerWindow(t *testing.T) {
	store := New().RateLimit()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	for i := 1; i <= 3; i++ {
		w, err := store.IncrementWindow(ctx, "ip:203.0.113.5", "login", start, end)
		if err != nil {
			t.Fatalf("IncrementWindow failed: %v", err)
		}
		if w.RequestCount != i {
			t.Fatalf("expected count %d, got %d", i, w.RequestCount)
		}
	}

	// A different window start is a separate row.
	w, err := store.IncrementWindow(ctx, "ip:203.0.113.5", "login", end, end.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("IncrementWindow failed: %v", err)
	}
	if w.RequestCount != 1 {
		t.Fatalf("fresh window should start at 1, got %d", w.RequestCount)
	}
}

func TestRateLimitUpsertBlockKeepsLaterExpiry(t *testing.T) {
	store := New().RateLimit()
	ctx := context.Background()
	now := time.Now()

	long := &ratelimit.Block{Identifier: "ip:203.0.113.5", Reason: "repeat offender", ExpiresAt: now.Add(2 * time.Hour)}
	short := &ratelimit.Block{Identifier: "ip:203.0.113.5", Reason: "repeat offender", ExpiresAt: now.Add(time.Hour)}

	if err := store.UpsertBlock(ctx, long); err != nil {
		t.Fatalf("UpsertBlock failed: %v", err)
	}
	if err := store.UpsertBlock(ctx, short); err != nil {
		t.Fatalf("UpsertBlock failed: %v", err)
	}

	b, err := store.ActiveBlock(ctx, "ip:203.0.113.5", now)
	if err != nil {
		t.Fatalf("ActiveBlock failed: %v", err)
	}
	if b == nil || !b.ExpiresAt.Equal(long.ExpiresAt) {
		t.Fatalf("a shorter re-block must not shrink the expiry: %+v", b)
	}
}

func TestRateLimitActiveBlockExpires(t *testing.T) {
	store := New().RateLimit()
	ctx := context.Background()
	now := time.Now()

	if err := store.UpsertBlock(ctx, &ratelimit.Block{
		Identifier: "ip:203.0.113.5",
		ExpiresAt:  now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("UpsertBlock failed: %v", err)
	}

	b, err := store.ActiveBlock(ctx, "ip:203.0.113.5", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ActiveBlock failed: %v", err)
	}
	if b != nil {
		t.Fatal("expired block must not be returned")
	}
}

func TestOTPMarkVerifiedWinsOnce(t *testing.T) {
	store := New().OTP()
	ctx := context.Background()
	now := time.Now()

	c := &otp.Challenge{
		ID:          "c1",
		Owner:       "alice@example.com",
		Purpose:     otp.PurposeSignup,
		MaxAttempts: 5,
		ExpiresAt:   now.Add(10 * time.Minute),
		CreatedAt:   now,
	}
	if err := store.ReplaceChallenge(ctx, c); err != nil {
		t.Fatalf("ReplaceChallenge failed: %v", err)
	}

	won, err := store.MarkVerified(ctx, "c1", now)
	if err != nil {
		t.Fatalf("MarkVerified failed: %v", err)
	}
	if !won {
		t.Fatal("first MarkVerified must win")
	}

	won, err = store.MarkVerified(ctx, "c1", now.Add(time.Second))
	if err != nil {
		t.Fatalf("MarkVerified failed: %v", err)
	}
	if won {
		t.Fatal("second MarkVerified must lose")
	}
}

func TestOTPReplaceDropsStaleID(t *testing.T) {
	store := New().OTP()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"c1", "c2"} {
		if err := store.ReplaceChallenge(ctx, &otp.Challenge{
			ID:        id,
			Owner:     "alice@example.com",
			Purpose:   otp.PurposeSignup,
			ExpiresAt: now.Add(10 * time.Minute),
		}); err != nil {
			t.Fatalf("ReplaceChallenge failed: %v", err)
		}
	}

	if _, err := store.IncrementAttempts(ctx, "c1"); err == nil {
		t.Fatal("superseded challenge id must be unknown")
	}

	latest, err := store.LatestChallenge(ctx, "alice@example.com", otp.PurposeSignup)
	if err != nil {
		t.Fatalf("LatestChallenge failed: %v", err)
	}
	if latest == nil || latest.ID != "c2" {
		t.Fatalf("expected c2, got %+v", latest)
	}
}

func TestDeviceSetBlockedCompareAndSet(t *testing.T) {
	store := New().Device()
	ctx := context.Background()

	if _, _, err := store.UpsertVisit(ctx, "fp-1", deviceObservation(), ""); err != nil {
		t.Fatalf("UpsertVisit failed: %v", err)
	}

	changed, err := store.SetBlocked(ctx, "fp-1", true)
	if err != nil {
		t.Fatalf("SetBlocked failed: %v", err)
	}
	if !changed {
		t.Fatal("first block must report the transition")
	}

	changed, err = store.SetBlocked(ctx, "fp-1", true)
	if err != nil {
		t.Fatalf("SetBlocked failed: %v", err)
	}
	if changed {
		t.Fatal("re-blocking must be a no-op")
	}
}

func TestDeviceUpsertVisitReportsPrior(t *testing.T) {
	store := New().Device()
	ctx := context.Background()

	prior, current, err := store.UpsertVisit(ctx, "fp-1", deviceObservation(), "ua-hash-1")
	if err != nil {
		t.Fatalf("UpsertVisit failed: %v", err)
	}
	if prior != nil {
		t.Fatal("first sight has no prior row")
	}
	if current.VisitCount != 1 {
		t.Fatalf("expected visit count 1, got %d", current.VisitCount)
	}

	prior, current, err = store.UpsertVisit(ctx, "fp-1", deviceObservation(), "ua-hash-2")
	if err != nil {
		t.Fatalf("UpsertVisit failed: %v", err)
	}
	if prior == nil || prior.UserAgentHash != "ua-hash-1" {
		t.Fatalf("prior row must carry the pre-visit state: %+v", prior)
	}
	if current.UserAgentHash != "ua-hash-2" || current.VisitCount != 2 {
		t.Fatalf("unexpected current row: %+v", current)
	}
}

func deviceObservation() device.Observation {
	return device.Observation{
		IP:     "203.0.113.5",
		UserID: "u1",
		Now:    time.Now(),
	}
}
