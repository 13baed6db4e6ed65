package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gatekit "github.com/afyadigital/gatekit"
	"github.com/afyadigital/gatekit/store/memory"
)

func newTestEngine(t *testing.T) *gatekit.Engine {
	t.Helper()

	cfg := gatekit.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-shared-secret-0123456789abc")
	cfg.JWT.Issuer = "gatekit-test"

	mem := memory.New()
	engine, err := gatekit.New().
		WithConfig(cfg).
		WithStores(gatekit.Stores{
			RateLimit: mem.RateLimit(),
			OTP:       mem.OTP(),
			Device:    mem.Device(),
			Session:   mem.Session(),
			Events:    mem.Events(),
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func loginReq() *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "203.0.113.5:50234"
	return r
}

func TestAdmitPassesThrough(t *testing.T) {
	engine := newTestEngine(t)
	handler := Admit(engine, "login")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginReq())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdmitAttachesRequestContext(t *testing.T) {
	engine := newTestEngine(t)

	var seen gatekit.RequestContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := gatekit.RequestContextFromContext(r.Context())
		if !ok {
			t.Fatal("request context missing")
		}
		seen = rc
		w.WriteHeader(http.StatusOK)
	})

	r := loginReq()
	r.Header.Set(FingerprintHeader, "fp-1")
	r.Header.Set("User-Agent", "test-agent")

	rec := httptest.NewRecorder()
	Admit(engine, "login")(inner).ServeHTTP(rec, r)

	if seen.IP != "203.0.113.5" || seen.Fingerprint != "fp-1" || seen.Endpoint != "login" {
		t.Fatalf("unexpected request context: %+v", seen)
	}
}

func TestAdmitRateLimitedReturns429(t *testing.T) {
	engine := newTestEngine(t)
	handler := Admit(engine, "login")(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, loginReq())
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestAdmitBlockedDeviceReturns403(t *testing.T) {
	engine := newTestEngine(t)
	handler := Admit(engine, "browse")(okHandler())

	r := loginReq()
	r.Header.Set(FingerprintHeader, "fp-bad")

	// First request creates the device row, then it gets blocked.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if err := engine.BlockDevice(r.Context(), "fp-bad", "admin-1"); err != nil {
		t.Fatalf("BlockDevice failed: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Fatal("device denials carry no Retry-After")
	}
}

func TestAdmitNilEngineReturns503(t *testing.T) {
	handler := Admit(nil, "login")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginReq())

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGuardValidToken(t *testing.T) {
	engine := newTestEngine(t)

	pair, err := engine.CreateSession(loginReq().Context(), "u1", gatekit.RequestContext{
		IP:          "203.0.113.5",
		Fingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var userID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := gatekit.SessionFromContext(r.Context())
		if sess == nil {
			t.Fatal("session missing from context")
		}
		userID = sess.UserID
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.Header.Set(FingerprintHeader, "fp-1")

	rec := httptest.NewRecorder()
	Guard(engine)(inner).ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if userID != "u1" {
		t.Fatalf("expected user u1, got %q", userID)
	}
}

func TestGuardRejectsMissingToken(t *testing.T) {
	engine := newTestEngine(t)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	Guard(engine)(okHandler()).ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardRejectsWrongFingerprint(t *testing.T) {
	engine := newTestEngine(t)

	pair, err := engine.CreateSession(loginReq().Context(), "u1", gatekit.RequestContext{
		IP:          "203.0.113.5",
		Fingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.Header.Set(FingerprintHeader, "fp-stolen")

	rec := httptest.NewRecorder()
	Guard(engine)(okHandler()).ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClientIPPrefersProxyHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"

	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("expected socket peer, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")
	if got := clientIP(r); got != "203.0.113.5" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}

	r.Header.Set("X-Real-IP", "198.51.100.7")
	if got := clientIP(r); got != "198.51.100.7" {
		t.Fatalf("expected X-Real-IP to win, got %q", got)
	}
}
