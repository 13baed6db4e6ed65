package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	gatekit "github.com/afyadigital/gatekit"
)

// FingerprintHeader is where clients send their device fingerprint.
const FingerprintHeader = "X-Device-Fingerprint"

// Admit runs the admission gate before the wrapped handler. The endpoint
// name keys the rate-limit policy. Rate-limited callers get 429 with a
// Retry-After header; every other denial is a generic 403 so probes learn
// nothing about which control fired.
func Admit(engine *gatekit.Engine, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			rc := RequestContextFromRequest(r, endpoint)

			decision, err := engine.Evaluate(r.Context(), rc)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			if !decision.Admit {
				switch {
				case errors.Is(decision.Reason, gatekit.ErrRateLimited):
					if decision.RetryAfter > 0 {
						w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter/time.Second)+1))
					}
					http.Error(w, "too many requests", http.StatusTooManyRequests)
				case errors.Is(decision.Reason, gatekit.ErrUnavailable):
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				default:
					http.Error(w, "forbidden", http.StatusForbidden)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(gatekit.WithRequestContext(r.Context(), rc)))
		})
	}
}

// RequestContextFromRequest builds the gate's view of an HTTP request.
func RequestContextFromRequest(r *http.Request, endpoint string) gatekit.RequestContext {
	return gatekit.RequestContext{
		IP:          clientIP(r),
		Fingerprint: r.Header.Get(FingerprintHeader),
		UserAgent:   r.UserAgent(),
		Endpoint:    endpoint,
	}
}

// clientIP prefers the reverse-proxy headers and falls back to the socket
// peer. X-Forwarded-For may be a list; the first hop is the client.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
