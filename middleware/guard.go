package middleware

import (
	"net/http"
	"strings"

	gatekit "github.com/afyadigital/gatekit"
)

// Guard enforces a valid bearer access token and a live session. On
// success the session is attached to the request context, readable via
// gatekit.SessionFromContext.
func Guard(engine *gatekit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := engine.ValidateAccess(r.Context(), token, r.Header.Get(FingerprintHeader))
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(gatekit.WithSession(r.Context(), sess)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
