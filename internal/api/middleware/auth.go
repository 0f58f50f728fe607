package middleware

import (
	"net/http"
)

// AuthConfig holds the shared-secret gate's configuration. This is not an
// identity system: identity providers live outside the job master, so the
// gate only recognizes a fixed set of pre-shared keys.
type AuthConfig struct {
	Enabled bool
	APIKeys map[string]bool
}

// Auth returns a middleware enforcing the API-key gate. When disabled it is
// a no-op, matching the job master's default of trusting its network
// perimeter.
func Auth(cfg *AuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				http.Error(w, "X-API-Key header required", http.StatusUnauthorized)
				return
			}

			if !cfg.APIKeys[apiKey] {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
