package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware enforces JWT/API key auth for HTTP control-plane routes.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil || !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			if token := extractBearer(r.Header); token != "" {
				admin, err := service.ValidateJWT(token)
				if err != nil {
					if logger != nil {
						logger.Warn("jwt validation failed", "error", err)
					}
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), admin)))
				return
			}

			if apiKey := extractAPIKey(r.Header); apiKey != "" {
				admin, err := service.ValidateAPIKey(apiKey)
				if err != nil {
					if logger != nil {
						logger.Warn("api key validation failed", "error", err)
					}
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), admin)))
				return
			}

			http.Error(w, "missing credentials", http.StatusUnauthorized)
		})
	}
}

func extractBearer(h http.Header) string {
	value := h.Get("Authorization")
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "bearer ") {
		return strings.TrimSpace(value[len("bearer "):])
	}
	return ""
}

func extractAPIKey(h http.Header) string {
	for _, key := range []string{"X-Api-Key", "Api-Key"} {
		if value := strings.TrimSpace(h.Get(key)); value != "" {
			return value
		}
	}
	return ""
}
