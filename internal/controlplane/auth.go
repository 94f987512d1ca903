package controlplane

import (
	"log/slog"
	"net/http"

	"github.com/chatmesh/gateway/internal/auth"
)

// unauthenticatedPaths are reachable without credentials so ops tooling
// (load balancer health probes, Prometheus scrapers) doesn't need a token.
var unauthenticatedPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// authGate applies auth.Middleware to every route except the ones named
// above.
func authGate(service *auth.Service, logger *slog.Logger, next http.Handler) http.Handler {
	guarded := auth.Middleware(service, logger)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unauthenticatedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}
