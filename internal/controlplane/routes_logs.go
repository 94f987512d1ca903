package controlplane

import (
	"net/http"
	"strconv"
)

// mountLogRoutes exposes the task manager's live task snapshots (name,
// scopes, current action, recent log lines) as a simple offset/limit
// page; there is no dedicated log store.
func (s *Server) mountLogRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		snapshots := s.app.Tasks.List()

		offset := parseIntParam(r, "offset", 0)
		limit := parseIntParam(r, "limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > len(snapshots) {
			limit = len(snapshots)
		}

		end := offset + limit
		if offset >= len(snapshots) {
			writeOK(w, map[string]any{"tasks": []any{}, "total": len(snapshots)})
			return
		}
		if end > len(snapshots) {
			end = len(snapshots)
		}

		writeOK(w, map[string]any{"tasks": snapshots[offset:end], "total": len(snapshots)})
	})
}

func parseIntParam(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
