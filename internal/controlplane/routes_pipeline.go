package controlplane

import (
	"net/http"

	"github.com/chatmesh/gateway/internal/config"
)

// mountPipelineRoutes exposes the pipeline bundle as a single read/write
// resource. The gateway only ever loads one pipeline bundle (config
// snapshots are frozen per query), so there is no collection of named
// pipelines, just get/replace.
func (s *Server) mountPipelineRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/pipeline", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeOK(w, s.app.Config.Current().Pipeline)
		case http.MethodPut:
			var cfg config.PipelineConfig
			if err := decodeJSON(r, &cfg); err != nil {
				writeErr(w, http.StatusBadRequest, "invalid pipeline config: "+err.Error())
				return
			}
			if err := s.app.Config.WriteBundle("pipeline", cfg); err != nil {
				writeErr(w, http.StatusBadRequest, err.Error())
				return
			}
			if err := s.app.Controller.Initialize(s.app.Config.Current().Pipeline); err != nil {
				writeErr(w, http.StatusInternalServerError, "pipeline written but failed to apply: "+err.Error())
				return
			}
			writeOK(w, s.app.Config.Current().Pipeline)
		default:
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}
