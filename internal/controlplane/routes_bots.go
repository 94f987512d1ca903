package controlplane

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chatmesh/gateway/internal/model"
)

// mountBotRoutes wires bot CRUD against Application.Bots, the
// sqlite/postgres bots.Store opened at boot. /api/bots/{uuid} dispatches
// by method rather than a separate mux entry per verb.
func (s *Server) mountBotRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/bots", s.handleBotsCollection)
	mux.HandleFunc("/api/bots/", s.handleBotsItem)
}

func (s *Server) handleBotsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		bots, err := s.app.Bots.List(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w, bots)
	case http.MethodPost:
		var bot model.Bot
		if err := decodeJSON(r, &bot); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid bot payload: "+err.Error())
			return
		}
		if bot.UUID == "" {
			bot.UUID = uuid.NewString()
		}
		if err := s.app.Bots.Create(r.Context(), bot); err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w, bot)
	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleBotsItem(w http.ResponseWriter, r *http.Request) {
	uuid := strings.TrimPrefix(r.URL.Path, "/api/bots/")
	if uuid == "" {
		writeErr(w, http.StatusBadRequest, "missing bot uuid")
		return
	}

	switch r.Method {
	case http.MethodGet:
		bot, err := s.app.Bots.Get(r.Context(), uuid)
		if err != nil {
			writeErr(w, http.StatusNotFound, err.Error())
			return
		}
		writeOK(w, bot)
	case http.MethodPut:
		var bot model.Bot
		if err := decodeJSON(r, &bot); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid bot payload: "+err.Error())
			return
		}
		bot.UUID = uuid
		if err := s.app.Bots.Update(r.Context(), bot); err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w, bot)
	case http.MethodDelete:
		if err := s.app.Bots.Delete(r.Context(), uuid); err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w, nil)
	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// mountModelRoutes exposes the model manager's registered LLM models
// read-only, for the console's model-list view; there is no route that
// switches the model.
func (s *Server) mountModelRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		names := s.app.Models.List()
		defaultModel, _ := s.app.Models.Default()
		writeOK(w, map[string]any{
			"models":  names,
			"default": defaultModel.Name,
		})
	})

	mux.HandleFunc("/api/adapters", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		adapters := s.app.Channels.All()
		out := make([]map[string]any, 0, len(adapters))
		for _, a := range adapters {
			out = append(out, map[string]any{"type": string(a.Type())})
		}
		writeOK(w, out)
	})
}
