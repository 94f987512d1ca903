package controlplane

import (
	"net/http"
	"strings"

	"github.com/chatmesh/gateway/internal/config"
)

// settingsBundles names every bundle the settings routes expose, besides
// pipeline which gets its own richer route in routes_pipeline.go.
var settingsBundles = map[string]bool{
	"command":  true,
	"platform": true,
	"provider": true,
	"system":   true,
}

// mountSettingsRoutes exposes /api/settings/{bundle} as a generic
// read/write pair over the remaining four config bundles, reusing
// config.Loader.WriteBundle's validate-before-swap behavior so a malformed
// write never reaches a running query.
func (s *Server) mountSettingsRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/settings/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/settings/")
		if !settingsBundles[name] {
			writeErr(w, http.StatusNotFound, "unknown settings bundle")
			return
		}

		bundles := s.app.Config.Current()
		switch r.Method {
		case http.MethodGet:
			writeOK(w, bundleByName(bundles, name))
		case http.MethodPut:
			s.writeSettingsBundle(w, r, name)
		default:
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func bundleByName(bundles *config.Bundles, name string) any {
	switch name {
	case "command":
		return bundles.Command
	case "platform":
		return bundles.Platform
	case "provider":
		return bundles.Provider
	case "system":
		return bundles.System
	default:
		return nil
	}
}

func (s *Server) writeSettingsBundle(w http.ResponseWriter, r *http.Request, name string) {
	var err error
	switch name {
	case "command":
		var cfg config.CommandConfig
		if err = decodeJSON(r, &cfg); err == nil {
			err = s.app.Config.WriteBundle(name, cfg)
		}
	case "platform":
		var cfg config.PlatformConfig
		if err = decodeJSON(r, &cfg); err == nil {
			err = s.app.Config.WriteBundle(name, cfg)
		}
	case "provider":
		var cfg config.ProviderConfig
		if err = decodeJSON(r, &cfg); err == nil {
			err = s.app.Config.WriteBundle(name, cfg)
		}
	case "system":
		var cfg config.SystemConfig
		if err = decodeJSON(r, &cfg); err == nil {
			err = s.app.Config.WriteBundle(name, cfg)
		}
	}
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w, bundleByName(s.app.Config.Current(), name))
}
