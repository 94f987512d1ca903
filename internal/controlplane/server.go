// Package controlplane implements the gateway's HTTP+WS control surface:
// bot CRUD, adapter metadata, pipeline and settings read/write, model
// listing and log paging, all behind auth.Middleware and all replying
// with the {code, msg, data} envelope, plus a websocket event stream for
// the operator console.
package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatmesh/gateway/internal/app"
)

// Server owns the control plane's listener and mux. It is built around an
// already-constructed *app.Application rather than duplicating references
// to each collaborator.
type Server struct {
	app    *app.Application
	logger *slog.Logger

	httpServer *http.Server
	listener   net.Listener

	hub *eventHub
}

// New builds a Server. Call Start to bind and begin serving.
func New(application *app.Application) *Server {
	logger := application.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		app:    application,
		logger: logger.With("component", "controlplane"),
		hub:    newEventHub(application.Plugins, logger),
	}
}

// Start binds the configured HTTP address and begins serving in the
// background. A disabled HTTP config is a no-op.
func (s *Server) Start(ctx context.Context) error {
	bundles := s.app.Config.Current()
	if !bundles.System.HTTP.Enabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", bundles.System.HTTP.Host, bundles.System.HTTP.Port)
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/ws", s.hub)

	s.mountBotRoutes(mux)
	s.mountPipelineRoutes(mux)
	s.mountModelRoutes(mux)
	s.mountSettingsRoutes(mux)
	s.mountLogRoutes(mux)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("controlplane: listen on %q: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withAuth(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.listener = listener

	s.hub.start(ctx)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control plane http server error", "error", err)
		}
	}()

	s.logger.Info("control plane listening", "addr", addr)
	return nil
}

// Stop gracefully shuts the HTTP server down, bounded by ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.hub.stop()
	err := s.httpServer.Shutdown(ctx)
	s.httpServer = nil
	s.listener = nil
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{
		"status":      "ok",
		"sessions":    len(s.app.SessionMgr.List()),
		"adapters":    len(s.app.Channels.All()),
		"query_depth": s.app.Pool.InFlight(),
	})
}

// withAuth wraps the mux in auth.Middleware, except for /healthz and
// /metrics which ops tooling needs to reach unauthenticated.
func (s *Server) withAuth(mux *http.ServeMux) http.Handler {
	protected := s.app.Auth
	guarded := authGate(protected, s.logger, mux)
	return guarded
}
