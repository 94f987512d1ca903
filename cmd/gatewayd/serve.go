package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chatmesh/gateway/internal/app"
	"github.com/chatmesh/gateway/internal/auth"
	"github.com/chatmesh/gateway/internal/config"
	"github.com/chatmesh/gateway/internal/controlplane"
	"github.com/chatmesh/gateway/internal/observability"
)

// serveOptions collects every flag buildServeCmd exposes, kept as one
// struct so runServe's signature stays stable as flags are added.
type serveOptions struct {
	ConfigDir         string
	SQLitePath        string
	DSN               string
	JWTSecretEnv      string
	APIKeysFile       string
	OTLPEndpointEnv   string
	TraceSamplingRate float64
	Debug             bool
	ShutdownTimeout   time.Duration
}

func runServe(ctx context.Context, opts serveOptions) error {
	logger := buildLogger(opts.Debug)
	slog.SetDefault(logger)

	application, err := app.New(ctx, app.Options{
		ConfigPaths: bundlePaths(opts.ConfigDir),
		Logger:      logger,
		StoragePath: opts.SQLitePath,
		DSN:         opts.DSN,
		Auth:        authConfig(opts),
		TraceConfig: observability.TraceConfig{
			ServiceName:  "gatewayd",
			Environment:  envOr("GATEWAY_ENV", "production"),
			Endpoint:     os.Getenv(opts.OTLPEndpointEnv),
			SamplingRate: opts.TraceSamplingRate,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	cp := controlplane.New(application)
	if err := cp.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	logger.Info("gateway started", "config_dir", opts.ConfigDir)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := cp.Stop(shutdownCtx); err != nil {
		logger.Warn("control plane shutdown error", "error", err)
	}
	if err := application.Shutdown(shutdownCtx, timeout); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func buildLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func bundlePaths(dir string) config.BundlePaths {
	return config.BundlePaths{
		Command:  filepath.Join(dir, "command.yaml"),
		Pipeline: filepath.Join(dir, "pipeline.yaml"),
		Platform: filepath.Join(dir, "platform.yaml"),
		Provider: filepath.Join(dir, "provider.yaml"),
		System:   filepath.Join(dir, "system.yaml"),
	}
}

func authConfig(opts serveOptions) auth.Config {
	cfg := auth.Config{
		JWTSecret:   os.Getenv(opts.JWTSecretEnv),
		TokenExpiry: 24 * time.Hour,
	}
	if opts.APIKeysFile == "" {
		return cfg
	}
	data, err := os.ReadFile(opts.APIKeysFile)
	if err != nil {
		slog.Warn("failed to read api keys file", "path", opts.APIKeysFile, "error", err)
		return cfg
	}
	var keys []auth.APIKeyConfig
	if err := json.Unmarshal(data, &keys); err != nil {
		slog.Warn("failed to parse api keys file", "path", opts.APIKeysFile, "error", err)
		return cfg
	}
	cfg.APIKeys = keys
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
