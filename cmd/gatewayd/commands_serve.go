package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that boots the gateway: loads
// the five config bundles, opens storage, starts every enabled channel
// adapter and the control plane, and blocks until SIGINT/SIGTERM.
func buildServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long: `Start the gateway server with all configured channel adapters and providers.

The server will:
1. Load and validate the five config bundles (command, pipeline, platform,
   provider, system) from --config-dir.
2. Open session/bot storage (sqlite by default, or Postgres via --dsn).
3. Initialize every configured LLM provider model.
4. Start every enabled channel adapter (Discord, Telegram, Slack).
5. Start the HTTP+WS control plane if system.http.enabled is true.

Graceful shutdown runs on SIGINT/SIGTERM, draining in-flight queries before
the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigDir, "config-dir", "./config",
		"Directory containing command.yaml, pipeline.yaml, platform.yaml, provider.yaml, system.yaml")
	cmd.Flags().StringVar(&opts.SQLitePath, "sqlite-path", "gateway.sqlite",
		"Path to the sqlite database file (ignored if --dsn is set)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "",
		"Postgres connection string; if set, storage uses Postgres instead of sqlite")
	cmd.Flags().StringVar(&opts.JWTSecretEnv, "jwt-secret-env", "GATEWAY_JWT_SECRET",
		"Environment variable naming the control plane's JWT signing secret")
	cmd.Flags().StringVar(&opts.APIKeysFile, "api-keys-file", "",
		"Optional JSON file of static control-plane API keys")
	cmd.Flags().StringVar(&opts.OTLPEndpointEnv, "otlp-endpoint-env", "GATEWAY_OTLP_ENDPOINT",
		"Environment variable naming the OTLP collector endpoint (empty disables tracing)")
	cmd.Flags().Float64Var(&opts.TraceSamplingRate, "trace-sampling-rate", 0.1,
		"Fraction of queries to trace when tracing is enabled")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug-level logging")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 0,
		"Maximum time to wait for graceful shutdown (default 30s)")

	return cmd
}
