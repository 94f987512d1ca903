// Package observability provides the gateway's Prometheus metrics and
// OpenTelemetry tracing: one promauto-registered Metrics struct covering
// message flow, LLM calls, tool executions and session lifecycle, plus an
// OTLP-exporting Tracer wrapping one span per query.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes every Prometheus collector the gateway exposes at
// /metrics. The app updates only MessagesTotal, QueryPoolDepth,
// QueryPoolCapacity, StageErrors, ActiveSessions and SessionsExpiredTotal;
// the other collectors are registered but nothing in the gateway updates
// them.
type Metrics struct {
	// MessagesTotal counts inbound/outbound messages by channel and
	// direction (inbound|outbound).
	MessagesTotal *prometheus.CounterVec

	// QueryPoolDepth tracks how many queries are currently in flight
	// through the querypool.Dispatcher.
	QueryPoolDepth prometheus.Gauge

	// QueryPoolCapacity reports the dispatcher's configured concurrency
	// ceiling, so depth/capacity ratio is readable without a second query.
	QueryPoolCapacity prometheus.Gauge

	// StageDuration measures how long each named pipeline stage takes.
	// Labels: stage.
	StageDuration *prometheus.HistogramVec

	// StageErrors counts stage failures. Labels: stage, kind (PipelineError.Kind).
	StageErrors *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency. Labels: provider, model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestsTotal counts LLM calls. Labels: provider, model, status.
	LLMRequestsTotal *prometheus.CounterVec

	// ToolCallsTotal counts tool invocations from the local-agent runner's
	// loop. Labels: tool, status (success|error).
	ToolCallsTotal *prometheus.CounterVec

	// ToolCallIterations records how many tool-call rounds a single chat
	// turn took before yielding a final answer.
	ToolCallIterations prometheus.Histogram

	// ActiveSessions tracks live sessions held by the session manager.
	ActiveSessions prometheus.Gauge

	// SessionsExpiredTotal counts sessions closed by the expiry sweeper.
	SessionsExpiredTotal prometheus.Counter

	// CommandsTotal counts command dispatches. Labels: command, status
	// (ok|unauthorized|error).
	CommandsTotal *prometheus.CounterVec

	// PluginListenerErrors counts listener failures caught by the plugin
	// host. Labels: kind (model.EventKind).
	PluginListenerErrors *prometheus.CounterVec

	// HTTPRequestDuration measures control-plane HTTP latency. Labels:
	// method, path, status.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector against Prometheus's default
// registry and returns the populated struct. Call once at boot.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_messages_total",
				Help: "Total number of messages handled, by channel and direction",
			},
			[]string{"channel", "direction"},
		),

		QueryPoolDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_query_pool_depth",
				Help: "Number of queries currently in flight through the query pool",
			},
		),

		QueryPoolCapacity: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_query_pool_capacity",
				Help: "Configured maximum concurrency of the query pool",
			},
		),

		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_stage_duration_seconds",
				Help:    "Duration of one pipeline stage's Process call",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"stage"},
		),

		StageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_stage_errors_total",
				Help: "Total number of stage failures, by stage and error kind",
			},
			[]string{"stage", "kind"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_llm_request_duration_seconds",
				Help:    "Duration of LLM requester calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_llm_requests_total",
				Help: "Total number of LLM requester calls, by provider, model and status",
			},
			[]string{"provider", "model", "status"},
		),

		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tool_calls_total",
				Help: "Total number of tool invocations from the local-agent loop",
			},
			[]string{"tool", "status"},
		),

		ToolCallIterations: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_tool_call_iterations",
				Help:    "Number of tool-call rounds per chat turn before a final answer",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 7, 10},
			},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_active_sessions",
				Help: "Number of live sessions held by the session manager",
			},
		),

		SessionsExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_expired_total",
				Help: "Total number of sessions closed by the expiry sweeper",
			},
		),

		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_commands_total",
				Help: "Total number of command dispatches, by command and outcome",
			},
			[]string{"command", "status"},
		),

		PluginListenerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_plugin_listener_errors_total",
				Help: "Total number of plugin listener failures, by event kind",
			},
			[]string{"kind"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "Duration of control-plane HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status"},
		),
	}
}
