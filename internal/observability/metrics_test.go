package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMessagesCounter exercises the label shape gateway_messages_total
// uses, against an isolated registry so it doesn't collide with NewMetrics'
// use of the global default registry.
func TestMessagesCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_gateway_messages_total",
			Help: "test counter",
		},
		[]string{"channel", "direction"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("discord", "inbound").Inc()
	counter.WithLabelValues("discord", "inbound").Inc()
	counter.WithLabelValues("slack", "outbound").Inc()

	if got := testutil.CollectAndCount(counter); got != 2 {
		t.Fatalf("expected 2 label combinations, got %d", got)
	}

	expected := `
		# HELP test_gateway_messages_total test counter
		# TYPE test_gateway_messages_total counter
		test_gateway_messages_total{channel="discord",direction="inbound"} 2
		test_gateway_messages_total{channel="slack",direction="outbound"} 1
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metric value: %v", err)
	}
}

// TestNewMetricsRegistersAllCollectors builds a real Metrics against the
// default registry exactly once per test binary run and checks every field
// is non-nil, catching a forgotten promauto.New* call.
func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	m := NewMetrics()

	if m.MessagesTotal == nil || m.QueryPoolDepth == nil || m.QueryPoolCapacity == nil {
		t.Fatal("expected message/query-pool collectors to be non-nil")
	}
	if m.StageDuration == nil || m.StageErrors == nil {
		t.Fatal("expected stage collectors to be non-nil")
	}
	if m.LLMRequestDuration == nil || m.LLMRequestsTotal == nil {
		t.Fatal("expected LLM collectors to be non-nil")
	}
	if m.ToolCallsTotal == nil || m.ToolCallIterations == nil {
		t.Fatal("expected tool-call collectors to be non-nil")
	}
	if m.ActiveSessions == nil || m.SessionsExpiredTotal == nil {
		t.Fatal("expected session collectors to be non-nil")
	}
	if m.CommandsTotal == nil || m.PluginListenerErrors == nil || m.HTTPRequestDuration == nil {
		t.Fatal("expected command/plugin/http collectors to be non-nil")
	}

	m.QueryPoolDepth.Set(3)
	if got := testutil.ToFloat64(m.QueryPoolDepth); got != 3 {
		t.Fatalf("expected gauge value 3, got %v", got)
	}
}
