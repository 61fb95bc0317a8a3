package monitoring

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewPrometheusMonitor(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	monitor, err := NewPrometheusMonitor(&PrometheusConfig{
		Enabled:   true,
		Namespace: "taskmux",
		Subsystem: "router",
	}, logger)

	require.NoError(t, err)
	require.NotNil(t, monitor)
	assert.NotNil(t, monitor.registry)
	assert.NotNil(t, monitor.decisionsTotal)
	assert.NotNil(t, monitor.decisionScore)
	assert.NotNil(t, monitor.executionsTotal)
	assert.NotNil(t, monitor.executionDuration)
	assert.NotNil(t, monitor.fallbacksTotal)
}

func TestPrometheusMonitor_RecordDecision(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	monitor, err := NewPrometheusMonitor(&PrometheusConfig{
		Enabled:   true,
		Namespace: "taskmux",
		Subsystem: "router",
	}, logger)
	require.NoError(t, err)

	err = monitor.RecordDecision(&DecisionMetrics{
		Provider:          "claude",
		Strategy:          "fast",
		CostScore:         1.0,
		LatencyScore:      0.9,
		QualityScore:      0.8,
		AvailabilityScore: 1.0,
		TotalScore:        0.92,
		HealthMultiplier:  1.0,
		Candidates:        2,
	})
	require.NoError(t, err)

	body := scrape(t, monitor)
	assert.Contains(t, body, "taskmux_router_routing_decisions_total")
	assert.Contains(t, body, `provider="claude"`)
	assert.Contains(t, body, `strategy="fast"`)
	assert.Contains(t, body, "taskmux_router_routing_decision_score")
	assert.Contains(t, body, `dimension="latency"`)
}

func TestPrometheusMonitor_ColdStartDecisionSkipsScores(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	monitor, err := NewPrometheusMonitor(&PrometheusConfig{Namespace: "taskmux"}, logger)
	require.NoError(t, err)

	err = monitor.RecordDecision(&DecisionMetrics{
		Provider:  "claude",
		Strategy:  "balanced",
		ColdStart: true,
	})
	require.NoError(t, err)

	body := scrape(t, monitor)
	assert.Contains(t, body, `cold_start="true"`)
	assert.NotContains(t, body, "routing_decision_score{")
}

func TestPrometheusMonitor_RecordExecution(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	monitor, err := NewPrometheusMonitor(&PrometheusConfig{Namespace: "taskmux"}, logger)
	require.NoError(t, err)

	err = monitor.RecordExecution(&ExecutionMetrics{
		Provider: "claude",
		Channel:  "sdk",
		Duration: 150 * time.Millisecond,
		Success:  true,
	})
	require.NoError(t, err)

	err = monitor.RecordExecution(&ExecutionMetrics{
		Provider: "claude",
		Channel:  "cli",
		Duration: 2 * time.Second,
		Success:  false,
		Fallback: true,
	})
	require.NoError(t, err)

	body := scrape(t, monitor)
	assert.Contains(t, body, "taskmux_provider_executions_total")
	assert.Contains(t, body, `channel="sdk"`)
	assert.Contains(t, body, `success="false"`)
	assert.Contains(t, body, "taskmux_provider_fallbacks_total")
}

func TestPrometheusMonitor_FlushAndClose(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	monitor, err := NewPrometheusMonitor(&PrometheusConfig{}, logger)
	require.NoError(t, err)

	assert.NoError(t, monitor.Flush())
	assert.NoError(t, monitor.Close())
}

func scrape(t *testing.T, monitor *PrometheusMonitor) string {
	t.Helper()

	server := httptest.NewServer(monitor.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
