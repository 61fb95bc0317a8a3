package monitoring

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusMonitor implements monitoring using Prometheus
type PrometheusMonitor struct {
	config   *PrometheusConfig
	registry *prometheus.Registry
	logger   *zap.SugaredLogger

	decisionsTotal    *prometheus.CounterVec
	decisionScore     *prometheus.GaugeVec
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	fallbacksTotal    *prometheus.CounterVec
}

// NewPrometheusMonitor creates a new Prometheus monitor
func NewPrometheusMonitor(config *PrometheusConfig, logger *zap.SugaredLogger) (*PrometheusMonitor, error) {
	pm := &PrometheusMonitor{
		config:   config,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	pm.initializeMetrics()
	return pm, nil
}

func (p *PrometheusMonitor) initializeMetrics() {
	namespace := p.config.Namespace
	subsystem := p.config.Subsystem

	p.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions",
		},
		[]string{"provider", "strategy", "cold_start"},
	)

	p.decisionScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "routing_decision_score",
			Help:      "Sub-scores of the most recently selected provider",
		},
		[]string{"provider", "dimension"},
	)

	p.executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_executions_total",
			Help:      "Total number of provider executions",
		},
		[]string{"provider", "channel", "success"},
	)

	p.executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_execution_duration_seconds",
			Help:      "Provider execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "channel"},
	)

	p.fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_fallbacks_total",
			Help:      "Total number of SDK-to-CLI fallbacks",
		},
		[]string{"provider"},
	)

	p.registry.MustRegister(
		p.decisionsTotal,
		p.decisionScore,
		p.executionsTotal,
		p.executionDuration,
		p.fallbacksTotal,
	)
}

// Handler returns an HTTP handler serving the scrape endpoint.
func (p *PrometheusMonitor) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// RecordDecision records a routing decision
func (p *PrometheusMonitor) RecordDecision(decision *DecisionMetrics) error {
	p.decisionsTotal.WithLabelValues(
		decision.Provider,
		decision.Strategy,
		strconv.FormatBool(decision.ColdStart),
	).Inc()

	if decision.ColdStart {
		return nil
	}
	p.decisionScore.WithLabelValues(decision.Provider, "cost").Set(decision.CostScore)
	p.decisionScore.WithLabelValues(decision.Provider, "latency").Set(decision.LatencyScore)
	p.decisionScore.WithLabelValues(decision.Provider, "quality").Set(decision.QualityScore)
	p.decisionScore.WithLabelValues(decision.Provider, "availability").Set(decision.AvailabilityScore)
	p.decisionScore.WithLabelValues(decision.Provider, "total").Set(decision.TotalScore)
	return nil
}

// RecordExecution records an execution outcome
func (p *PrometheusMonitor) RecordExecution(execution *ExecutionMetrics) error {
	p.executionsTotal.WithLabelValues(
		execution.Provider,
		execution.Channel,
		strconv.FormatBool(execution.Success),
	).Inc()
	p.executionDuration.WithLabelValues(execution.Provider, execution.Channel).
		Observe(execution.Duration.Seconds())
	if execution.Fallback {
		p.fallbacksTotal.WithLabelValues(execution.Provider).Inc()
	}
	return nil
}

// Flush is a no-op for Prometheus; metrics are pulled by the scraper.
func (p *PrometheusMonitor) Flush() error {
	return nil
}

// Close is a no-op for Prometheus.
func (p *PrometheusMonitor) Close() error {
	return nil
}
