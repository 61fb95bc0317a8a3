package monitoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config represents monitoring configuration
type Config struct {
	// Enable monitoring
	Enabled bool `yaml:"enabled"`

	// Prometheus configuration
	Prometheus *PrometheusConfig `yaml:"prometheus,omitempty"`

	// OpenTelemetry configuration
	OpenTelemetry *OpenTelemetryConfig `yaml:"opentelemetry,omitempty"`
}

// PrometheusConfig represents Prometheus configuration
type PrometheusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// OpenTelemetryConfig represents OpenTelemetry configuration
type OpenTelemetryConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Insecure       bool              `yaml:"insecure"`
}

// DecisionMetrics represents one routing decision as seen by the
// observability pipeline. It carries no behavioral contract back into the
// router.
type DecisionMetrics struct {
	Provider          string
	Strategy          string
	CostScore         float64
	LatencyScore      float64
	QualityScore      float64
	AvailabilityScore float64
	TotalScore        float64
	HealthMultiplier  float64
	ColdStart         bool
	Candidates        int
}

// ExecutionMetrics represents one completed provider attempt.
type ExecutionMetrics struct {
	Provider string
	Channel  string
	Duration time.Duration
	Success  bool
	Fallback bool
}

// Monitor interface for different monitoring backends
type Monitor interface {
	RecordDecision(decision *DecisionMetrics) error
	RecordExecution(execution *ExecutionMetrics) error
	Flush() error
	Close() error
}

// Manager fans routing observability out to all enabled backends.
type Manager struct {
	config     *Config
	prometheus *PrometheusMonitor
	otel       *OpenTelemetryMonitor
	logger     *zap.SugaredLogger
}

// NewManager creates a new monitoring manager
func NewManager(config *Config, logger *zap.SugaredLogger) (*Manager, error) {
	manager := &Manager{
		config: config,
		logger: logger,
	}
	if config == nil || !config.Enabled {
		return manager, nil
	}

	if config.Prometheus != nil && config.Prometheus.Enabled {
		prometheus, err := NewPrometheusMonitor(config.Prometheus, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Prometheus monitor: %v", err)
		}
		manager.prometheus = prometheus
	}

	if config.OpenTelemetry != nil && config.OpenTelemetry.Enabled {
		otel, err := NewOpenTelemetryMonitor(config.OpenTelemetry, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenTelemetry monitor: %v", err)
		}
		manager.otel = otel
	}

	return manager, nil
}

func (m *Manager) enabled() bool {
	return m != nil && m.config != nil && m.config.Enabled
}

// Prometheus exposes the Prometheus backend, if enabled, so the embedding
// process can mount its scrape handler.
func (m *Manager) Prometheus() *PrometheusMonitor {
	if m == nil {
		return nil
	}
	return m.prometheus
}

// RecordDecision records a routing decision across all enabled monitors
func (m *Manager) RecordDecision(decision *DecisionMetrics) error {
	if !m.enabled() {
		return nil
	}

	var errs []error
	if m.prometheus != nil {
		if err := m.prometheus.RecordDecision(decision); err != nil {
			errs = append(errs, fmt.Errorf("prometheus: %v", err))
		}
	}
	if m.otel != nil {
		if err := m.otel.RecordDecision(decision); err != nil {
			errs = append(errs, fmt.Errorf("opentelemetry: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("monitoring errors: %v", errs)
	}
	return nil
}

// RecordExecution records an execution outcome across all enabled monitors
func (m *Manager) RecordExecution(execution *ExecutionMetrics) error {
	if !m.enabled() {
		return nil
	}

	var errs []error
	if m.prometheus != nil {
		if err := m.prometheus.RecordExecution(execution); err != nil {
			errs = append(errs, fmt.Errorf("prometheus: %v", err))
		}
	}
	if m.otel != nil {
		if err := m.otel.RecordExecution(execution); err != nil {
			errs = append(errs, fmt.Errorf("opentelemetry: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("monitoring errors: %v", errs)
	}
	return nil
}

// Flush flushes all enabled monitors
func (m *Manager) Flush() error {
	if !m.enabled() {
		return nil
	}

	var errs []error
	if m.prometheus != nil {
		if err := m.prometheus.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("prometheus: %v", err))
		}
	}
	if m.otel != nil {
		if err := m.otel.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("opentelemetry: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("monitoring errors: %v", errs)
	}
	return nil
}

// Close shuts down all enabled monitors
func (m *Manager) Close() error {
	if !m.enabled() {
		return nil
	}

	var errs []error
	if m.prometheus != nil {
		if err := m.prometheus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("prometheus: %v", err))
		}
	}
	if m.otel != nil {
		if err := m.otel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("opentelemetry: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("monitoring errors: %v", errs)
	}
	return nil
}
