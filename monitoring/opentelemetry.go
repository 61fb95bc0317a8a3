package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// OpenTelemetryMonitor implements monitoring using OpenTelemetry metrics
// pushed over OTLP.
type OpenTelemetryMonitor struct {
	config        *OpenTelemetryConfig
	logger        *zap.SugaredLogger
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	decisionCounter   metric.Int64Counter
	decisionScore     metric.Float64Histogram
	executionCounter  metric.Int64Counter
	executionDuration metric.Float64Histogram
	fallbackCounter   metric.Int64Counter
}

// NewOpenTelemetryMonitor creates a new OpenTelemetry monitor
func NewOpenTelemetryMonitor(config *OpenTelemetryConfig, logger *zap.SugaredLogger) (*OpenTelemetryMonitor, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("OpenTelemetry endpoint is required")
	}

	monitor := &OpenTelemetryMonitor{
		config: config,
		logger: logger,
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %v", err)
	}

	if err := monitor.initializeMetrics(res); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %v", err)
	}

	return monitor, nil
}

func (o *OpenTelemetryMonitor) initializeMetrics(res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(o.config.Endpoint),
		otlpmetricgrpc.WithHeaders(o.config.Headers),
	}
	if o.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP metrics exporter: %v", err)
	}

	o.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(o.meterProvider)
	o.meter = o.meterProvider.Meter("taskmux-router")

	return o.createInstruments()
}

func (o *OpenTelemetryMonitor) createInstruments() error {
	var err error

	o.decisionCounter, err = o.meter.Int64Counter(
		"routing_decisions_total",
		metric.WithDescription("Total number of routing decisions"),
	)
	if err != nil {
		return err
	}

	o.decisionScore, err = o.meter.Float64Histogram(
		"routing_decision_total_score",
		metric.WithDescription("Total score of the selected provider"),
	)
	if err != nil {
		return err
	}

	o.executionCounter, err = o.meter.Int64Counter(
		"provider_executions_total",
		metric.WithDescription("Total number of provider executions"),
	)
	if err != nil {
		return err
	}

	o.executionDuration, err = o.meter.Float64Histogram(
		"provider_execution_duration_seconds",
		metric.WithDescription("Provider execution duration in seconds"),
	)
	if err != nil {
		return err
	}

	o.fallbackCounter, err = o.meter.Int64Counter(
		"provider_fallbacks_total",
		metric.WithDescription("Total number of SDK-to-CLI fallbacks"),
	)
	return err
}

// RecordDecision records a routing decision
func (o *OpenTelemetryMonitor) RecordDecision(decision *DecisionMetrics) error {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("provider", decision.Provider),
		attribute.String("strategy", decision.Strategy),
		attribute.Bool("cold_start", decision.ColdStart),
	)
	o.decisionCounter.Add(ctx, 1, attrs)
	if !decision.ColdStart {
		o.decisionScore.Record(ctx, decision.TotalScore, metric.WithAttributes(
			attribute.String("provider", decision.Provider),
			attribute.String("strategy", decision.Strategy),
		))
	}
	return nil
}

// RecordExecution records an execution outcome
func (o *OpenTelemetryMonitor) RecordExecution(execution *ExecutionMetrics) error {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("provider", execution.Provider),
		attribute.String("channel", execution.Channel),
		attribute.Bool("success", execution.Success),
	)
	o.executionCounter.Add(ctx, 1, attrs)
	o.executionDuration.Record(ctx, execution.Duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", execution.Provider),
		attribute.String("channel", execution.Channel),
	))
	if execution.Fallback {
		o.fallbackCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", execution.Provider),
		))
	}
	return nil
}

// Flush forces a metrics export.
func (o *OpenTelemetryMonitor) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return o.meterProvider.ForceFlush(ctx)
}

// Close shuts down the meter provider.
func (o *OpenTelemetryMonitor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
