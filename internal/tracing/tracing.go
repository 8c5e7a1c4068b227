// Package tracing sets up OpenTelemetry for the webhook pipeline.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "happytown"

// Config contains OpenTelemetry configuration.
type Config struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "happytown",
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "http://localhost:4318/v1/traces",
		SampleRate:     0.1,
		Enabled:        false,
		UseStdout:      true,
	}
}

// Manager manages OpenTelemetry setup and lifecycle.
type Manager struct {
	config         Config
	logger         *logrus.Logger
	tracerProvider *trace.TracerProvider
}

func NewManager(config Config, logger *logrus.Logger) *Manager {
	return &Manager{config: config, logger: logger}
}

// Initialize sets up the global tracer provider and propagator.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("OpenTelemetry tracing is disabled")
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(m.config.ServiceName),
			semconv.ServiceVersionKey.String(m.config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(m.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	if m.config.UseStdout {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		m.logger.Info("Using stdout trace exporter")
	} else {
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(m.config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
		}
		m.logger.WithField("endpoint", m.config.OTLPEndpoint).Info("Using OTLP HTTP trace exporter")
	}

	m.tracerProvider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.config.SampleRate)),
	)

	otel.SetTracerProvider(m.tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	m.logger.WithFields(logrus.Fields{
		"service":     m.config.ServiceName,
		"sample_rate": m.config.SampleRate,
	}).Info("OpenTelemetry tracing initialized")
	return nil
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.tracerProvider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.tracerProvider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	m.logger.Info("OpenTelemetry tracing shutdown completed")
	return nil
}

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, spanName string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, spanName)
	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}
	return spanCtx, span
}

// AddSpanAttributes adds attributes to the current span.
func AddSpanAttributes(ctx context.Context, attributes ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.SetAttributes(attributes...)
	}
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error, attributes ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span != nil && span.IsRecording() {
		span.RecordError(err, oteltrace.WithAttributes(attributes...))
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceID returns the trace ID from the current context, for log
// correlation.
func TraceID(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
