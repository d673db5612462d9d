package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xizhibei/go-hello-add"

// Telemetry is what the server needs from a tracing/metrics backend.
type Telemetry interface {
	// StartSpan starts a span; disabled implementations return ctx unchanged.
	StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
	// RecordRequest records the request duration and, when errClass is not empty,
	// counts an error labeled with it. errClass must come from a bounded set.
	RecordRequest(ctx context.Context, duration time.Duration, route string, status string, errClass string)
	// IsEnabled reports whether data is exported anywhere.
	IsEnabled() bool
	// Shutdown flushes and stops the providers.
	Shutdown(ctx context.Context) error
}

// TelemetryImpl holds OpenTelemetry components
type TelemetryImpl struct {
	tp              *sdktrace.TracerProvider
	mp              *sdkmetric.MeterProvider
	tracer          trace.Tracer
	meter           metric.Meter
	requestDuration metric.Float64Histogram
	errorCounter    metric.Int64Counter
	enabled         bool
}

// Config holds configuration for telemetry setup
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string

	TraceWriter  io.Writer
	MetricWriter io.Writer
	Debug        bool
	Enabled      bool
}

// New creates a new Telemetry instance.
// With Enabled unset it behaves like NewNoop.
func New(ctx context.Context, cfg Config) (*TelemetryImpl, error) {
	if !cfg.Enabled {
		return NewNoop()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	if cfg.TraceWriter == nil {
		cfg.TraceWriter = os.Stdout
	}

	if cfg.MetricWriter == nil {
		cfg.MetricWriter = os.Stdout
	}

	var traceExporter sdktrace.SpanExporter
	if cfg.Debug {
		traceExporter, err = stdouttrace.New(
			stdouttrace.WithWriter(cfg.TraceWriter),
			stdouttrace.WithPrettyPrint(),
		)
	} else {
		traceExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trace exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	var metricExporter sdkmetric.Exporter
	if cfg.Debug {
		enc := json.NewEncoder(cfg.MetricWriter)
		enc.SetIndent("", "  ")

		metricExporter, err = stdoutmetric.New(
			stdoutmetric.WithEncoder(enc),
			stdoutmetric.WithoutTimestamps(),
		)
	} else {
		metricExporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create metric exporter")
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithView(requestDurationView()),
	)
	otel.SetMeterProvider(mp)

	return newTelemetry(tp, mp, true)
}

// NewFromEnv builds telemetry from the process environment:
//
//	OTEL_ENABLED                 "true" turns exporting on
//	OTEL_DEBUG                   "true" exports to stdout instead of OTLP
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector address, default localhost:4317
//	OTEL_ENVIRONMENT             deployment environment, default "development"
func NewFromEnv(ctx context.Context, serviceName, serviceVersion string) (*TelemetryImpl, error) {
	enabled, _ := strconv.ParseBool(os.Getenv("OTEL_ENABLED"))
	debug, _ := strconv.ParseBool(os.Getenv("OTEL_DEBUG"))

	return New(ctx, Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    getEnvOrDefault("OTEL_ENVIRONMENT", "development"),
		OTLPEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Debug:          debug,
		Enabled:        enabled,
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// Disabled returns a Telemetry without providers. Unlike NewNoop it cannot fail,
// so it serves as the fallback when building telemetry did.
func Disabled() *TelemetryImpl {
	return &TelemetryImpl{}
}

// NewNoop creates a Telemetry that records nothing.
func NewNoop() (*TelemetryImpl, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("noop"),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.NeverSample()),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
	)

	return newTelemetry(tp, mp, false)
}

func newTelemetry(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, enabled bool) (*TelemetryImpl, error) {
	meter := mp.Meter(instrumentationName)

	requestDuration, err := meter.Float64Histogram(
		"request_duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request duration histogram")
	}

	errorCounter, err := meter.Int64Counter(
		"error_count",
		metric.WithDescription("Number of failed HTTP requests"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create error counter")
	}

	return &TelemetryImpl{
		tp:              tp,
		mp:              mp,
		tracer:          tp.Tracer(instrumentationName),
		meter:           meter,
		requestDuration: requestDuration,
		errorCounter:    errorCounter,
		enabled:         enabled,
	}, nil
}

func requestDurationView() sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: "request_duration"},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{1, 5, 10, 25, 50, 75, 100, 250, 500, 750, 1000, 2500, 5000, 7500, 10000},
			},
		},
	)
}

// IsEnabled reports whether telemetry is exported.
func (t *TelemetryImpl) IsEnabled() bool {
	return t.enabled
}

// Shutdown gracefully shuts down the telemetry providers
func (t *TelemetryImpl) Shutdown(ctx context.Context) error {
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "failed to shutdown trace provider")
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "failed to shutdown meter provider")
		}
	}
	return nil
}

// RecordRequest records request duration and optionally increments error counter
func (t *TelemetryImpl) RecordRequest(ctx context.Context, duration time.Duration, route string, status string, errClass string) {
	if t.requestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("route", route),
		attribute.String("status", status),
	}

	t.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if errClass != "" && t.errorCounter != nil {
		attrs = append(attrs, attribute.String("error", errClass))
		t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// StartSpan starts a new span and returns the context and span.
// When telemetry is disabled the context is returned unchanged with a span that
// records nothing, so ending it never ends a span owned by the caller.
func (t *TelemetryImpl) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, name, opts...)
}
