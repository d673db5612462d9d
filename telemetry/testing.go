package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry holds in-memory OpenTelemetry providers for tests.
type TestTelemetry struct {
	tp *trace.TracerProvider
	mp *metric.MeterProvider
	mr *metric.ManualReader
	sr *tracetest.SpanRecorder
}

// NewTestTelemetry creates providers that keep spans and metrics in memory
// and installs them as the otel globals.
func NewTestTelemetry(t *testing.T) *TestTelemetry {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)

	mr := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(mr))
	otel.SetMeterProvider(mp)

	return &TestTelemetry{
		tp: tp,
		mp: mp,
		mr: mr,
		sr: sr,
	}
}

// Telemetry returns an enabled Telemetry backed by the in-memory providers.
func (tt *TestTelemetry) Telemetry(t *testing.T) *TelemetryImpl {
	t.Helper()

	tel, err := newTelemetry(tt.tp, tt.mp, true)
	if err != nil {
		t.Fatalf("create test telemetry: %v", err)
	}
	return tel
}

// Shutdown gracefully shuts down the test telemetry providers
func (tt *TestTelemetry) Shutdown(ctx context.Context) error {
	if err := tt.tp.Shutdown(ctx); err != nil {
		return err
	}
	return tt.mp.Shutdown(ctx)
}

// GetReader returns the metric reader for testing
func (tt *TestTelemetry) GetReader() *metric.ManualReader {
	return tt.mr
}

// Ended returns the spans finished so far.
func (tt *TestTelemetry) Ended() []trace.ReadOnlySpan {
	return tt.sr.Ended()
}
