package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// Instruments holds the kernel's common metric instruments, created once
// per Context so histograms/counters/gauges are shared across the
// scheduler, item stores, and tag collections a Context owns.
type Instruments struct {
	StepDuration     metric.Float64Histogram
	StepSuspends     metric.Int64Counter
	StepResumes      metric.Int64Counter
	StepsFinished    metric.Int64Counter
	StepsFailed      metric.Int64Counter
	StealsTotal      metric.Int64Counter
	QueueDepth       metric.Int64Gauge
	OutstandingWork  metric.Int64Gauge
	SuspendedCount   metric.Int64Gauge
	ItemReclaimed    metric.Int64Counter
	ItemStoreLatency metric.Float64Histogram
}

// InitMetrics sets up a global OTLP metrics exporter (push) and returns the
// shutdown function plus the shared instrument set.
func InitMetrics(ctx context.Context, component string) (shutdown func(context.Context) error, inst Instruments) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(component),
		attribute.String("component", component),
	))
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, newInstruments()
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	return mp.Shutdown, newInstruments()
}

func newInstruments() Instruments {
	meter := otel.Meter("dataflow")
	stepDuration, _ := meter.Float64Histogram("dataflow_step_duration_ms")
	stepSuspends, _ := meter.Int64Counter("dataflow_step_suspends_total")
	stepResumes, _ := meter.Int64Counter("dataflow_step_resumes_total")
	stepsFinished, _ := meter.Int64Counter("dataflow_steps_finished_total")
	stepsFailed, _ := meter.Int64Counter("dataflow_steps_failed_total")
	steals, _ := meter.Int64Counter("dataflow_scheduler_steals_total")
	queueDepth, _ := meter.Int64Gauge("dataflow_scheduler_queue_depth")
	outstanding, _ := meter.Int64Gauge("dataflow_context_outstanding_work")
	suspended, _ := meter.Int64Gauge("dataflow_context_suspended_instances")
	reclaimed, _ := meter.Int64Counter("dataflow_item_reclaimed_total")
	storeLatency, _ := meter.Float64Histogram("dataflow_item_store_latency_ms")
	return Instruments{
		StepDuration:     stepDuration,
		StepSuspends:     stepSuspends,
		StepResumes:      stepResumes,
		StepsFinished:    stepsFinished,
		StepsFailed:      stepsFailed,
		StealsTotal:      steals,
		QueueDepth:       queueDepth,
		OutstandingWork:  outstanding,
		SuspendedCount:   suspended,
		ItemReclaimed:    reclaimed,
		ItemStoreLatency: storeLatency,
	}
}

// NoopInstruments builds an Instruments set from the global meter
// provider without starting an exporter, for tests. The instruments are
// no-ops as long as no provider has been installed (by InitMetrics or
// otherwise).
func NoopInstruments() Instruments {
	return newInstruments()
}
