// Package telemetry provides OpenTelemetry distributed tracing for kmeansd.
// It provides span helpers for the training pipeline, including one per
// map/reduce phase (the Driver itself does not open phase spans), supports
// W3C Trace Context propagation, and exports to OTLP or stdout.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kmeansd/kmeansd"

// Config holds tracing configuration.
type Config struct {
	// Enabled turns tracing on/off.
	Enabled bool

	// Exporter selects the trace exporter: "otlp", "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP collector address (e.g., "localhost:4317").
	Endpoint string

	// SampleRate controls the sampling ratio (0.0 to 1.0).
	// 1.0 = sample everything, 0.1 = sample 10%.
	SampleRate float64

	// ServiceName overrides the default service name.
	ServiceName string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool
}

// DefaultConfig returns tracing defaults (disabled).
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    "otlp",
		Endpoint:    "localhost:4317",
		SampleRate:  1.0,
		ServiceName: "kmeansd",
		Insecure:    true,
	}
}

// Provider wraps the OTEL TracerProvider and exposes kmeansd-specific helpers.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Init sets up the global TracerProvider based on the config.
// Returns a Provider that must be shut down with Shutdown().
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tracer: trace.NewNoopTracerProvider().Tracer(tracerName),
		}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	case "none", "":
		return &Provider{
			tracer: trace.NewNoopTracerProvider().Tracer(tracerName),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (supported: otlp, stdout, none)", cfg.Exporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("0.2.0"),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(tracerName),
	}, nil
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Tracer returns the kmeansd tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// --- Span helpers for training pipeline phases ---

// StartRequest creates a root span for an incoming HTTP or gRPC request.
func (p *Provider) StartRequest(ctx context.Context, endpoint string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.request",
		trace.WithAttributes(attribute.String("kmeansd.endpoint", endpoint)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartTrain creates a root span for a full Train() call.
func (p *Provider) StartTrain(ctx context.Context, k int64, numRows int64, init string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.train",
		trace.WithAttributes(
			attribute.Int64("kmeansd.train.k", k),
			attribute.Int64("kmeansd.train.num_rows", numRows),
			attribute.String("kmeansd.train.init", init),
		),
	)
}

// StartSumSqr creates a span for a SumSqrTask map/reduce phase.
func (p *Provider) StartSumSqr(ctx context.Context, numChunks int, ncentroids int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.sumsqr",
		trace.WithAttributes(
			attribute.Int("kmeansd.sumsqr.num_chunks", numChunks),
			attribute.Int("kmeansd.sumsqr.ncentroids", ncentroids),
		),
	)
}

// StartSampler creates a span for a SamplerTask oversampling round.
func (p *Provider) StartSampler(ctx context.Context, round int, ell float64) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.sampler",
		trace.WithAttributes(
			attribute.Int("kmeansd.sampler.round", round),
			attribute.Float64("kmeansd.sampler.ell", ell),
		),
	)
}

// StartRecluster creates a span for the single-node reclustering pass.
func (p *Provider) StartRecluster(ctx context.Context, method string, numCandidates int, k int64) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.recluster",
		trace.WithAttributes(
			attribute.String("kmeansd.recluster.method", method),
			attribute.Int("kmeansd.recluster.num_candidates", numCandidates),
			attribute.Int64("kmeansd.recluster.k", k),
		),
	)
}

// StartLloyds creates a span for one Lloyd's-algorithm iteration.
func (p *Provider) StartLloyds(ctx context.Context, iteration int, numChunks int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.lloyds",
		trace.WithAttributes(
			attribute.Int("kmeansd.lloyds.iteration", iteration),
			attribute.Int("kmeansd.lloyds.num_chunks", numChunks),
		),
	)
}

// StartIngest creates a span for building a Frame from an input source.
func (p *Provider) StartIngest(ctx context.Context, format string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.ingest",
		trace.WithAttributes(attribute.String("kmeansd.ingest.format", format)),
	)
}

// StartExport creates a span for exporting trained centroids to a vector backend.
func (p *Provider) StartExport(ctx context.Context, backend string, numCentroids int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.export",
		trace.WithAttributes(
			attribute.String("kmeansd.export.backend", backend),
			attribute.Int("kmeansd.export.num_centroids", numCentroids),
		),
	)
}

// StartScore creates a span for scoring a single row against a trained model.
func (p *Provider) StartScore(ctx context.Context, modelKey string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "kmeansd.score",
		trace.WithAttributes(attribute.String("kmeansd.score.model_key", modelKey)),
	)
}

// RecordTrainResult adds result attributes to a training span.
func RecordTrainResult(span trace.Span, iterations int, withinMSE float64, numRows int64, latency time.Duration) {
	span.SetAttributes(
		attribute.Int("kmeansd.result.iterations", iterations),
		attribute.Float64("kmeansd.result.within_mse", withinMSE),
		attribute.Int64("kmeansd.result.num_rows", numRows),
		attribute.Int64("kmeansd.result.latency_ms", latency.Milliseconds()),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error", true))
}
