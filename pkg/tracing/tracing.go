// Package tracing exports selection cycles as OpenTelemetry spans.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/logx"
	"github.com/markus-lassfolk/acsd/pkg/uci"
)

const tracerName = "github.com/markus-lassfolk/acsd/pkg/tracing"

// Config governs how tracing is initialised
type Config struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64
}

// ConfigFrom derives the tracing settings from the daemon config
func ConfigFrom(cfg *uci.Config) Config {
	return Config{
		Enabled:     cfg.TraceEnabled,
		ServiceName: "acsd",
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	}
}

// ConfigFromEnv reads ACSD_TRACING_* variables, used by acsctl
func ConfigFromEnv() Config {
	cfg := Config{
		Enabled:     strings.EqualFold(os.Getenv("ACSD_TRACING_ENABLED"), "true"),
		ServiceName: "acsctl",
		Exporter:    strings.ToLower(os.Getenv("ACSD_TRACING_EXPORTER")),
		Endpoint:    os.Getenv("ACSD_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if raw := os.Getenv("ACSD_TRACING_SAMPLE_RATIO"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 && parsed <= 1 {
			cfg.SampleRatio = parsed
		}
	}
	return cfg
}

// Init installs the global tracer provider and returns a shutdown function
// that flushes pending spans.
func Init(ctx context.Context, cfg Config, logger *logx.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		logger.Debug("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.namespace", "acsd"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracing enabled",
		"exporter", cfg.Exporter,
		"service_name", cfg.ServiceName,
		"sample_ratio", cfg.SampleRatio)

	return tp.Shutdown, nil
}

func exporterFromConfig(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		return stdouttrace.New(
			stdouttrace.WithWriter(os.Stdout),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// Shutdown flushes spans with a bounded timeout, logging failures
func Shutdown(ctx context.Context, shutdown func(context.Context) error, logger *logx.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("Tracing shutdown failed", "error", err)
	}
}

// CycleTracer records one span per finished selection cycle. The span covers
// the cycle from scan request to outcome and carries the chosen placement and
// candidate factors.
type CycleTracer struct {
	tracer trace.Tracer
}

// NewCycleTracer uses tp, or the global provider when tp is nil
func NewCycleTracer(tp trace.TracerProvider) *CycleTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &CycleTracer{tracer: tp.Tracer(tracerName)}
}

// SelectionFinished implements acs.Observer
func (c *CycleTracer) SelectionFinished(ctx context.Context, o acs.Outcome) {
	start := o.Started
	if start.IsZero() {
		start = time.Now().Add(-o.Duration)
	}

	_, span := c.tracer.Start(ctx, "acs/selection",
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("acs.radio", o.Interface),
			attribute.Int64("acs.cycle", int64(o.Cycle)),
			attribute.String("acs.reason", o.Reason),
			attribute.Int("acs.candidates", len(o.Candidates)),
		),
	)

	for _, cand := range o.Candidates {
		span.AddEvent("candidate", trace.WithTimestamp(start), trace.WithAttributes(
			attribute.Int("acs.channel", cand.Channel),
			attribute.Int("acs.freq_mhz", cand.Freq),
			attribute.Float64("acs.factor", cand.Factor),
		))
	}

	if o.Success() {
		span.SetAttributes(
			attribute.Int("acs.channel", o.Channel),
			attribute.Int("acs.freq_mhz", o.Freq),
			attribute.Int("acs.bandwidth_mhz", o.Bandwidth),
			attribute.Int("acs.center_seg0_idx", o.CenterSeg0),
			attribute.Float64("acs.factor", o.Factor),
		)
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Reason)
	}

	span.End(trace.WithTimestamp(start.Add(o.Duration)))
}
