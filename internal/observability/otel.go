// Package observability sets up OpenTelemetry tracing for the relay.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultSampleRatio is the fraction of root traces sampled.
const DefaultSampleRatio = 0.1

// Opts holds tracing configuration.
type Opts struct {
	Enabled     bool
	ServiceName string
	Environment string
	Version     string
	Endpoint    string // OTLP HTTP endpoint; stdout is used when empty
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
	Stdout      io.Writer // stdout exporter destination, for tests
}

// Option defines a tracing configuration option.
type Option func(*Opts)

// WithEnabled turns tracing on.
func WithEnabled(enabled bool) Option {
	return func(o *Opts) { o.Enabled = enabled }
}

// WithService sets the service identity recorded on every span.
func WithService(name, environment, version string) Option {
	return func(o *Opts) {
		o.ServiceName = name
		o.Environment = environment
		o.Version = version
	}
}

// WithOTLPEndpoint exports spans over OTLP HTTP.
func WithOTLPEndpoint(endpoint string, headers map[string]string, insecure bool) Option {
	return func(o *Opts) {
		o.Endpoint = endpoint
		o.Headers = headers
		o.Insecure = insecure
	}
}

// WithSampleRatio sets the root sampling ratio, clamped to [0, 1].
func WithSampleRatio(r float64) Option {
	return func(o *Opts) { o.SampleRatio = r }
}

// WithStdoutWriter redirects the stdout exporter.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Opts) { o.Stdout = w }
}

// Init installs a global tracer provider and returns its shutdown function.
// When tracing is disabled the global no-op provider stays in place and the
// returned function does nothing.
func Init(ctx context.Context, opts ...Option) (func(context.Context) error, error) {
	cfg := Opts{ServiceName: "leadrelay", SampleRatio: DefaultSampleRatio}
	for _, opt := range opts {
		opt(&cfg)
	}
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		slog.Debug("Observability tracing disabled")
		return noop, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		slog.Warn("Observability resource init failed, continuing", "error", err)
	}

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return noop, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(cfg.SampleRatio)))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.Info("Observability tracing initialized", "service", cfg.ServiceName, "endpoint", cfg.Endpoint, "ratio", clampRatio(cfg.SampleRatio))
	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg Opts) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint != "" {
		var opts []otlptracehttp.Option
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	stdoutOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if cfg.Stdout != nil {
		stdoutOpts = append(stdoutOpts, stdouttrace.WithWriter(cfg.Stdout))
	}
	slog.Warn("Observability using stdout exporter, no OTLP endpoint configured")
	return stdouttrace.New(stdoutOpts...)
}

// ParseHeaders parses "key=value,key2=value2" as used by OTEL_EXPORTER_OTLP_HEADERS.
func ParseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
