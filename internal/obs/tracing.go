package obs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultServiceName = "toko-pricing"

// TracingConfig controls tracer provider initialisation.
type TracingConfig struct {
	Enabled       bool
	ServiceName   string
	Endpoint      string
	Exporter      string
	SamplingRatio float64
	Environment   string
}

// TracingConfigFromEnv reads the OBS_* tracing variables. Tracing is on
// unless OBS_ENABLE_TRACING says otherwise.
func TracingConfigFromEnv(environment string) TracingConfig {
	cfg := TracingConfig{
		Enabled:       true,
		ServiceName:   strings.TrimSpace(os.Getenv("OBS_SERVICE_NAME")),
		Endpoint:      strings.TrimSpace(os.Getenv("OBS_OTLP_ENDPOINT")),
		Exporter:      strings.TrimSpace(os.Getenv("OBS_TRACING_EXPORTER")),
		SamplingRatio: 1,
		Environment:   environment,
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("OBS_ENABLE_TRACING"))); err == nil {
		cfg.Enabled = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("OBS_TRACING_SAMPLING_RATIO")), 64); err == nil {
		cfg.SamplingRatio = v
	}
	return cfg
}

// InitTracer installs the global tracer provider and W3C propagators and
// returns the provider's shutdown function. A disabled config or the "none"
// exporter installs nothing.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}
	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil || exporter == nil {
		return noop, err
	}
	service := cfg.ServiceName
	if service == "" {
		service = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(service),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return noop, err
	}
	ratio := cfg.SamplingRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch name := strings.ToLower(cfg.Exporter); name {
	case "none", "noop":
		return nil, nil
	case "", "otlp":
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", name)
	}
}
