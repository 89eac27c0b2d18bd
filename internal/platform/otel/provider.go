// Package otel wires OpenTelemetry tracing for actorspace processes.
package otel

import (
	"context"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/louisbranch/actorspace/internal/platform/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceNamespace = "actorspace"

// Config selects where actor spans are exported and how many are kept.
type Config struct {
	Endpoint    string  `env:"ACTORSPACE_OTEL_ENDPOINT"`
	Enabled     string  `env:"ACTORSPACE_OTEL_ENABLED"`
	SampleRatio float64 `env:"ACTORSPACE_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// LoadConfig reads the tracing settings from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse otel env: %w", err)
	}
	return cfg, nil
}

// Active reports whether spans should be exported.
func (c Config) Active() bool {
	if strings.EqualFold(strings.TrimSpace(c.Enabled), "false") {
		return false
	}
	return strings.TrimSpace(c.Endpoint) != ""
}

// sampler keeps every span of a sampled parent and a SampleRatio share of
// new traces.
func (c Config) sampler() sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case c.SampleRatio >= 1:
		root = sdktrace.AlwaysSample()
	case c.SampleRatio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(c.SampleRatio)
	}
	return sdktrace.ParentBased(root)
}

// Setup initialises OpenTelemetry tracing for the given service from the
// environment. See SetupWithConfig.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	cfg, err := LoadConfig()
	if err != nil {
		return func(context.Context) error { return nil }, err
	}
	return SetupWithConfig(ctx, serviceName, cfg)
}

// SetupWithConfig installs a batching OTLP/HTTP tracer provider. Tracing is
// opt-in: an inactive config returns a no-op shutdown and leaves the global
// no-op tracer in place, so actor spans cost nothing.
//
// Each process gets a fresh service.instance.id so spans from replicas of the
// same service can be told apart.
func SetupWithConfig(ctx context.Context, serviceName string, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Active() {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(strings.TrimSpace(cfg.Endpoint)),
	)
	if err != nil {
		return noop, err
	}

	instanceID, err := id.NewID()
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceNamespace(serviceNamespace),
			semconv.ServiceInstanceID(instanceID),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
