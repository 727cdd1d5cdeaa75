package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the telemetry configuration.
type Config struct {
	// ServiceName is the name of the service (e.g., "srmgate").
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment is the deployment environment (e.g., "production").
	Environment string

	// SamplingRate is the fraction of identity spans sampled (0.0 to 1.0).
	SamplingRate float64

	// Reader overrides the Prometheus exporter. Tests pass a
	// sdkmetric.ManualReader here.
	Reader sdkmetric.Reader

	// SpanProcessors receive finished spans.
	SpanProcessors []sdktrace.SpanProcessor

	// Enabled determines if telemetry is active.
	Enabled bool
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "srmgate",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		SamplingRate:   1.0,
		Enabled:        true,
	}
}

// Provider manages the OpenTelemetry meter provider and the instruments
// recorded by the identity subsystem. A nil or disabled Provider records
// nothing.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	lookupCounter    metric.Int64Counter
	collisionCounter metric.Int64Counter
	gcCounter        metric.Int64Counter
	loginCounter     metric.Int64Counter
	restoreCounter   metric.Int64Counter
}

// NewProvider creates a new telemetry provider.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{config: cfg}, nil
	}

	p := &Provider{config: cfg}

	res, err := resource.New(context.Background(),
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	p.setupTracing(res)

	if err := p.setupMetrics(res); err != nil {
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(res *resource.Resource) {
	var sampler sdktrace.Sampler
	if p.config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if p.config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(p.config.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithResource(res),
	}
	for _, sp := range p.config.SpanProcessors {
		opts = append(opts, sdktrace.WithSpanProcessor(sp))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)

	p.tracer = p.tracerProvider.Tracer(p.config.ServiceName)
}

func (p *Provider) setupMetrics(res *resource.Resource) error {
	reader := p.config.Reader
	if reader == nil {
		exporter, err := prometheus.New()
		if err != nil {
			return err
		}
		reader = exporter
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.meter = p.meterProvider.Meter(p.config.ServiceName)

	return nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.lookupCounter, err = p.meter.Int64Counter(
		"srmgate.cas.lookups",
		metric.WithDescription("Record lookups by value cache outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.collisionCounter, err = p.meter.Int64Counter(
		"srmgate.cas.collisions",
		metric.WithDescription("Hash collisions resolved by re-salting"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.gcCounter, err = p.meter.Int64Counter(
		"srmgate.cas.gc",
		metric.WithDescription("Garbage collection candidates by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.loginCounter, err = p.meter.Int64Counter(
		"srmgate.identity.logins",
		metric.WithDescription("Authorization attempts by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.restoreCounter, err = p.meter.Int64Counter(
		"srmgate.identity.restores",
		metric.WithDescription("Identity restores by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the telemetry providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the tracer used for identity spans.
func (p *Provider) Tracer() trace.Tracer {
	if p != nil && p.tracer != nil {
		return p.tracer
	}
	name := "srmgate"
	if p != nil && p.config.ServiceName != "" {
		name = p.config.ServiceName
	}
	return otel.Tracer(name)
}

// ---- Metric Recording Methods ----

// RecordLookup records a value cache hit or miss.
func (p *Provider) RecordLookup(ctx context.Context, hit bool) {
	if p == nil || p.lookupCounter == nil {
		return
	}
	result := "hit"
	if !hit {
		result = "miss"
	}
	p.lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCollision records one re-salting step.
func (p *Provider) RecordCollision(ctx context.Context) {
	if p == nil || p.collisionCounter == nil {
		return
	}
	p.collisionCounter.Add(ctx, 1)
}

// RecordGC records the outcome for one garbage collection candidate:
// "deleted", "retained" or "failed".
func (p *Provider) RecordGC(ctx context.Context, outcome string) {
	if p == nil || p.gcCounter == nil {
		return
	}
	p.gcCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLogin records an authorization attempt.
func (p *Provider) RecordLogin(ctx context.Context, codec string, outcome string) {
	if p == nil || p.loginCounter == nil {
		return
	}
	p.loginCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("codec", codec),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRestore records the terminal state of an identity restore.
func (p *Provider) RecordRestore(ctx context.Context, outcome string) {
	if p == nil || p.restoreCounter == nil {
		return
	}
	p.restoreCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
