package instrumentation

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceVersion is used when no version is provided.
const DefaultServiceVersion = "unknown"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies the service in telemetry (default "helix").
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false, no-op
	// providers are used and nothing is recorded.
	Enabled bool

	// MeterProvider supplies meters. Defaults to the global otel provider.
	MeterProvider metric.MeterProvider

	// TracerProvider supplies tracers. Defaults to the global otel provider.
	TracerProvider trace.TracerProvider
}

// Instrumentation provides OpenTelemetry components to the rest of helix.
type Instrumentation struct {
	config         Config
	resource       *resource.Resource
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metrics        *Metrics
}

// New creates a new instrumentation instance.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "helix"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	inst := &Instrumentation{config: config}

	if !config.Enabled {
		inst.meterProvider = metricnoop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	} else {
		inst.resource = resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		)
		inst.meterProvider = config.MeterProvider
		if inst.meterProvider == nil {
			inst.meterProvider = otel.GetMeterProvider()
		}
		inst.tracerProvider = config.TracerProvider
		if inst.tracerProvider == nil {
			inst.tracerProvider = otel.GetTracerProvider()
		}
	}

	metrics, err := newMetrics(inst)
	if err != nil {
		return nil, err
	}
	inst.metrics = metrics

	return inst, nil
}

// Meter returns a named meter scoped under the service name.
func (i *Instrumentation) Meter(name string) metric.Meter {
	return i.meterProvider.Meter(i.config.ServiceName + "/" + name)
}

// Tracer returns a named tracer scoped under the service name.
func (i *Instrumentation) Tracer(name string) trace.Tracer {
	return i.tracerProvider.Tracer(i.config.ServiceName + "/" + name)
}

// Metrics returns the pre-configured metric instruments.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// Resource returns the telemetry resource, or nil when disabled.
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}
