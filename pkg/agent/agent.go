// Package agent wires the control plane client to span production: every
// remote config becomes a tracer provider handed to the instrumentation
// registry.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/otelfleet/otelagent/pkg/ident"
	"github.com/otelfleet/otelagent/pkg/idgen"
	"github.com/otelfleet/otelagent/pkg/instrumentation"
	"github.com/otelfleet/otelagent/pkg/logutil"
	"github.com/otelfleet/otelagent/pkg/opamp"
	"github.com/otelfleet/otelagent/pkg/remoteconfig"
	"github.com/otelfleet/otelagent/pkg/sampler"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	// Endpoint is the control plane address.
	Endpoint    string
	ServiceName string
	Workload    opamp.Workload
	// Attributes are added to the agent description and the span resource.
	Attributes []attribute.KeyValue

	Exporter ExporterConfig
	// SpanExporter, when set, replaces the exporter built from Exporter.
	SpanExporter sdktrace.SpanExporter

	// Libraries restricts the loaded instrumentation libraries. All known
	// libraries are loaded when nil.
	Libraries []string

	// UnsupportedRuntime, when non-empty, is the reason the agent cannot run.
	// The agent reports itself unhealthy and never emits spans.
	UnsupportedRuntime string

	// SetGlobal installs the agent tracer provider with otel.SetTracerProvider.
	SetGlobal bool

	HeartbeatInterval      time.Duration
	HandshakeRetryInterval time.Duration
	Registerer             prometheus.Registerer
}

type Agent struct {
	services.Service

	logger    *slog.Logger
	cfg       Config
	identity  ident.Instance
	resource  *resource.Resource
	registry  *instrumentation.Registry
	client    *opamp.Client
	processor sdktrace.SpanProcessor

	mu       sync.Mutex
	provider *sdktrace.TracerProvider
	applied  int

	reason atomic.Pointer[string]
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Agent, error) {
	logger = logutil.OrDefault(logger)
	a := &Agent{
		logger:   logger,
		cfg:      cfg,
		identity: ident.NewInstance(),
	}

	var regOpts []instrumentation.Option
	if cfg.Libraries != nil {
		regOpts = append(regOpts, instrumentation.WithLibraries(cfg.Libraries...))
	}
	a.registry = instrumentation.NewRegistry(logger.With("component", "instrumentation"), regOpts...)

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		append([]attribute.KeyValue{
			semconv.ServiceInstanceID(a.identity.String()),
			semconv.TelemetryDistroName(opamp.DistroName),
			semconv.TelemetryDistroVersion(opamp.DistroVersion),
		}, a.resourceAttributes()...)...,
	))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}
	a.resource = res

	exporter := cfg.SpanExporter
	if exporter == nil {
		exporter, err = newSpanExporter(ctx, cfg.Exporter)
		if err != nil {
			return nil, fmt.Errorf("creating span exporter: %w", err)
		}
	}
	if exporter != nil {
		a.processor = sdktrace.NewBatchSpanProcessor(exporter)
	}

	a.client, err = opamp.NewClient(opamp.Config{
		Logger:                 logger.With("component", "opamp"),
		Endpoint:               cfg.Endpoint,
		OnRemoteConfig:         a.onRemoteConfig,
		ServiceName:            cfg.ServiceName,
		Workload:               cfg.Workload,
		IdentifyingAttributes:  cfg.Attributes,
		Packages:               a.registry.PackageStatuses(),
		HeartbeatInterval:      cfg.HeartbeatInterval,
		HandshakeRetryInterval: cfg.HandshakeRetryInterval,
		Registerer:             cfg.Registerer,
		Identity:               &a.identity,
	})
	if err != nil {
		return nil, err
	}

	if cfg.SetGlobal {
		otel.SetTracerProvider(a.registry.TracerProvider())
		otel.SetTextMapPropagator(a.registry.Propagator())
	}

	a.Service = services.NewBasicService(a.starting, a.running, a.stopping)
	return a, nil
}

func (a *Agent) resourceAttributes() []attribute.KeyValue {
	attrs := append([]attribute.KeyValue{}, a.cfg.Attributes...)
	if a.cfg.ServiceName != "" {
		attrs = append(attrs, semconv.ServiceName(a.cfg.ServiceName))
	}
	return attrs
}

func (a *Agent) starting(ctx context.Context) error {
	var unhealthy *opamp.HealthInfo
	if a.cfg.UnsupportedRuntime != "" {
		unhealthy = &opamp.HealthInfo{
			Status:       opamp.HealthUnsupportedRuntimeVersion,
			ErrorMessage: a.cfg.UnsupportedRuntime,
		}
		a.logger.With("reason", a.cfg.UnsupportedRuntime).Warn("runtime unsupported, agent will not emit telemetry")
	}
	if err := a.client.Start(ctx, unhealthy); err != nil {
		return err
	}
	if unhealthy == nil {
		a.client.SetHealthy(ctx)
	}
	return nil
}

func (a *Agent) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (a *Agent) stopping(_ error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	reason := "process terminated"
	if r := a.reason.Load(); r != nil {
		reason = *r
	}
	if err := a.client.Shutdown(ctx, reason); err != nil {
		a.logger.With("err", err).Warn("control plane shutdown incomplete")
	}
	a.registry.Apply(&remoteconfig.RemoteConfig{}, nil)
	if a.processor != nil {
		if err := a.processor.Shutdown(ctx); err != nil {
			return fmt.Errorf("flushing spans: %w", err)
		}
	}
	return nil
}

// Stop records reason for the control plane and stops the agent.
func (a *Agent) Stop(ctx context.Context, reason string) error {
	a.reason.Store(&reason)
	return services.StopAndAwaitTerminated(ctx, a)
}

// onRemoteConfig builds a tracer provider for cfg and hands it to the
// registry. Providers share one span processor, so replaced providers are
// dropped without being shut down.
func (a *Agent) onRemoteConfig(_ context.Context, cfg *remoteconfig.RemoteConfig) error {
	if !cfg.TracesEnabled() {
		a.registry.Apply(cfg, nil)
		a.setProvider(nil)
		a.logger.Info("traces disabled by remote config")
		return nil
	}
	traces := cfg.ContainerConfig.Traces

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(a.resource),
		sdktrace.WithIDGenerator(idgen.FromConfig(traces.IDGenerator)),
	}
	if traces.HeadSampling != nil {
		opts = append(opts, sdktrace.WithSampler(sdktrace.ParentBased(sampler.New(traces.HeadSampling))))
	}
	if a.processor != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(a.processor))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	a.registry.Apply(cfg, tp)
	a.setProvider(tp)
	a.logger.With("libraries", len(cfg.InstrumentationLibraries), "head_sampling", traces.HeadSampling != nil).
		Info("tracer provider updated")
	return nil
}

func (a *Agent) setProvider(tp *sdktrace.TracerProvider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provider = tp
	a.applied++
}

// ForceFlush exports buffered spans.
func (a *Agent) ForceFlush(ctx context.Context) error {
	if a.processor == nil {
		return nil
	}
	return a.processor.ForceFlush(ctx)
}

// AppliedConfigs counts configs delivered by the control plane, including
// the default applied when it is unreachable.
func (a *Agent) AppliedConfigs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied
}

func (a *Agent) Registry() *instrumentation.Registry {
	return a.registry
}

func (a *Agent) Client() *opamp.Client {
	return a.client
}

func (a *Agent) InstanceID() ident.Instance {
	return a.identity
}
