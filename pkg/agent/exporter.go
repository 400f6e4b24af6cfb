package agent

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/otelfleet/otelagent/pkg/opamp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

type ExporterKind string

const (
	ExporterOTLP   ExporterKind = "otlp"
	ExporterStdout ExporterKind = "stdout"
	ExporterNone   ExporterKind = "none"
)

type ExporterConfig struct {
	Kind ExporterKind `yaml:"kind"`
	// Endpoint is the OTLP gRPC collector address, host:port.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	// Writer receives stdout exports. Defaults to os.Stdout.
	Writer io.Writer `yaml:"-"`
}

// newSpanExporter returns nil for ExporterNone.
func newSpanExporter(ctx context.Context, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Kind {
	case ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLP, "":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(opamp.DistroName + "/" + opamp.DistroVersion)),
		}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter %q", cfg.Kind)
	}
}
