package main

import (
	"fmt"
	"os"
	"time"

	"github.com/otelfleet/otelagent/pkg/agent"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	envServerHost  = "OPAMP_SERVER_HOST"
	envDeviceID    = "INSTRUMENTATION_DEVICE_ID"
	envServiceName = "OTEL_SERVICE_NAME"
)

type config struct {
	ControlPlane      string               `yaml:"controlPlane"`
	ServiceName       string               `yaml:"serviceName"`
	DeviceID          string               `yaml:"deviceId"`
	LogLevel          string               `yaml:"logLevel"`
	ListenAddress     string               `yaml:"listenAddress"`
	HeartbeatInterval time.Duration        `yaml:"heartbeatInterval"`
	Libraries         []string             `yaml:"libraries"`
	Exporter          agent.ExporterConfig `yaml:"exporter"`
}

func defaultConfig() config {
	return config{
		ControlPlane:  "127.0.0.1:4320",
		ServiceName:   "otelagent-demo",
		LogLevel:      "info",
		ListenAddress: "127.0.0.1:8090",
		Exporter: agent.ExporterConfig{
			Kind: agent.ExporterStdout,
		},
	}
}

// loadConfig layers the yaml file, environment and flags, in increasing
// precedence.
func loadConfig(args []string, getenv func(string) string) (config, error) {
	cfg := defaultConfig()

	fs := pflag.NewFlagSet("otelagent", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a yaml config file")
	controlPlane := fs.String("control-plane", "", "control plane host:port or URL")
	serviceName := fs.String("service-name", "", "service.name reported for this process")
	logLevel := fs.String("log-level", "", "trace, debug, info, warn or error")
	listen := fs.String("listen", "", "address serving the demo app and /metrics")
	exporter := fs.String("exporter", "", "span exporter: otlp, stdout or none")
	otlpEndpoint := fs.String("otlp-endpoint", "", "OTLP gRPC collector host:port")
	otlpInsecure := fs.Bool("otlp-insecure", false, "disable TLS for the OTLP exporter")
	heartbeat := fs.Duration("heartbeat-interval", 0, "control plane heartbeat interval")
	libraries := fs.StringSlice("libraries", nil, "instrumentation libraries to load, all when empty")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", *configFile, err)
		}
	}

	if v := getenv(envServerHost); v != "" {
		cfg.ControlPlane = v
	}
	if v := getenv(envDeviceID); v != "" {
		cfg.DeviceID = v
	}
	if v := getenv(envServiceName); v != "" {
		cfg.ServiceName = v
	}

	if *controlPlane != "" {
		cfg.ControlPlane = *controlPlane
	}
	if *serviceName != "" {
		cfg.ServiceName = *serviceName
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *listen != "" {
		cfg.ListenAddress = *listen
	}
	if *exporter != "" {
		cfg.Exporter.Kind = agent.ExporterKind(*exporter)
	}
	if *otlpEndpoint != "" {
		cfg.Exporter.Endpoint = *otlpEndpoint
	}
	if fs.Changed("otlp-insecure") {
		cfg.Exporter.Insecure = *otlpInsecure
	}
	if *heartbeat > 0 {
		cfg.HeartbeatInterval = *heartbeat
	}
	if len(*libraries) > 0 {
		cfg.Libraries = *libraries
	}
	return cfg, nil
}
