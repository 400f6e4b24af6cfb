package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/otelfleet/otelagent/pkg/agent"
	"github.com/otelfleet/otelagent/pkg/logutil"
	"github.com/otelfleet/otelagent/pkg/util/contextutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
)

const deviceIDAttribute = "instrumentation.device.id"

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		slog.With("err", err).Error("invalid configuration")
		os.Exit(2)
	}
	slog.SetDefault(slog.New(logutil.NewHandler(os.Stderr, logutil.ParseLevel(cfg.LogLevel))))
	logger := slog.Default()

	ctx := logutil.WithContext(contextutil.SetupSignals(context.Background()), logger)
	if err := run(ctx, cfg); err != nil {
		logger.With("err", err).Error("agent exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	logger := logutil.FromContext(ctx)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var attrs []attribute.KeyValue
	if cfg.DeviceID != "" {
		attrs = append(attrs, attribute.String(deviceIDAttribute, cfg.DeviceID))
	}

	a, err := agent.New(ctx, agent.Config{
		Endpoint:          cfg.ControlPlane,
		ServiceName:       cfg.ServiceName,
		Attributes:        attrs,
		Exporter:          cfg.Exporter,
		Libraries:         cfg.Libraries,
		SetGlobal:         true,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Registerer:        reg,
	}, logger.With("component", "agent"))
	if err != nil {
		return err
	}
	logger.With("instance_uid", a.InstanceID().String(), "control_plane", cfg.ControlPlane).Info("otelagent starting...")

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newRouter(a, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpSvc := newHTTPService(srv, logger.With("service", "http"))

	if err := services.StartAndAwaitRunning(ctx, a); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}
	if err := services.StartAndAwaitRunning(ctx, httpSvc); err != nil {
		_ = a.Stop(context.Background(), "http server failed to start")
		return fmt.Errorf("starting http server: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-terminated(httpSvc):
		logger.With("err", httpSvc.FailureCase()).Warn("http server stopped")
	}
	logger.Info("shutting down otelagent...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	if err := services.StopAndAwaitTerminated(stopCtx, httpSvc); err != nil {
		errs = append(errs, err)
	}
	if err := a.Stop(stopCtx, contextutil.ShutdownReason(ctx)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func terminated(svc services.Service) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		_ = svc.AwaitTerminated(context.Background())
	}()
	return ch
}

// newRouter serves the instrumented demo endpoint, agent health and the
// prometheus registry.
func newRouter(a *agent.Agent, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := a.Client().Health()
		w.Header().Set("Content-Type", "text/plain")
		if health.ErrorMessage != "" {
			fmt.Fprintf(w, "%s: %s\n", health.Status, health.ErrorMessage)
			return
		}
		fmt.Fprintln(w, health.Status)
	})

	demo := r.PathPrefix("/hello").Subrouter()
	demo.Use(mux.MiddlewareFunc(a.Registry().HTTPMiddleware("hello")))
	demo.HandleFunc("", func(w http.ResponseWriter, req *http.Request) {
		name := req.URL.Query().Get("name")
		if name == "" {
			name = "world"
		}
		fmt.Fprintf(w, "hello, %s\n", name)
	}).Methods(http.MethodGet)
	return r
}

// newHTTPService runs srv until the service is stopped.
func newHTTPService(srv *http.Server, l *slog.Logger) services.Service {
	serverDone := make(chan error, 1)

	runFn := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			l.With("addr", srv.Addr).Info("running")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverDone <- err
			}
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil {
				return fmt.Errorf("server stopped unexpectedly: %w", err)
			}
			return nil
		}
	}

	stoppingFn := func(_ error) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			l.With("err", err).Warn("http server shutdown incomplete")
		}
		<-serverDone
		l.Info("server stopped")
		return nil
	}

	return services.NewBasicService(nil, runFn, stoppingFn)
}
