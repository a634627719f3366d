package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sda-commons/internal/auth"
	"sda-commons/internal/config"
	"sda-commons/internal/health"
	"sda-commons/internal/http/client"
	"sda-commons/internal/http/handler"
	"sda-commons/internal/http/httperr"
	"sda-commons/internal/integrations/directory"
	"sda-commons/internal/observability/logger"
	"sda-commons/internal/requestctx"
	"sda-commons/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the SDA example HTTP server with the client bundle, health checks and observability`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info(ctx, "starting sda example",
		zap.String("version", cfg.ServiceVersion),
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.AppEnv),
	)

	// Telemetry is opt-in
	var tracerProvider *sdktrace.TracerProvider
	var meterProvider *sdkmetric.MeterProvider
	var metrics *telemetry.Metrics

	if cfg.OTELEnabled {
		log.Info(ctx, "initializing telemetry", zap.String("endpoint", cfg.OTELExporterEndpoint))

		tp, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTELExporterEndpoint, cfg.OTELSamplingRatio)
		if err != nil {
			log.Warn(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			tracerProvider = tp
			defer shutdownWithTimeout(log, "tracer provider", tracerProvider.Shutdown)
		}

		mp, m, err := telemetry.InitMetrics(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTELExporterEndpoint)
		if err != nil {
			log.Warn(ctx, "failed to initialize metrics, continuing without metrics", zap.Error(err))
		} else {
			meterProvider = mp
			metrics = m
			defer shutdownWithTimeout(log, "meter provider", meterProvider.Shutdown)
		}

		log.Info(ctx, "telemetry initialized", zap.Bool("tracing", tracerProvider != nil), zap.Bool("metrics", metrics != nil))
	} else {
		log.Info(ctx, "telemetry disabled (opt-in only)")
	}

	opts := appOptions{Metrics: metrics}
	if tracerProvider != nil {
		opts.TracerProvider = tracerProvider
	}
	r, err := newApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info(context.Background(), "shutdown signal received, starting graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete")
	return nil
}

type appOptions struct {
	Metrics        *telemetry.Metrics
	TracerProvider trace.TracerProvider
	Registry       *prometheus.Registry
}

// newApp wires the client bundle, the directory client, authentication and
// health checks into a router ready to serve.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts appOptions) (chi.Router, error) {
	registry := opts.Registry
	if registry == nil {
		registry = newMetricsRegistry()
	}
	clientMetrics, err := telemetry.NewClientMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register client metrics: %w", err)
	}

	r := chi.NewRouter()

	// The bundle registers context capture and error mapping on the router,
	// so it must run before any route is added.
	factoryOpts := []client.FactoryOption{
		client.WithLogger(log),
		client.WithHolder(requestctx.NewHolder(cfg.GetTraceHeaders()...)),
		client.WithMetrics(clientMetrics),
		client.WithMapperOptions(httperr.WithErrorID(cfg.IsDev())),
	}
	if opts.TracerProvider != nil {
		factoryOpts = append(factoryOpts, client.WithTracerProvider(opts.TracerProvider))
	}

	bundle := client.NewBundle[*config.Config]().
		WithConsumerTokenProvider(config.TokenFromConfig).
		Build()
	if err := bundle.Run(cfg, r, factoryOpts...); err != nil {
		return nil, fmt.Errorf("failed to run client bundle: %w", err)
	}
	factory, err := bundle.ClientFactory()
	if err != nil {
		return nil, err
	}

	upstream, err := newDirectoryClient(factory, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory client: %w", err)
	}
	log.Info(ctx, "directory client ready",
		zap.String("base_url", upstream.BaseURL().String()),
		zap.Bool("consumer_token", cfg.ConsumerToken != ""),
		zap.Bool("circuit_breaker", cfg.UpstreamCircuitBreaker),
	)

	resolver, err := auth.NewHS256Resolver(cfg.JWTHS256Secret, cfg.GetAllowedIssuers(), splitAudience(cfg.JWTAudience), cfg.JWTClockSkewSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT authentication: %w", err)
	}
	log.Info(ctx, "JWT authentication initialized",
		zap.Strings("allowed_issuers", cfg.GetAllowedIssuers()),
		zap.Int("clock_skew_seconds", cfg.JWTClockSkewSeconds),
	)

	checks := health.NewRegistry(health.DefaultTimeout,
		health.WithLogger(log),
		health.WithReason(client.FailureReason),
	)
	checks.Register("directory", client.UpstreamCheck(upstream, cfg.UpstreamHealthPath))

	buildRouter(r, RouterDeps{
		Cfg:           cfg,
		Log:           log,
		Resolver:      resolver,
		Metrics:       opts.Metrics,
		Registry:      registry,
		Health:        checks,
		PeopleHandler: handler.NewPeopleHandler(directory.New(upstream)),
		DebugHandler:  handler.NewDebugHandler(cfg.AppEnv, factory.Holder()),
	})

	return r, nil
}

// newDirectoryClient builds the client for the upstream directory service.
// The consumer token is only attached when one is configured.
func newDirectoryClient(f *client.Factory, cfg *config.Config) (*client.Client, error) {
	b, err := f.ClientBuilder()
	if err != nil {
		return nil, err
	}

	b = b.WithName("directory").
		WithBaseURL(cfg.UpstreamBaseURL).
		WithTimeout(cfg.UpstreamTimeout).
		WithConnectTimeout(cfg.UpstreamConnectTimeout).
		EnableAuthenticationPassThrough().
		EnableGzip()

	if _, ok := cfg.ConsumerTokenValue(); ok {
		b = b.EnableConsumerToken()
	}
	if cfg.UpstreamCircuitBreaker {
		b = b.WithCircuitBreaker(client.CircuitBreakerOptions{})
	}

	return b.Build()
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func splitAudience(aud string) []string {
	if aud == "" {
		return nil
	}
	return []string{aud}
}

func shutdownWithTimeout(log *logger.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error(ctx, "failed to shutdown "+name, zap.Error(err))
	}
}
