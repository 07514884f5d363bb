// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway assembles the chat service: persistence, model providers,
// resumable streaming, auth, and the HTTP surface.
//
// # Usage
//
//	cfg := gateway.ConfigFromEnv()
//	svc, err := gateway.New(context.Background(), cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run(context.Background()))
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/driftchat/driftchat/services/gateway/chatstore"
	"github.com/driftchat/driftchat/services/gateway/cleanup"
	"github.com/driftchat/driftchat/services/gateway/handlers"
	"github.com/driftchat/driftchat/services/gateway/middleware"
	"github.com/driftchat/driftchat/services/gateway/observability"
	"github.com/driftchat/driftchat/services/gateway/repository"
	"github.com/driftchat/driftchat/services/gateway/routes"
	"github.com/driftchat/driftchat/services/gateway/stream"
	"github.com/driftchat/driftchat/services/gateway/tools"
	"github.com/driftchat/driftchat/services/llm"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds gateway configuration. Zero values use defaults where noted;
// PostgresDSN and SessionSecret are required.
type Config struct {
	// Port is the HTTP server port. Default: 8080.
	Port int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// PostgresDSN is the chat store connection string. Required.
	PostgresDSN string

	// StreamRedisURL enables resumable streaming when set. Optional;
	// without it generations stream directly and cannot be resumed.
	StreamRedisURL string

	// SessionSecret signs session tokens. Required.
	SessionSecret string

	// OTelEndpoint is the OpenTelemetry collector endpoint. Tracing is
	// disabled when empty.
	OTelEndpoint string

	// EnableMetrics exposes /metrics. Default: true via ConfigFromEnv.
	EnableMetrics bool

	// RateLimitRPS and RateLimitBurst bound per-client request rates.
	// Defaults: 5 rps, burst 10.
	RateLimitRPS   float64
	RateLimitBurst int

	// CleanupInterval is how often expired stream rows are pruned.
	// Default: 1 hour.
	CleanupInterval time.Duration

	// Repository selects the todo demo storage backend.
	Repository repository.Config
}

// ConfigFromEnv reads configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		Port:            envInt("PORT", 8080),
		GinMode:         os.Getenv("GIN_MODE"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		StreamRedisURL:  os.Getenv("STREAM_REDIS_URL"),
		SessionSecret:   os.Getenv("AUTH_SECRET"),
		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		EnableMetrics:   envBool("ENABLE_METRICS", true),
		RateLimitRPS:    envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:  envInt("RATE_LIMIT_BURST", 10),
		CleanupInterval: time.Duration(envInt("CLEANUP_INTERVAL_MINUTES", 60)) * time.Minute,
		Repository:      repository.ConfigFromEnv(),
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// =============================================================================
// Service
// =============================================================================

// Service is the assembled gateway, ready to Run.
type Service struct {
	config        Config
	log           *slog.Logger
	router        *gin.Engine
	store         chatstore.Store
	streams       *stream.Controller
	provider      *llm.Provider
	scheduler     *cleanup.Scheduler
	limiter       *middleware.RateLimiter
	tracerCleanup func(context.Context)
}

// New builds the gateway.
//
// # Description
//
// Initialization order: tracing, metrics, chat store (required), stream
// controller (optional), model provider, then the HTTP surface. A failed
// optional component logs a warning and degrades the feature instead of
// failing startup; required components abort with an error.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		panic("gateway.New: logger is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("gateway: POSTGRES_DSN is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("gateway: AUTH_SECRET is required")
	}

	s := &Service{config: cfg, log: log}

	if err := s.initTracer(ctx); err != nil {
		return nil, fmt.Errorf("gateway: tracer: %w", err)
	}

	var metrics *observability.ChatMetrics
	if cfg.EnableMetrics {
		metrics = observability.InitMetrics()
	} else {
		metrics = observability.NewMetricsWithRegistry(noopRegisterer{})
	}

	store, err := chatstore.NewPostgresStore(ctx, cfg.PostgresDSN, log)
	if err != nil {
		s.shutdownTracer()
		return nil, fmt.Errorf("gateway: chat store: %w", err)
	}
	s.store = store

	if cfg.StreamRedisURL != "" {
		streams, err := stream.NewController(ctx, cfg.StreamRedisURL, log)
		if err != nil {
			log.Warn("stream controller unavailable, falling back to direct streaming",
				slog.String("error", err.Error()))
		} else {
			s.streams = streams
		}
	} else {
		log.Info("no stream redis configured, generations are not resumable")
	}

	provider, err := llm.NewProviderFromEnv(ctx, log)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("gateway: llm provider: %w", err)
	}
	s.provider = provider

	tokens, err := middleware.NewTokenManager([]byte(cfg.SessionSecret))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("gateway: %w", err)
	}

	s.scheduler = cleanup.NewScheduler(store, cleanup.SchedulerConfig{
		Interval: cfg.CleanupInterval,
	}, log)

	s.initRouter(metrics, tokens)
	return s, nil
}

// Router returns the underlying engine for tests.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until the context ends or a signal arrives, then shuts
// down gracefully.
func (s *Service) Run(ctx context.Context) error {
	defer s.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}
	defer s.scheduler.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("gateway listening", slog.Int("port", s.config.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("gateway shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// =============================================================================
// Initialization
// =============================================================================

// initTracer sets up OTLP tracing. No-op when no endpoint is configured.
func (s *Service) initTracer(ctx context.Context) error {
	if s.config.OTelEndpoint == "" {
		s.log.Info("tracing disabled, no collector endpoint configured")
		return nil
	}

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("grpc connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("driftchat-gateway")))
	if err != nil {
		return fmt.Errorf("trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	s.tracerCleanup = func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			s.log.Error("otlp exporter shutdown failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Service) initRouter(metrics *observability.ChatMetrics, tokens *middleware.TokenManager) {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("driftchat-gateway"))

	factory := repository.NewFactory(s.config.Repository, s.log)
	tracer := otel.Tracer("driftchat/gateway")

	chat := handlers.NewChatHandler(
		s.store,
		s.streams,
		s.provider,
		tools.NewRegistry(s.log),
		metrics,
		tracer,
		s.log,
	)
	s.limiter = middleware.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	routes.SetupRoutes(router, routes.Deps{
		Chat:          chat,
		Todos:         handlers.NewTodosHandler(factory, s.log),
		Auth:          handlers.NewAuthHandler(s.store, tokens, s.log),
		Tokens:        tokens,
		Limiter:       s.limiter,
		EnableMetrics: s.config.EnableMetrics,
	})
	s.router = router
}

func (s *Service) close() {
	if s.limiter != nil {
		s.limiter.Close()
		s.limiter = nil
	}
	if s.streams != nil {
		if err := s.streams.Close(); err != nil {
			s.log.Warn("stream controller close failed", slog.String("error", err.Error()))
		}
		s.streams = nil
	}
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
	s.shutdownTracer()
}

func (s *Service) shutdownTracer() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// noopRegisterer drops metric registrations when /metrics is disabled.
type noopRegisterer struct{}

func (noopRegisterer) Register(prometheus.Collector) error { return nil }
func (noopRegisterer) MustRegister(...prometheus.Collector) {}
func (noopRegisterer) Unregister(prometheus.Collector) bool { return true }
