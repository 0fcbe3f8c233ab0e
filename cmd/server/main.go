package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/banking/grant-risk-service/internal/api"
	"github.com/banking/grant-risk-service/internal/config"
	"github.com/banking/grant-risk-service/internal/messaging"
	"github.com/banking/grant-risk-service/internal/metrics"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
	"github.com/banking/grant-risk-service/internal/pkg/telemetry"
	"github.com/banking/grant-risk-service/internal/screening"
	"github.com/banking/grant-risk-service/internal/store"
	"github.com/banking/grant-risk-service/internal/textgen"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	log, err := logger.New(cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, cfg.Telemetry.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server exited properly")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	// 4. Storage
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 5. Text generation
	var generator textgen.Generator = textgen.Disabled{}
	if cfg.TextGen.APIKey != "" {
		gemini, err := textgen.NewGemini(cfg.TextGen)
		if err != nil {
			return fmt.Errorf("init text generator: %w", err)
		}
		generator = gemini
	} else {
		log.Warn("no text generation key configured, deterministic fallbacks only")
	}
	generator = textgen.NewBreaker(generator, cfg.TextGen.BreakerFailures, cfg.TextGen.BreakerOpenFor, log)

	// 6. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 7. Messaging
	var publisher screening.AlertPublisher = messaging.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertsTopic, log)
		if err != nil {
			return fmt.Errorf("init alert producer: %w", err)
		}
		defer producer.Close()
		publisher = producer
	}

	engine := screening.NewEngine(st, generator, publisher, m, screening.EngineConfig{
		Features:  cfg.Features,
		Alerts:    cfg.Alerts,
		Screening: cfg.Screening,
	}, log)

	if cfg.Kafka.Enabled {
		consumer, err := messaging.NewConsumer(cfg.Kafka, engine, log)
		if err != nil {
			return fmt.Errorf("init transaction consumer: %w", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("transaction consumer stopped", zap.Error(err))
			}
		}()
	}

	// 8. HTTP
	verifier := api.NewTokenVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
	if verifier == nil {
		log.Warn("no JWT secret configured, triage is unauthenticated")
	}
	e := api.NewServer(cfg, api.NewHandler(engine, verifier, log))
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("server started", zap.String("addr", addr), zap.String("storage", cfg.Storage.Driver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(sctx); err != nil {
		log.Warn("api server shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(sctx); err != nil {
		log.Warn("metrics server shutdown failed", zap.Error(err))
	}
	return runErr
}

// openStore builds the configured store, wrapped in the Redis cache when
// enabled. The returned func releases every connection.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, func(), error) {
	var (
		st      store.Store
		closers []func()
	)

	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		st = store.NewMemory()
	default:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		closers = append(closers, pg.Close)
		st = pg
	}

	if cfg.Redis.Enabled {
		client, err := store.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		st = store.NewCached(st, client, cfg.Redis.AlertCacheTTL, cfg.Redis.EntityCacheTTL, log)
	}

	return st, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
