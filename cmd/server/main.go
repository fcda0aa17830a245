// Command server runs the deletion lifecycle engine: the background
// scheduler plus the operational surface (health probes and Prometheus
// metrics). Storage, cache, broker and billing integrations are optional;
// anything unconfigured falls back to its in-memory implementation so a dev
// instance runs with zero external services.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lethe/internal/erasure/alerts"
	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/certificate"
	"lethe/internal/erasure/engine"
	"lethe/internal/erasure/handler"
	"lethe/internal/erasure/locator"
	"lethe/internal/erasure/metrics"
	"lethe/internal/erasure/orchestrator"
	"lethe/internal/erasure/report"
	"lethe/internal/erasure/scheduler"
	"lethe/internal/erasure/store"
	"lethe/internal/erasure/systems"
	"lethe/internal/erasure/verifier"
	"lethe/internal/platform/config"
	"lethe/internal/platform/database"
	"lethe/internal/platform/health"
	"lethe/internal/platform/kafka/producer"
	"lethe/internal/platform/logger"
	platformredis "lethe/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthHandler := health.New(cfg.Environment)
	m := metrics.New()

	// Stores: PostgreSQL when configured, in-memory otherwise.
	pool, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	var (
		requestStore store.Store
		auditStore   auditlog.Store
		certStore    certificate.Store
		primary      locator.PrimaryStore
	)
	if pool != nil {
		defer pool.Close()
		requestStore = store.NewPostgres(pool.DB())
		auditStore = auditlog.NewPostgres(pool.DB())
		certStore = certificate.NewPostgres(pool.DB())
		primary = locator.NewPostgresPrimary(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(checkCtx)
		})
		log.Info("using postgres storage")
	} else {
		requestStore = store.NewInMemory()
		auditStore = auditlog.NewInMemory()
		certStore = certificate.NewInMemory()
		primary = locator.NewInMemoryPrimary()
		log.Warn("no database configured, using in-memory storage")
	}

	ledger := auditlog.New(auditStore, auditlog.WithLogger(log), auditlog.WithFailureCounter(m))
	loc, err := locator.New(primary, nil)
	if err != nil {
		return fmt.Errorf("build locator: %w", err)
	}

	secondaries, err := buildSecondaries(cfg, log, healthHandler)
	if err != nil {
		return err
	}

	// Alerting: Kafka when brokers are configured, structured log otherwise.
	var sink alerts.Sink
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err := producer.New(cfg.KafkaBrokers, log)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer kafkaProducer.Close()
		sink, err = alerts.NewKafkaSink(kafkaProducer, cfg.AlertTopic)
		if err != nil {
			return fmt.Errorf("create kafka alert sink: %w", err)
		}
		healthHandler.RegisterCheck("kafka", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(checkCtx) {
				return errors.New("kafka unreachable")
			}
			return nil
		})
	} else {
		sink = alerts.NewLogSink(log)
		log.Warn("no kafka brokers configured, alerts go to the log")
	}
	notifier, err := alerts.New(sink, alerts.WithLogger(log), alerts.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	orch, err := orchestrator.New(loc, secondaries, ledger,
		orchestrator.WithStepTimeout(cfg.SystemCallTimeout),
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	check, err := verifier.New(loc, ledger, secondaries, verifier.WithLogger(log), verifier.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("build verifier: %w", err)
	}
	issuer, err := certificate.New(certStore, certificate.WithLogger(log), certificate.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("build issuer: %w", err)
	}
	sched, err := scheduler.New(requestStore, orch, check, issuer, ledger, notifier, scheduler.Config{
		Interval:         cfg.SchedulerInterval,
		BatchSize:        cfg.BatchSize,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		StalenessTimeout: cfg.StalenessTimeout,
		DeadlineLeadTime: cfg.DeadlineLeadTime,
	}, scheduler.WithLogger(log), scheduler.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	reporter, err := report.New(requestStore, auditStore)
	if err != nil {
		return fmt.Errorf("build reporter: %w", err)
	}
	directory, err := locator.NewDirectory(primary)
	if err != nil {
		return fmt.Errorf("build subject directory: %w", err)
	}
	eng, err := engine.New(requestStore, directory, sched, check, issuer, ledger, reporter, cfg.RetentionWindow,
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithNotifier(notifier),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	sched.Start(ctx)
	defer sched.Stop()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	handler.New(eng, cfg.DeadlineLeadTime).Register(router)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("ops server listening", "addr", cfg.Addr, "environment", cfg.Environment)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	return nil
}

// buildSecondaries assembles the secondary system set in canonical order:
// cache, logs, backups, payment processor. Unconfigured integrations fall
// back to in-memory implementations.
func buildSecondaries(cfg config.Server, log *slog.Logger, healthHandler *health.Handler) ([]systems.SecondarySystem, error) {
	var secondaries []systems.SecondarySystem

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		secondaries = append(secondaries, systems.NewRedisCache(redisClient.Client))
		healthHandler.RegisterCheck("redis", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(checkCtx)
		})
	} else {
		secondaries = append(secondaries, systems.NewInMemoryCache())
		log.Warn("no redis configured, using in-memory cache system")
	}

	secondaries = append(secondaries, systems.NewLogSystem(), systems.NewBackupSystem())

	var paymentAPI systems.PaymentAPI
	if cfg.PaymentAPIBaseURL != "" {
		paymentAPI = systems.NewHTTPPaymentAPI(cfg.PaymentAPIBaseURL, cfg.PaymentAPIKey)
	} else {
		paymentAPI = systems.NewInMemoryPaymentAPI()
		log.Warn("no payment api configured, using in-memory stub")
	}
	secondaries = append(secondaries, systems.NewPaymentSystem(paymentAPI, systems.NewStaticCustomerDirectory()))
	return secondaries, nil
}
