package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fixshop/internal/access"
	"fixshop/internal/cache"
	"fixshop/internal/config"
	"fixshop/internal/events"
	"fixshop/internal/httpserver"
	"fixshop/internal/jobs"
	"fixshop/internal/ledger"
	"fixshop/internal/logging"
	"fixshop/internal/metrics"
	"fixshop/internal/repo"
	"fixshop/internal/stats"
	"fixshop/internal/wa"
	"fixshop/internal/warranty"
	"fixshop/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fixshop", "env", cfg.AppEnv, "driver", cfg.DatabaseDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := repo.Open(ctx, repo.Options{
		Driver:      cfg.DatabaseDriver,
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DatabaseSchema,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	var statsCache stats.Cache
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		statsCache = redisClient
	}

	var publisher events.Publisher = events.Nop{}
	var producer *events.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewKafkaProducer(events.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Producer: cfg.ServiceName,
		}, logger, metricRegistry)
		publisher = producer
	}
	producerCtx, producerCancel := context.WithCancel(context.Background())
	if producer != nil {
		producer.Start(producerCtx)
	}

	var notifier jobs.Notifier
	if cfg.WhatsAppEnabled {
		waClient, err := wa.New(ctx, wa.Config{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
			Metrics:   metricRegistry,
		}, logger)
		if err != nil {
			producerCancel()
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()
		if err := waClient.Start(ctx); err != nil {
			logger.Error("whatsapp client not started; notifications will fail", "error", err)
		}
		notifier = waClient
	}

	location, err := cfg.Location()
	if err != nil {
		producerCancel()
		return fmt.Errorf("stats timezone: %w", err)
	}

	gate, err := access.NewGate(repository, metricRegistry, logger, access.Options{
		Secret: []byte(cfg.RevenueGrantSecret),
		TTL:    cfg.RevenueGrantTTL,
	})
	if err != nil {
		producerCancel()
		return fmt.Errorf("init access gate: %w", err)
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Tenants:    repository,
		Warranties: warranty.NewService(repository, publisher, metricRegistry, logger, warranty.Options{PhoneRegion: cfg.PhoneRegion}),
		Jobs:       jobs.NewService(repository, publisher, metricRegistry, logger, jobs.Options{PhoneRegion: cfg.PhoneRegion, Notifier: notifier}),
		Ledger:     ledger.NewService(repository, publisher, metricRegistry, logger, nil),
		Stats: stats.NewService(repository, statsCache, metricRegistry, logger, stats.Options{
			Location: location,
			CacheTTL: cfg.StatsCacheTTL,
		}),
		Gate: gate,
	}, cfg.PublicBasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	producerCancel()
	if producer != nil {
		producer.WaitClosed()
	}
	return runErr
}
