package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/config"
	"github.com/YatraLedger/yatra-ledger-backend/handlers"
	"github.com/YatraLedger/yatra-ledger-backend/internal/engine"
	"github.com/YatraLedger/yatra-ledger-backend/internal/notification"
	"github.com/YatraLedger/yatra-ledger-backend/internal/reminder"
	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/router"
	"github.com/YatraLedger/yatra-ledger-backend/services"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/store/memory"
	pgsource "github.com/YatraLedger/yatra-ledger-backend/store/postgres"
	redissource "github.com/YatraLedger/yatra-ledger-backend/store/redis"
	s3storage "github.com/YatraLedger/yatra-ledger-backend/store/s3"
	"github.com/YatraLedger/yatra-ledger-backend/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// engineSource is what a storage collaborator must provide: live collection
// subscriptions plus the write operations.
type engineSource interface {
	store.CollectionSource
	store.TripStore
}

func main() {
	logger.InitLogger()
	log := logger.GetLogger()
	defer func() {
		_ = logger.Close()
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, sourceShutdown, healthChecks, err := buildSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s source: %v", cfg.Source, err)
	}

	// Durable reminder state. A broken state file degrades the scheduler to
	// in-memory bookkeeping rather than blocking startup.
	var states store.ReminderStateStore
	if cfg.Reminder.StatePath != "" {
		sqliteStore, err := sqlite.NewReminderStore(cfg.Reminder.StatePath)
		if err != nil {
			log.Warnw("Reminder state store unavailable, falling back to in-memory state",
				"path", cfg.Reminder.StatePath, "error", err)
		} else {
			states = sqliteStore
			defer func() {
				_ = sqliteStore.Close()
			}()
		}
	}

	var notifier store.Notifier
	if cfg.Notification.APIURL != "" {
		notifier = notification.NewClient(cfg.Notification.APIURL, cfg.Notification.APIKey)
	} else {
		notifier = notification.NewLogNotifier()
	}

	scheduler := reminder.NewScheduler(states, notifier, reminder.Config{
		PollInterval: time.Duration(cfg.Reminder.PollIntervalSeconds) * time.Second,
	})

	loc, err := cfg.Engine.Location()
	if err != nil {
		log.Fatalf("Failed to resolve timezone: %v", err)
	}
	eng := engine.New(source, notifier, scheduler, engine.Config{Location: loc})
	if cfg.Engine.DefaultOwner != "" {
		if err := eng.Start(ctx, cfg.Engine.DefaultOwner); err != nil {
			log.Fatalf("Failed to start engine: %v", err)
		}
	}

	var receipts store.ReceiptStorage
	if cfg.Storage.Endpoint != "" {
		receipts, err = s3storage.NewReceiptStorage(
			cfg.Storage.Endpoint,
			cfg.Storage.Region,
			cfg.Storage.Bucket,
			cfg.Storage.AccessKeyID,
			cfg.Storage.SecretAccessKey,
		)
		if err != nil {
			log.Fatalf("Failed to initialize receipt storage: %v", err)
		}
	}

	tripService := services.NewTripService(source, receipts, scheduler)
	healthService := services.NewHealthService(cfg.Server.Version, healthChecks)

	r := router.SetupRouter(router.Dependencies{
		Config:        cfg,
		TripHandler:   handlers.NewTripHandler(eng, tripService),
		HealthHandler: handlers.NewHealthHandler(healthService),
		Logger:        log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server shutdown failed", "error", err)
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Engine shutdown failed", "error", err)
	}
	if sourceShutdown != nil {
		if err := sourceShutdown(shutdownCtx); err != nil {
			log.Errorw("Source shutdown failed", "error", err)
		}
	}
	log.Info("Shutdown complete")
}

// buildSource constructs the configured storage collaborator along with its
// shutdown hook and readiness probes.
func buildSource(ctx context.Context, cfg *config.Config) (engineSource, func(context.Context) error, map[string]services.HealthCheckFunc, error) {
	log := logger.GetLogger()

	switch cfg.Source {
	case config.SourcePostgres:
		if err := pgsource.RunMigrations(cfg.Database.URL()); err != nil {
			return nil, nil, nil, err
		}
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL())
		if err != nil {
			return nil, nil, nil, err
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConnections)
		if cfg.IsProduction() {
			poolConfig.ConnConfig.TLSConfig = &tls.Config{
				ServerName: cfg.Database.Host,
				MinVersion: tls.VersionTLS12,
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, nil, err
		}
		source := pgsource.NewSource(pool)
		shutdown := func(shutdownCtx context.Context) error {
			err := source.Shutdown(shutdownCtx)
			pool.Close()
			return err
		}
		checks := map[string]services.HealthCheckFunc{
			"postgres": func(checkCtx context.Context) error { return pool.Ping(checkCtx) },
		}
		log.Infow("Using postgres source", "host", cfg.Database.Host, "database", cfg.Database.Name)
		return source, shutdown, checks, nil

	case config.SourceRedis:
		options := &redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		if cfg.Redis.UseTLS {
			options.TLSConfig = &tls.Config{
				ServerName: cfg.Redis.Address,
				MinVersion: tls.VersionTLS12,
			}
		}
		client := redis.NewClient(options)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, err
		}
		source := redissource.NewSource(client)
		shutdown := func(shutdownCtx context.Context) error {
			err := source.Shutdown(shutdownCtx)
			if cerr := client.Close(); err == nil {
				err = cerr
			}
			return err
		}
		checks := map[string]services.HealthCheckFunc{
			"redis": func(checkCtx context.Context) error { return client.Ping(checkCtx).Err() },
		}
		log.Infow("Using redis source", "address", cfg.Redis.Address)
		return source, shutdown, checks, nil

	default:
		log.Info("Using in-memory source")
		return memory.NewSource(), nil, nil, nil
	}
}
