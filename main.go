package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"civicBadgesAPI/handlers"
	"civicBadgesAPI/internal/badge"
	"civicBadgesAPI/internal/config"
	"civicBadgesAPI/internal/notification"
	"civicBadgesAPI/internal/store"
	"civicBadgesAPI/middleware"
	"civicBadgesAPI/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.ClerkSecretKey != "" {
		clerk.SetKey(cfg.ClerkSecretKey)
		logger.Info("Clerk initialized")
	} else {
		logger.Warn("CLERK_SECRET_KEY is not set; user routes will reject every token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	badgeStore, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	middleware.InitPrometheus(prometheus.DefaultRegisterer)
	badgeService := services.NewBadgeService(badgeStore, services.NewBadgeMetrics(prometheus.DefaultRegisterer), logger)

	defs, err := badge.LoadDefinitionsFile(cfg.CatalogFile)
	if err != nil {
		return err
	}
	if err := badgeService.SyncCatalog(ctx, defs); err != nil {
		return err
	}

	if cfg.FCMServiceAccountFile != "" || os.Getenv("FCM_SERVICE_ACCOUNT_JSON") != "" {
		notifier, err := notification.NewFCMNotifier(cfg.FCMServiceAccountFile, logger)
		if err != nil {
			logger.Warn("Could not initialize FCM, badge pushes disabled", zap.Error(err))
		} else {
			badgeService.SetNotifier(notifier)
		}
	}

	dispatcher := services.NewBadgeDispatcher(badgeService, services.DispatcherConfig{
		Workers:   cfg.DispatcherWorkers,
		QueueSize: cfg.DispatcherQueueSize,
	}, logger)
	defer dispatcher.Stop()

	limiter := middleware.NewRateLimiter(rate.Limit(5), 30)
	if err := limiter.TrustProxies(cfg.TrustedProxies); err != nil {
		return err
	}
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go limiter.Cleanup(bgCtx, time.Minute, 3*time.Minute)

	router := newRouter(routerDeps{
		cfg:           cfg,
		logger:        logger,
		badgeHandler:  handlers.NewBadgeHandler(badgeService, logger),
		eventHandler:  handlers.NewEventHandler(dispatcher, logger),
		userVerifier:  middleware.ClerkVerifier,
		eventVerifier: middleware.ServiceTokenVerifier([]byte(cfg.EventsSigningKey)),
		limiter:       limiter,
		health:        health,
	})

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr), zap.String("storage", cfg.Driver()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-serverErr:
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				reloadCatalog(badgeService, cfg, logger)
				continue
			}
			logger.Info("Got signal", zap.String("signal", sig.String()))

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server shutdown error", zap.Error(err))
			}
			logger.Info("Server shutdown complete")
			return nil
		}
	}
}

// reloadCatalog re-reads the catalog file into storage and swaps the active
// catalog. Failures keep the current catalog.
func reloadCatalog(svc *services.BadgeService, cfg config.Config, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	defs, err := badge.LoadDefinitionsFile(cfg.CatalogFile)
	if err != nil {
		logger.Error("Catalog reload failed", zap.Error(err))
		return
	}
	if err := svc.SyncCatalog(ctx, defs); err != nil {
		logger.Error("Catalog reload failed", zap.Error(err))
	}
}

type healthFunc func(ctx context.Context) error

func activitySchema(cfg config.Config) store.ActivitySchema {
	return store.ActivitySchema{
		ComplaintTable:    cfg.ComplaintTable,
		ComplainantColumn: cfg.ComplainantColumn,
		StatusColumn:      cfg.StatusColumn,
		UpvotesColumn:     cfg.UpvotesColumn,
		DepartmentColumn:  cfg.DepartmentColumn,
		UserTable:         cfg.UserTable,
		UserIDColumn:      cfg.UserIDColumn,
		UserSubjectColumn: cfg.UserSubjectColumn,
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.BadgeStore, healthFunc, func(), error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		if err := store.MigratePostgres(cfg.DatabaseURL, logger); err != nil {
			return nil, nil, nil, err
		}

		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		poolConfig.MaxConns = 25
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		poolConfig.HealthCheckPeriod = time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info("Connected to Postgres")
		return store.NewPostgresStore(pool, activitySchema(cfg), logger), pool.Ping, pool.Close, nil

	case config.DriverSQLite:
		s, err := store.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Opened SQLite store", zap.String("path", cfg.SQLitePath))
		return s, s.Ping, func() { _ = s.Close() }, nil

	default:
		logger.Warn("Using in-memory store; awards are lost on restart")
		return store.NewMemoryStore(), func(context.Context) error { return nil }, func() {}, nil
	}
}
