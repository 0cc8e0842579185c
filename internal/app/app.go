// Package app provides the application lifecycle management for the
// scheduling service: dependency wiring, startup, and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/api"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/config"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/database"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/metrics"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/reconciler"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/redis"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/worker"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	// cacheLoadLookback/cacheLoadHorizon bound the calendar window preloaded
	// into the reconciler cache at startup.
	cacheLoadLookback = 7 * 24 * time.Hour
	cacheLoadHorizon  = 365 * 24 * time.Hour
)

// App represents the scheduler application with all its dependencies
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *goredis.Client
	repo        *database.ScheduleRepository
	rec         *reconciler.Reconciler
	broker      *api.EventBroker
	worker      *worker.PublishWorker
	httpServer  *http.Server
	version     string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "scheduler"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(cfg.Postgres.Database())
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = database.Close(db)
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(registry)

	repo := database.NewScheduleRepository(db)
	prefsRepo := database.NewPreferencesRepository(db)

	cache := reconciler.NewCache()
	rec := reconciler.New(cache, repo,
		reconciler.WithLogger(appLogger),
		reconciler.WithNotifier(notifyMetrics(m)))

	broker := api.NewEventBroker(appLogger)

	publishWorker := worker.NewPublishWorker(repo, redisClient, worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
	}, m, appLogger)

	router := api.NewRouter(repo, prefsRepo, rec, broker, redisClient, registry, m, appLogger, cfg.Debug)
	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		repo:        repo,
		rec:         rec,
		broker:      broker,
		worker:      publishWorker,
		httpServer:  httpServer,
		version:     opts.Version,
	}, nil
}

// notifyMetrics translates settlement notifications into counters.
func notifyMetrics(m *metrics.Metrics) reconciler.Notifier {
	return func(n reconciler.Notification) {
		switch n.Kind {
		case reconciler.NotifySuccess:
			m.ReconcilerCommitsTotal.Inc()
		case reconciler.NotifyError:
			m.ReconcilerRollbacksTotal.Inc()
		}
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Preload the calendar window so reconciler pre-flight checks and the
	// SSE stream see current state.
	loadCtx, loadCancel := context.WithTimeout(runCtx, 10*time.Second)
	now := time.Now()
	if err := a.rec.Load(loadCtx, now.Add(-cacheLoadLookback), now.Add(cacheLoadHorizon), nil); err != nil {
		a.logger.Warn("calendar preload failed, starting with empty cache", logger.Error(err))
	}
	loadCancel()

	a.broker.Start(runCtx)
	unbind := a.broker.BindCache(a.rec.Cache())
	defer unbind()

	a.worker.Start(runCtx)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting",
			logger.String("address", a.config.Server.Address),
			logger.Bool("debug", a.config.Debug))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	return a.waitForShutdown(cancel, serverErr)
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(cancel context.CancelFunc, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Server error", logger.Error(err))
			shutdownErr = err
		}
	}

	cancel()
	a.worker.Stop()
	a.broker.Stop()
	a.shutdownHTTPServer()

	a.logger.Info("Service stopped")
	return shutdownErr
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	if a.httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
