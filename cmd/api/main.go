// Package main is the entry point for the sagechat scheduler API server.
//
// It loads configuration, connects Postgres and Redis, wires the scheduler,
// milestone notifier, and sweep runner, and serves the HTTP API with the
// core chassis (middleware, routing, health checks).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sagechat/internal/api/handlers"
	"sagechat/internal/chat"
	"sagechat/internal/config"
	"sagechat/internal/core"
	"sagechat/internal/db"
	"sagechat/internal/milestone"
	"sagechat/internal/scheduler"
	"sagechat/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("sagechat scheduler API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Unmask(),
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Repositories.
	scheduleRepo := db.NewScheduleRepository(pool)
	chatRepo := db.NewChatRepository(pool)
	userRepo := db.NewUserRepository(pool)
	lockRepo := db.NewJobLockRepository(pool)

	// Domain services.
	deliverer := chat.NewDeliverer(chatRepo, logger)

	sched := scheduler.New(scheduler.Config{
		Store:     scheduleRepo,
		Deliverer: deliverer,
		Logger:    logger,
	})

	notifier := milestone.NewNotifier(milestone.NotifierConfig{
		Admins:    userRepo,
		Deliverer: deliverer,
		Marks:     milestone.NewRedisMarkStore(rdb, cfg.Milestone.MarkTTL),
		Logger:    logger,
	})

	runner := sweeper.NewRunner(sweeper.RunnerConfig{
		Scheduler: sched,
		Lock:      lockRepo,
		WorkerID:  workerID(),
		LockTTL:   cfg.Sweep.LockTTL,
		Logger:    logger,
	})

	// HTTP surface.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	srv.ProcessHandler = handlers.NewProcessHandler(runner, logger)

	scheduleHandler := handlers.NewScheduleHandler(sched, logger)
	milestoneHandler := handlers.NewMilestoneHandler(notifier, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		scheduleHandler.RegisterRoutes,
		milestoneHandler.RegisterRoutes,
	)

	srv.HealthProbes = []core.HealthProbe{
		&postgresProbe{pool: pool},
		&redisProbe{client: rdb},
	}

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// workerID identifies this process in the job_locks table. Hostname keeps
// lock ownership traceable; the uuid suffix disambiguates restarts on the
// same host.
func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "api"
	}
	return host + "-" + uuid.NewString()[:8]
}

// newPool builds the pgx connection pool from the configured database URL
// and pool tuning parameters.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}

// postgresProbe reports database reachability for GET /health.
type postgresProbe struct {
	pool *pgxpool.Pool
}

func (p *postgresProbe) Name() string { return "postgres" }

func (p *postgresProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// redisProbe reports mark-store reachability for GET /health.
type redisProbe struct {
	client *redis.Client
}

func (p *redisProbe) Name() string { return "redis" }

func (p *redisProbe) Check(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
