// Package main is the entry point for the rollcall realtime core.
//
// It loads configuration, connects the relational and cache collaborators,
// wires the push connection subsystem, the job queue workers, and the cron
// scheduler, and serves the HTTP API until SIGINT/SIGTERM.
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

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/api/handlers"
	"rollcall/internal/cache"
	"rollcall/internal/config"
	"rollcall/internal/core"
	"rollcall/internal/db"
	"rollcall/internal/jobs"
	"rollcall/internal/realtime"
	"rollcall/internal/scheduler"
	"rollcall/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("rollcall core starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Relational collaborator (read-only: subscriber resolution and job
	// payload construction).
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()
	subscribers := db.NewSubscriberRepo(pool)

	// Shared cache store behind a circuit breaker. Every consumer treats it
	// as best-effort.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	defer redisClient.Close()
	store := cache.NewRedisStore(redisClient, cfg.Cache.OpTimeout, logger)

	// Push connection subsystem.
	mirror := realtime.NewMirror(store, cfg.Cache.MirrorTTL, logger)
	registry := realtime.NewRegistry(subscribers, mirror, logger)
	broadcaster := realtime.NewBroadcaster(registry, logger)
	heartbeat := realtime.NewHeartbeat(registry, mirror, realtime.HeartbeatConfig{
		PingInterval: cfg.Realtime.PingInterval,
		ReapInterval: cfg.Realtime.ReapInterval,
		StaleAfter:   cfg.Realtime.StaleAfter,
	}, logger)

	// Job queue and built-in processors.
	queue := jobs.NewQueue(store, cfg.Jobs.HistorySize, logger)
	if err := jobs.RegisterBuiltins(queue, jobs.ProcessorDeps{
		Directory: subscribers,
		Sender:    broadcaster,
		Store:     store,
		Logger:    logger,
	}); err != nil {
		return fmt.Errorf("registering job processors: %w", err)
	}

	// Scheduler with the default recurring set.
	sched := scheduler.NewService(queue, cfg.Scheduler.ScanInterval, logger)
	if err := registerDefaultSchedules(sched); err != nil {
		return fmt.Errorf("registering schedules: %w", err)
	}

	// HTTP surface.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{
		core.Probe("cache", store.Ping),
		core.Probe("database", pool.Ping),
	}

	eventsHandler := &handlers.EventsHandler{
		Registry:     registry,
		Checker:      subscribers,
		WriteTimeout: cfg.Realtime.WriteTimeout,
		Logger:       logger,
	}
	jobsHandler := &handlers.JobsHandler{Queue: queue, Logger: logger}
	schedulesHandler := &handlers.SchedulesHandler{Scheduler: sched, Logger: logger}

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		eventsHandler.RegisterRoutes,
		jobsHandler.RegisterRoutes,
		schedulesHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return ignoreCanceled(heartbeat.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(sched.Run(gctx)) })
	for i := 1; i <= cfg.Jobs.Workers; i++ {
		workerID := i
		g.Go(func() error { return ignoreCanceled(queue.RunWorker(gctx, workerID)) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("rollcall core stopped")
	return nil
}

// registerDefaultSchedules installs the recurring set the application ships
// with: hourly attendance reminders, a metrics rollup every five minutes, and
// a nightly response-cache sweep.
func registerDefaultSchedules(sched *scheduler.Service) error {
	defaults := []struct {
		name        string
		cronExpr    string
		description string
		priority    types.JobPriority
	}{
		{jobs.JobAttendanceReminder, "0 * * * *", "hourly attendance submission reminder", types.PriorityNormal},
		{jobs.JobMetricsRollup, "*/5 * * * *", "attendance metrics rollup push", types.PriorityNormal},
		{jobs.JobCacheCleanup, "0 3 * * *", "nightly response cache sweep", types.PriorityLow},
	}
	for _, d := range defaults {
		if err := sched.Register(d.name, d.cronExpr, d.description, d.priority, nil); err != nil {
			return err
		}
	}
	return nil
}

// ignoreCanceled treats context cancellation as a clean shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newLogger builds the process-wide structured logger. JSON output so log
// aggregation can index the fields.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
