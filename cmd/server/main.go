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

	"golang.org/x/sync/errgroup"

	"library-circulation/internal/circulation"
	"library-circulation/internal/config"
	"library-circulation/internal/firebase"
	"library-circulation/internal/handlers"
	"library-circulation/internal/outbox"
	"library-circulation/internal/processors"
	"library-circulation/internal/redis"
	"library-circulation/internal/telemetry"
	"library-circulation/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Observability)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	fb, err := firebase.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		return err
	}
	defer fb.Close()
	logger.Info("firestore connected", "project", cfg.Firebase.ProjectID)

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	store := redis.NewStore(rdb, redis.WithLedgerRules(cfg.Ledger))
	defer store.Close()
	if err := store.LoadScripts(ctx); err != nil {
		return err
	}
	logger.Info("redis connected", "addr", cfg.Redis.Addr)

	metrics, err := outbox.NewMetrics(nil)
	if err != nil {
		return err
	}
	registry := outbox.NewRegistry()
	processors.New(fb, store, logger).Register(registry)
	if missing := registry.Missing(); len(missing) > 0 {
		return fmt.Errorf("outbox processors missing for %v", missing)
	}

	tasks := outbox.NewService(fb, registry, outbox.PolicyFromConfig(cfg.Outbox),
		outbox.WithLogger(logger), outbox.WithMetrics(metrics))
	worker := outbox.NewWorker(tasks, cfg.Outbox)
	cleanup, err := outbox.NewCleanupScheduler(tasks, cfg.Outbox.CleanupCron, cfg.Outbox.Retention)
	if err != nil {
		return err
	}

	relays, err := workers.NewRelays(store, tasks, workers.ConsumerName(), cfg.Workers, workers.WithLogger(logger))
	if err != nil {
		return err
	}
	reservations, err := workers.NewReservationSweeper(store, tasks, cfg.Workers, workers.WithLogger(logger))
	if err != nil {
		return err
	}
	loans, err := workers.NewLoanSweeper(store, tasks, cfg.Workers, workers.WithLogger(logger))
	if err != nil {
		return err
	}

	svc := circulation.NewService(store, fb, logger)
	router := handlers.NewRouter(svc, tasks, map[string]handlers.Check{
		"redis":     store.Ping,
		"firestore": fb.Ping,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	cleanup.Start(gctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return reservations.Run(gctx) })
	g.Go(func() error { return loans.Run(gctx) })
	for _, relay := range relays {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("http server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
