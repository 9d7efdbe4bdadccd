package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightpath-io/activity-sync/internal/attempts"
	"github.com/brightpath-io/activity-sync/internal/cron"
	"github.com/brightpath-io/activity-sync/internal/integrations"
	"github.com/brightpath-io/activity-sync/internal/notifications"
	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/internal/remote"
	syncengine "github.com/brightpath-io/activity-sync/internal/sync"
	"github.com/brightpath-io/activity-sync/pkg/config"
	"github.com/brightpath-io/activity-sync/pkg/db"
	"github.com/brightpath-io/activity-sync/pkg/logger"
	"github.com/brightpath-io/activity-sync/pkg/metrics"
	"github.com/brightpath-io/activity-sync/pkg/migrate"
	"github.com/brightpath-io/activity-sync/pkg/pubsub"
	"github.com/brightpath-io/activity-sync/pkg/redis"
)

const lockKeyFormat = "as:sync-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	recordsRepo := records.NewRepository(dbClient.DB())
	attemptsRepo := attempts.NewRepository(dbClient.DB())

	integrationsService, err := integrations.NewService(integrations.ServiceParams{
		Repo: integrations.NewRepository(dbClient.DB()),
		Tx:   dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create integrations service", err)
		os.Exit(1)
	}

	tokenCache, err := remote.NewTokenCache(redisClient, cfg.Sync.TokenSafetyMargin, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create token cache", err)
		os.Exit(1)
	}

	remoteClient, err := remote.NewClient(remote.ClientParams{
		Cache:  tokenCache,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create remote client", err)
		os.Exit(1)
	}

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Publisher:        pubsubClient.NotificationPublisher(),
		DefaultRecipient: cfg.Notifications.DefaultRecipient,
		Logger:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)

	orchestrator, err := syncengine.NewOrchestrator(syncengine.OrchestratorParams{
		Records:        recordsRepo,
		Attempts:       attemptsRepo,
		Configs:        integrationsService,
		Remote:         remoteClient,
		Dispatcher:     dispatcher,
		Metrics:        syncMetrics,
		Logger:         logg,
		BatchItemDelay: cfg.Sync.BatchItemDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orchestrator", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewSweepJob(cron.SweepJobParams{
		Records:      recordsRepo,
		Configs:      integrationsService,
		Orchestrator: orchestrator,
		Logger:       logg,
		PageSize:     cfg.Sync.SweepPageSize,
		StaleAfter:   cfg.Sync.SweepStaleAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  syncMetrics,
		Interval: cfg.Sync.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

	go serveMetrics(ctx, cfg, logg)

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, cfg *config.Config, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + cfg.App.Port, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
