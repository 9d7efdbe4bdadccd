package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brightpath-io/activity-sync/api/routes"
	"github.com/brightpath-io/activity-sync/internal/attempts"
	"github.com/brightpath-io/activity-sync/internal/integrations"
	"github.com/brightpath-io/activity-sync/internal/notifications"
	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/internal/remote"
	syncengine "github.com/brightpath-io/activity-sync/internal/sync"
	"github.com/brightpath-io/activity-sync/internal/webhooks/inbound"
	"github.com/brightpath-io/activity-sync/pkg/config"
	"github.com/brightpath-io/activity-sync/pkg/db"
	"github.com/brightpath-io/activity-sync/pkg/logger"
	"github.com/brightpath-io/activity-sync/pkg/metrics"
	"github.com/brightpath-io/activity-sync/pkg/migrate"
	"github.com/brightpath-io/activity-sync/pkg/pubsub"
	"github.com/brightpath-io/activity-sync/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	webhookEventsRepo := inbound.NewRepository(dbClient.DB())

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

	scheduler, err := syncengine.NewScheduler(syncengine.SchedulerParams{
		Orchestrator: orchestrator,
		Logger:       logg,
		QueueSize:    cfg.Sync.SchedulerQueueSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	recordsService, err := records.NewService(records.ServiceParams{
		Repo:      recordsRepo,
		Tx:        dbClient,
		Scheduler: scheduler,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create records service", err)
		os.Exit(1)
	}

	webhookService, err := inbound.NewService(inbound.ServiceParams{
		Events:    webhookEventsRepo,
		Records:   recordsRepo,
		Confirmer: orchestrator,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "scheduler stopped unexpectedly", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient.DB(),
			Records:      recordsService,
			Integrations: integrationsService,
			Attempts:     attemptsRepo,
			Orchestrator: orchestrator,
			Scheduler:    scheduler,
			Webhooks:     webhookService,
			Events:       webhookEventsRepo,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(logCtx, "api server shut down gracefully")
}
