package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/brightpath-io/activity-sync/api/controllers"
	webhookcontrollers "github.com/brightpath-io/activity-sync/api/controllers/webhooks"
	"github.com/brightpath-io/activity-sync/api/middleware"
	"github.com/brightpath-io/activity-sync/internal/attempts"
	"github.com/brightpath-io/activity-sync/internal/integrations"
	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/internal/webhooks/inbound"
	"github.com/brightpath-io/activity-sync/pkg/config"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

// RouterParams collects everything the API surface depends on.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *gorm.DB
	Records      records.Service
	Integrations integrations.Service
	Attempts     attempts.Repository
	Orchestrator controllers.Synchronizer
	Scheduler    controllers.SyncScheduler
	Webhooks     webhookcontrollers.InboundService
	Events       inbound.Repository
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.CorrelationID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.DB, p.Logger))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/sync", webhookcontrollers.Inbound(p.Webhooks, p.Config.Webhook.SigningSecret, p.Logger))
		r.Get("/events/{eventID}", webhookcontrollers.GetEvent(p.Events, p.Logger))
	})

	r.Route("/api/v1/activities", func(r chi.Router) {
		r.Post("/", controllers.CreateActivity(p.Records, p.Logger))
		r.Get("/", controllers.ListActivities(p.Records, p.Logger))
		r.Get("/stats", controllers.ActivityStats(p.Records, p.Logger))

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", controllers.GetActivity(p.Records, p.Logger))
			r.Put("/", controllers.UpdateActivity(p.Records, p.Logger))
			r.Delete("/", controllers.DeactivateActivity(p.Records, p.Logger))

			r.Post("/sync", controllers.ForceSync(p.Orchestrator, p.Logger))
			r.Post("/sync/queue", controllers.QueueSync(p.Scheduler, p.Logger))
			r.Get("/attempts", controllers.ListActivityAttempts(p.Attempts, p.Logger))
			r.Get("/events", webhookcontrollers.ListActivityEvents(p.Events, p.Logger))
		})
	})

	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Post("/batch", controllers.BatchSync(p.Orchestrator, p.Logger))
		r.Delete("/jobs/{jobID}", controllers.CancelSyncJob(p.Scheduler, p.Logger))
	})

	r.Route("/api/v1/attempts", func(r chi.Router) {
		r.Get("/stats", controllers.AttemptStats(p.Attempts, p.Logger))
		r.Get("/failures", controllers.ListFailedAttempts(p.Attempts, p.Logger))
		r.Get("/{attemptID}", controllers.GetAttempt(p.Attempts, p.Logger))
	})

	r.Route("/api/v1/integrations", func(r chi.Router) {
		r.Post("/", controllers.CreateIntegrationConfig(p.Integrations, p.Logger))
		r.Get("/", controllers.ListIntegrationConfigs(p.Integrations, p.Logger))
		r.Get("/{id}", controllers.GetIntegrationConfig(p.Integrations, p.Logger))
		r.Put("/{id}/default", controllers.SetDefaultIntegrationConfig(p.Integrations, p.Logger))
	})

	return r
}
