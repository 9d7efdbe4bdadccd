package webhooks

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightpath-io/activity-sync/api/responses"
	"github.com/brightpath-io/activity-sync/api/validators"
	"github.com/brightpath-io/activity-sync/internal/webhooks/inbound"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type eventResponse struct {
	ID              string                 `json:"id"`
	Source          string                 `json:"source"`
	EventType       enums.WebhookEventType `json:"event_type"`
	EntityID        string                 `json:"entity_id,omitempty"`
	ExternalID      *string                `json:"external_id,omitempty"`
	Payload         json.RawMessage        `json:"payload"`
	CorrelationID   string                 `json:"correlation_id,omitempty"`
	ReceivedAt      time.Time              `json:"received_at"`
	ProcessedAt     *time.Time             `json:"processed_at,omitempty"`
	ProcessingError *string                `json:"processing_error,omitempty"`
}

func toEventResponse(e *models.WebhookEvent) eventResponse {
	return eventResponse{
		ID:              e.ID.String(),
		Source:          e.Source,
		EventType:       e.EventType,
		EntityID:        e.EntityID,
		ExternalID:      e.ExternalID,
		Payload:         e.Payload,
		CorrelationID:   e.CorrelationID,
		ReceivedAt:      e.ReceivedAt,
		ProcessedAt:     e.ProcessedAt,
		ProcessingError: e.ProcessingError,
	}
}

// GetEvent returns one audited webhook event.
func GetEvent(repo inbound.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook event store unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "eventID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id must be a uuid"))
			return
		}

		event, err := repo.FindByID(r.Context(), id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook event"))
			return
		}
		responses.WriteSuccess(w, toEventResponse(event))
	}
}

// ListActivityEvents returns the webhook audit trail for one activity,
// newest first.
func ListActivityEvents(repo inbound.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook event store unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := repo.ListByEntity(r.Context(), chi.URLParam(r, "code"), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]eventResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toEventResponse(&rows[i]))
		}
		responses.WriteSuccess(w, items)
	}
}
