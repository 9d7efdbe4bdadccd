package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/brightpath-io/activity-sync/api/responses"
	"github.com/brightpath-io/activity-sync/api/validators"
	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type activityResponse struct {
	ID               int64            `json:"id"`
	Code             string           `json:"code"`
	Name             string           `json:"name"`
	Description      *string          `json:"description,omitempty"`
	UnitValue        decimal.Decimal  `json:"unit_value"`
	Active           bool             `json:"active"`
	SyncStatus       enums.SyncStatus `json:"sync_status"`
	ExternalID       *string          `json:"external_id,omitempty"`
	LastSyncedAt     *time.Time       `json:"last_synced_at,omitempty"`
	SyncAttemptCount int              `json:"sync_attempt_count"`
	LastSyncError    *string          `json:"last_sync_error,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func toActivityResponse(a *models.Activity) activityResponse {
	return activityResponse{
		ID:               a.ID,
		Code:             a.Code,
		Name:             a.Name,
		Description:      a.Description,
		UnitValue:        a.UnitValue,
		Active:           a.Active,
		SyncStatus:       a.SyncStatus,
		ExternalID:       a.ExternalID,
		LastSyncedAt:     a.LastSyncedAt,
		SyncAttemptCount: a.SyncAttemptCount,
		LastSyncError:    a.LastSyncError,
		Version:          a.Version,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type createActivityRequest struct {
	Code        string  `json:"code" validate:"required,max=64"`
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description,omitempty"`
	UnitValue   string  `json:"unit_value" validate:"required"`
}

type updateActivityRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string `json:"description,omitempty"`
	UnitValue   *string `json:"unit_value,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// CreateActivity registers a new record and queues its first sync.
func CreateActivity(svc records.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "records service unavailable"))
			return
		}

		var payload createActivityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		unitValue, err := decimal.NewFromString(strings.TrimSpace(payload.UnitValue))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit value"))
			return
		}

		activity, err := svc.Create(r.Context(), records.CreateInput{
			Code:        strings.TrimSpace(payload.Code),
			Name:        strings.TrimSpace(payload.Name),
			Description: payload.Description,
			UnitValue:   unitValue,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toActivityResponse(activity))
	}
}

// UpdateActivity applies a local edit and resets the record to pending.
func UpdateActivity(svc records.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "records service unavailable"))
			return
		}

		code := chi.URLParam(r, "code")

		var payload updateActivityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := records.UpdateInput{
			Name:        payload.Name,
			Description: payload.Description,
			Active:      payload.Active,
		}
		if payload.UnitValue != nil {
			unitValue, err := decimal.NewFromString(strings.TrimSpace(*payload.UnitValue))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit value"))
				return
			}
			input.UnitValue = &unitValue
		}

		activity, err := svc.Update(r.Context(), code, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toActivityResponse(activity))
	}
}

// DeactivateActivity soft-disables a record and queues its remote removal.
func DeactivateActivity(svc records.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "records service unavailable"))
			return
		}

		activity, err := svc.Deactivate(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toActivityResponse(activity))
	}
}

func GetActivity(svc records.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "records service unavailable"))
			return
		}

		activity, err := svc.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toActivityResponse(activity))
	}
}

// ListActivities pages records filtered by sync status.
func ListActivities(svc records.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "records service unavailable"))
			return
		}

		status, err := enums.ParseSyncStatus(r.URL.Query().Get("status"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		activities, err := svc.ListByStatus(r.Context(), status, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]activityResponse, 0, len(activities))
		for i := range activities {
			items = append(items, toActivityResponse(&activities[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

// ActivityStats returns how many records sit in each sync status.
func ActivityStats(svc records.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "records service unavailable"))
			return
		}

		counts, err := svc.Statistics(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, counts)
	}
}
