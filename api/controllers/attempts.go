package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightpath-io/activity-sync/api/responses"
	"github.com/brightpath-io/activity-sync/api/validators"
	"github.com/brightpath-io/activity-sync/internal/attempts"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type attemptResponse struct {
	ID            string              `json:"id"`
	ActivityCode  string              `json:"activity_code"`
	AttemptNumber int                 `json:"attempt_number"`
	Operation     enums.SyncOperation `json:"operation"`
	Status        enums.AttemptStatus `json:"status"`
	HTTPStatus    *int                `json:"http_status,omitempty"`
	Endpoint      string              `json:"endpoint,omitempty"`
	DurationMs    *int64              `json:"duration_ms,omitempty"`
	ErrorMessage  *string             `json:"error_message,omitempty"`
	NextRetryAt   *time.Time          `json:"next_retry_at,omitempty"`
	CorrelationID string              `json:"correlation_id"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

func toAttemptResponse(a *models.SyncAttempt) attemptResponse {
	return attemptResponse{
		ID:            a.ID.String(),
		ActivityCode:  a.ActivityCode,
		AttemptNumber: a.AttemptNumber,
		Operation:     a.Operation,
		Status:        a.Status,
		HTTPStatus:    a.HTTPStatus,
		Endpoint:      a.Endpoint,
		DurationMs:    a.DurationMs,
		ErrorMessage:  a.ErrorMessage,
		NextRetryAt:   a.NextRetryAt,
		CorrelationID: a.CorrelationID,
		StartedAt:     a.CreatedAt,
		CompletedAt:   a.CompletedAt,
	}
}

// ListActivityAttempts pages the attempt trail for one record, newest first.
func ListActivityAttempts(repo attempts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "attempts repository unavailable"))
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

		rows, err := repo.ListByActivity(r.Context(), chi.URLParam(r, "code"), limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]attemptResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toAttemptResponse(&rows[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

// GetAttempt returns one attempt row with its full diagnostics.
func GetAttempt(repo attempts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "attempts repository unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "attemptID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "attempt id must be a uuid"))
			return
		}

		attempt, err := repo.FindByID(r.Context(), id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "attempt not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attempt"))
			return
		}
		responses.WriteSuccess(w, toAttemptResponse(attempt))
	}
}

// ListFailedAttempts pages failed attempts over a trailing window, newest
// first, for triage dashboards.
func ListFailedAttempts(repo attempts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "attempts repository unavailable"))
			return
		}

		hours, err := validators.ParseQueryInt(r, "hours", 24, 1, 24*30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
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

		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		rows, err := repo.ListFailedSince(r.Context(), since, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]attemptResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toAttemptResponse(&rows[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

// AttemptStats aggregates attempt outcomes over a trailing window.
func AttemptStats(repo attempts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "attempts repository unavailable"))
			return
		}

		hours, err := validators.ParseQueryInt(r, "hours", 24, 1, 24*30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := repo.Stats(r.Context(), time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stats)
	}
}
