package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/api/responses"
	"github.com/brightpath-io/activity-sync/api/validators"
	"github.com/brightpath-io/activity-sync/internal/sync"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

// Synchronizer runs record synchronization inline for the force endpoints.
type Synchronizer interface {
	Synchronize(ctx context.Context, code, correlationID string, isNewHint bool) (sync.Result, error)
	SynchronizeBatch(ctx context.Context, codes []string, correlationID string) (sync.BatchResult, error)
}

// SyncScheduler exposes the queued-job surface the API needs.
type SyncScheduler interface {
	ScheduleForce(ctx context.Context, code string) (uuid.UUID, bool)
	Cancel(jobID uuid.UUID) bool
}

type batchSyncRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,max=100,dive,required"`
}

// ForceSync runs an immediate synchronization for one record and returns
// the outcome inline. Failures still return the structured result so the
// caller can see what the attempt recorded.
func ForceSync(orch Synchronizer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orch == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync orchestrator unavailable"))
			return
		}

		code := chi.URLParam(r, "code")
		correlationID := logger.CorrelationIDFrom(r.Context())

		result, err := orch.Synchronize(r.Context(), code, correlationID, false)
		if err != nil {
			typed := pkgerrors.As(err)
			if typed != nil && (typed.Code() == pkgerrors.CodeNotFound || typed.Code() == pkgerrors.CodeStateConflict) {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusOK, result)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// BatchSync synchronizes a list of records sequentially and reports the
// per-record outcomes.
func BatchSync(orch Synchronizer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orch == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync orchestrator unavailable"))
			return
		}

		var payload batchSyncRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		correlationID := logger.CorrelationIDFrom(r.Context())

		result, err := orch.SynchronizeBatch(r.Context(), payload.Codes, correlationID)
		if err != nil && result.Succeeded == 0 && result.Failed == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// QueueSync enqueues an operator-requested synchronization and returns the
// job id for later cancellation. Used to push records that exhausted their
// automatic retries back through the engine.
func QueueSync(scheduler SyncScheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync scheduler unavailable"))
			return
		}

		code := chi.URLParam(r, "code")
		jobID, ok := scheduler.ScheduleForce(r.Context(), code)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "sync queue full, try again later"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"job_id": jobID.String(), "state": "queued"})
	}
}

// CancelSyncJob withdraws a queued deferred job. A job that already ran or
// was never queued reports NOT_FOUND.
func CancelSyncJob(scheduler SyncScheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync scheduler unavailable"))
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id"))
			return
		}

		if !scheduler.Cancel(jobID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "job not found or already started"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"job_id": jobID.String(), "state": "cancelled"})
	}
}
