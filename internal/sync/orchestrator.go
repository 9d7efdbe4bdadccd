package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/internal/attempts"
	"github.com/brightpath-io/activity-sync/internal/notifications"
	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/internal/remote"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	"github.com/brightpath-io/activity-sync/pkg/logger"
	"github.com/brightpath-io/activity-sync/pkg/metrics"
)

// remoteClient is the outward surface the orchestrator calls. The real
// implementation lives in internal/remote.
type remoteClient interface {
	Create(ctx context.Context, cfg *models.IntegrationConfig, item remote.SubmitItem, correlationID string) (*remote.Result, error)
	Update(ctx context.Context, cfg *models.IntegrationConfig, item remote.SubmitItem, correlationID string) (*remote.Result, error)
	Delete(ctx context.Context, cfg *models.IntegrationConfig, item remote.SubmitItem, correlationID string) (*remote.Result, error)
}

type configSource interface {
	GetDefault(ctx context.Context) (*models.IntegrationConfig, error)
}

type dispatcher interface {
	EnqueueEmail(ctx context.Context, message notifications.Message, correlationID string)
}

// Result is what one synchronization run reports back to its caller.
type Result struct {
	Success    bool             `json:"success"`
	Code       string           `json:"code"`
	Status     enums.SyncStatus `json:"status"`
	ExternalID string           `json:"external_id,omitempty"`
	Message    string           `json:"message,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// BatchResult tallies a batch run.
type BatchResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// OrchestratorParams collects the dependencies for the orchestrator.
type OrchestratorParams struct {
	Records        records.Repository
	Attempts       attempts.Repository
	Configs        configSource
	Remote         remoteClient
	Dispatcher     dispatcher
	Metrics        *metrics.SyncMetrics
	Logger         *logger.Logger
	BatchItemDelay time.Duration
}

// Orchestrator owns every sync-status transition. The push path (API,
// scheduler sweep) and the webhook confirmation path both funnel through it
// so the state machine has a single writer.
type Orchestrator struct {
	records        records.Repository
	attempts       attempts.Repository
	configs        configSource
	remote         remoteClient
	dispatcher     dispatcher
	metrics        *metrics.SyncMetrics
	logger         *logger.Logger
	batchItemDelay time.Duration
	sleep          func(ctx context.Context, d time.Duration)
}

// NewOrchestrator builds the orchestrator, validating required dependencies.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Records == nil {
		return nil, fmt.Errorf("records repository required")
	}
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempts repository required")
	}
	if params.Configs == nil {
		return nil, fmt.Errorf("config source required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BatchItemDelay <= 0 {
		params.BatchItemDelay = 250 * time.Millisecond
	}
	return &Orchestrator{
		records:        params.Records,
		attempts:       params.Attempts,
		configs:        params.Configs,
		remote:         params.Remote,
		dispatcher:     params.Dispatcher,
		metrics:        params.Metrics,
		logger:         params.Logger,
		batchItemDelay: params.BatchItemDelay,
		sleep:          sleepCtx,
	}, nil
}

// Synchronize pushes one record to the remote system and transitions its
// status. Every failure path still closes the attempt row and writes a
// status transition before returning; the returned error is advisory for
// synchronous callers.
func (o *Orchestrator) Synchronize(ctx context.Context, code, correlationID string, isNewHint bool) (Result, error) {
	ctx = o.logger.WithCorrelationID(o.logger.WithActivityCode(ctx, code), correlationID)
	started := time.Now()

	activity, err := o.records.FindByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return o.fail(code, started, pkgerrors.New(pkgerrors.CodeNotFound, "activity not found"))
		}
		return o.fail(code, started, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activity"))
	}
	if activity.SyncStatus == enums.SyncStatusCancelled && activity.Active {
		return o.fail(code, started, pkgerrors.New(pkgerrors.CodeStateConflict, "activity is cancelled"))
	}

	cfg, err := o.configs.GetDefault(ctx)
	if err != nil {
		return o.fail(code, started, err)
	}

	// The operation kind is decided once here and never re-derived
	// mid-flight, even if the record changes under us.
	operation := decideOperation(activity, isNewHint)

	// An error record re-enters the machine through Reprocessing so
	// observers can tell a retry in flight from a settled failure.
	expectedVersion := activity.Version
	if activity.SyncStatus == enums.SyncStatusError {
		activity, err = o.records.UpdateStatusIf(ctx, code, expectedVersion, records.StatusUpdate{
			Status: enums.SyncStatusReprocessing,
		})
		if err != nil {
			return o.fail(code, started, err)
		}
		expectedVersion = activity.Version
	}

	// The started row is written before the outward call so a crash
	// mid-call leaves a recoverable trail instead of a lost operation.
	attemptNumber := activity.SyncAttemptCount + 1
	attempt, err := o.attempts.Create(ctx, &models.SyncAttempt{
		ActivityCode:        code,
		Operation:           operation,
		AttemptNumber:       attemptNumber,
		CorrelationID:       correlationID,
		IntegrationConfigID: cfg.ID,
	})
	if err != nil {
		return o.fail(code, started, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open attempt"))
	}
	ctx = o.logger.WithAttemptID(ctx, attempt.ID.String())
	o.logger.Info(ctx, fmt.Sprintf("sync attempt %d started (%s)", attemptNumber, operation))

	item := buildSubmitItem(activity)
	remoteResult, callErr := o.call(ctx, cfg, operation, item, correlationID)
	duration := time.Since(started)

	if callErr != nil {
		return o.settleFailure(ctx, activity, cfg, attempt, operation, remoteResult, callErr, expectedVersion, attemptNumber, duration)
	}
	return o.settleSuccess(ctx, activity, attempt, operation, remoteResult, expectedVersion, duration)
}

// SynchronizeBatch runs Synchronize per key, isolating failures so one bad
// record cannot abort the rest, and pausing between items to avoid bursting
// the remote system.
func (o *Orchestrator) SynchronizeBatch(ctx context.Context, codes []string, correlationID string) (BatchResult, error) {
	var batch BatchResult
	var errs error

	for i, code := range codes {
		if i > 0 {
			o.sleep(ctx, o.batchItemDelay)
		}
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		result, err := o.Synchronize(ctx, code, correlationID, false)
		batch.Results = append(batch.Results, result)
		if err != nil {
			batch.Failed++
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", code, err))
			continue
		}
		batch.Succeeded++
	}
	return batch, errs
}

// ApplyRemoteConfirmation is the webhook re-entry point into the state
// machine. Replays are no-ops: a record already in the confirmed state is
// left untouched, a cancelled record never leaves its terminal state, and
// a success confirmation never regresses to error.
func (o *Orchestrator) ApplyRemoteConfirmation(ctx context.Context, code string, succeeded bool, externalID, detail, correlationID string) error {
	ctx = o.logger.WithCorrelationID(o.logger.WithActivityCode(ctx, code), correlationID)

	activity, err := o.records.FindByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activity")
	}

	if succeeded {
		switch activity.SyncStatus {
		case enums.SyncStatusSynced:
			return nil
		case enums.SyncStatusCancelled:
			// The late acknowledgement of the delete that settled this
			// record. Cancelled is terminal and must not be resurrected.
			o.logger.Info(ctx, "success confirmation on cancelled record ignored")
			return nil
		}
		synced := true
		zero := 0
		update := records.StatusUpdate{
			Status:           enums.SyncStatusSynced,
			LastSyncedAt:     &synced,
			SyncAttemptCount: &zero,
			ClearSyncError:   true,
		}
		if externalID != "" {
			update.ExternalID = &externalID
		}
		if _, err := o.records.UpdateStatusIf(ctx, code, activity.Version, update); err != nil {
			return err
		}
		o.notify(ctx, enums.NotificationSyncSuccess, activity, "confirmed by remote system", correlationID)
		o.logger.Info(ctx, "remote confirmation applied, record synced")
		return nil
	}

	switch activity.SyncStatus {
	case enums.SyncStatusError:
		return nil
	case enums.SyncStatusSynced, enums.SyncStatusCancelled:
		// A settled record does not regress on a late error event.
		return pkgerrors.New(pkgerrors.CodeStateConflict, "record already settled")
	}
	if detail == "" {
		detail = "remote reported an integration error"
	}
	if _, err := o.records.UpdateStatusIf(ctx, code, activity.Version, records.StatusUpdate{
		Status:        enums.SyncStatusError,
		LastSyncError: &detail,
	}); err != nil {
		return err
	}
	o.notify(ctx, enums.NotificationSyncError, activity, detail, correlationID)
	o.logger.Warn(ctx, "remote error confirmation applied")
	return nil
}

func (o *Orchestrator) call(ctx context.Context, cfg *models.IntegrationConfig, operation enums.SyncOperation, item remote.SubmitItem, correlationID string) (*remote.Result, error) {
	switch operation {
	case enums.OperationCreate:
		return o.remote.Create(ctx, cfg, item, correlationID)
	case enums.OperationDelete:
		return o.remote.Delete(ctx, cfg, item, correlationID)
	default:
		return o.remote.Update(ctx, cfg, item, correlationID)
	}
}

func (o *Orchestrator) settleSuccess(ctx context.Context, activity *models.Activity, attempt *models.SyncAttempt, operation enums.SyncOperation, remoteResult *remote.Result, expectedVersion int64, duration time.Duration) (Result, error) {
	o.closeAttempt(ctx, attempt, attempts.CloseInput{
		Status:       enums.AttemptSuccess,
		HTTPStatus:   httpStatusOf(remoteResult),
		DurationMs:   duration.Milliseconds(),
		ResponseBody: bodyOf(remoteResult),
	})

	target := enums.SyncStatusSynced
	if operation == enums.OperationDelete {
		target = enums.SyncStatusCancelled
	}
	synced := true
	zero := 0
	update := records.StatusUpdate{
		Status:           target,
		LastSyncedAt:     &synced,
		SyncAttemptCount: &zero,
		ClearSyncError:   true,
	}
	if remoteResult != nil && remoteResult.ExternalID != "" {
		update.ExternalID = &remoteResult.ExternalID
	}

	updated, err := o.records.UpdateStatusIf(ctx, activity.Code, expectedVersion, update)
	if err != nil {
		// A concurrent writer won the version race. The remote call
		// succeeded, so the attempt row stands; the next sweep reconciles.
		o.observe(operation, enums.AttemptSuccess, duration)
		o.logger.Warn(ctx, "success transition lost version race, leaving record for reconciliation")
		return Result{Code: activity.Code, Status: activity.SyncStatus, DurationMs: duration.Milliseconds(), Message: "version conflict"}, err
	}

	o.observe(operation, enums.AttemptSuccess, duration)
	o.logger.Info(ctx, "sync attempt succeeded")
	return Result{
		Success:    true,
		Code:       updated.Code,
		Status:     updated.SyncStatus,
		ExternalID: stringOrEmpty(updated.ExternalID),
		DurationMs: duration.Milliseconds(),
	}, nil
}

func (o *Orchestrator) settleFailure(ctx context.Context, activity *models.Activity, cfg *models.IntegrationConfig, attempt *models.SyncAttempt, operation enums.SyncOperation, remoteResult *remote.Result, callErr error, expectedVersion int64, attemptNumber int, duration time.Duration) (Result, error) {
	message := callErr.Error()
	attemptStatus := enums.AttemptError
	if typed := pkgerrors.As(callErr); typed != nil && typed.Code() == pkgerrors.CodeTimeout {
		attemptStatus = enums.AttemptTimeout
	}

	// Authentication failures are an environment problem, not a record
	// problem; the sweep retries them without burning the record's budget.
	authFailure := false
	if typed := pkgerrors.As(callErr); typed != nil && typed.Code() == pkgerrors.CodeUnauthorized {
		authFailure = true
	}

	nextRetry := time.Now().UTC().Add(cfg.RetryDelay(attemptNumber))
	o.closeAttempt(ctx, attempt, attempts.CloseInput{
		Status:       attemptStatus,
		HTTPStatus:   httpStatusOf(remoteResult),
		DurationMs:   duration.Milliseconds(),
		ResponseBody: bodyOf(remoteResult),
		ErrorMessage: &message,
		NextRetryAt:  &nextRetry,
	})

	update := records.StatusUpdate{
		Status:        enums.SyncStatusError,
		LastSyncError: &message,
	}
	newCount := activity.SyncAttemptCount
	if !authFailure {
		newCount = attemptNumber
		update.SyncAttemptCount = &newCount
	}

	if _, err := o.records.UpdateStatusIf(ctx, activity.Code, expectedVersion, update); err != nil {
		o.observe(operation, attemptStatus, duration)
		o.logger.Warn(ctx, "failure transition lost version race, leaving record for reconciliation")
		return Result{Code: activity.Code, Status: activity.SyncStatus, DurationMs: duration.Milliseconds(), Message: message}, callErr
	}

	if !authFailure && newCount >= cfg.MaxAttempts {
		o.notify(ctx, enums.NotificationSyncError, activity,
			fmt.Sprintf("record failed %d times and needs manual intervention: %s", newCount, message),
			attempt.CorrelationID)
	}

	o.observe(operation, attemptStatus, duration)
	o.logger.Error(ctx, "sync attempt failed", callErr)
	return Result{
		Code:       activity.Code,
		Status:     enums.SyncStatusError,
		Message:    message,
		DurationMs: duration.Milliseconds(),
	}, callErr
}

// closeAttempt must not fail the run: the outward call already happened and
// the record transition still has to be written.
func (o *Orchestrator) closeAttempt(ctx context.Context, attempt *models.SyncAttempt, input attempts.CloseInput) {
	if err := o.attempts.Close(ctx, attempt.ID, input); err != nil {
		o.logger.Error(ctx, "closing sync attempt", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, kind enums.NotificationKind, activity *models.Activity, detail, correlationID string) {
	if o.dispatcher == nil {
		return
	}
	o.dispatcher.EnqueueEmail(ctx, notifications.Message{
		Kind:         kind,
		ActivityCode: activity.Code,
		ActivityName: activity.Name,
		Detail:       detail,
	}, correlationID)
}

func (o *Orchestrator) observe(operation enums.SyncOperation, status enums.AttemptStatus, duration time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveAttempt(string(operation), string(status), duration)
}

func (o *Orchestrator) fail(code string, started time.Time, err error) (Result, error) {
	return Result{
		Code:       code,
		Message:    err.Error(),
		DurationMs: time.Since(started).Milliseconds(),
	}, err
}

func decideOperation(activity *models.Activity, isNewHint bool) enums.SyncOperation {
	if !activity.Active {
		return enums.OperationDelete
	}
	if isNewHint || (activity.SyncStatus == enums.SyncStatusPending && activity.ExternalID == nil) {
		return enums.OperationCreate
	}
	return enums.OperationUpdate
}

func buildSubmitItem(activity *models.Activity) remote.SubmitItem {
	item := remote.SubmitItem{
		NaturalKey: activity.Code,
		Name:       activity.Name,
		UnitValue:  activity.UnitValue,
		Active:     activity.Active,
	}
	if activity.Description != nil {
		item.Description = *activity.Description
	}
	item.IdempotencyHash = item.Fingerprint()
	return item
}

func httpStatusOf(result *remote.Result) *int {
	if result == nil || result.HTTPStatus == 0 {
		return nil
	}
	return &result.HTTPStatus
}

func bodyOf(result *remote.Result) *string {
	if result == nil || result.Body == "" {
		return nil
	}
	body := result.Body
	if len(body) > 4096 {
		body = body[:4096]
	}
	return &body
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
