package records

import (
	"context"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an activities repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return nil, err
	}
	return activity, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Activity, error) {
	var activity models.Activity
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// SaveIf persists an edited activity guarded by the version column. The
// caller reads the row, mutates it including the version bump, and passes
// the version it read; the write lands only if nothing else committed in
// between. A lost race surfaces as CONFLICT so the caller can re-read.
func (r *repository) SaveIf(ctx context.Context, activity *models.Activity, expectedVersion int64) error {
	values := map[string]any{
		"name":               activity.Name,
		"description":        activity.Description,
		"unit_value":         activity.UnitValue,
		"active":             activity.Active,
		"sync_status":        activity.SyncStatus,
		"external_id":        activity.ExternalID,
		"last_synced_at":     activity.LastSyncedAt,
		"sync_attempt_count": activity.SyncAttemptCount,
		"last_sync_error":    activity.LastSyncError,
		"version":            activity.Version,
		"updated_at":         time.Now().UTC(),
	}

	result := r.db.WithContext(ctx).
		Model(&models.Activity{}).
		Where("code = ? AND version = ?", activity.Code, expectedVersion).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByCode(ctx, activity.Code); err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "activity modified concurrently")
	}
	return nil
}

// UpdateStatusIf applies a status transition guarded by the version column.
// The write succeeds only when the stored version still equals
// expectedVersion; the version is bumped in the same statement. A stale
// expectation surfaces as CONFLICT so callers can re-read and retry.
func (r *repository) UpdateStatusIf(ctx context.Context, code string, expectedVersion int64, update StatusUpdate) (*models.Activity, error) {
	values := map[string]any{
		"sync_status": update.Status,
		"version":     gorm.Expr("version + 1"),
		"updated_at":  time.Now().UTC(),
	}
	if update.ExternalID != nil {
		values["external_id"] = *update.ExternalID
	}
	if update.LastSyncedAt != nil && *update.LastSyncedAt {
		values["last_synced_at"] = time.Now().UTC()
	}
	if update.SyncAttemptCount != nil {
		values["sync_attempt_count"] = *update.SyncAttemptCount
	}
	if update.ClearSyncError {
		values["last_sync_error"] = nil
	} else if update.LastSyncError != nil {
		values["last_sync_error"] = *update.LastSyncError
	}

	result := r.db.WithContext(ctx).
		Model(&models.Activity{}).
		Where("code = ? AND version = ?", code, expectedVersion).
		Updates(values)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByCode(ctx, code); err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "activity modified concurrently")
	}
	return r.FindByCode(ctx, code)
}

func (r *repository) ListByStatus(ctx context.Context, status enums.SyncStatus, limit, offset int) ([]models.Activity, error) {
	var activities []models.Activity
	err := r.db.WithContext(ctx).
		Where("sync_status = ?", status).
		Order("updated_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// ListRetryable pages the records a sweep may re-drive: error records with
// attempts left, plus pending or reprocessing records untouched since
// staleBefore. A dropped deferred job, a restart that lost the in-memory
// queue, or a crash mid-attempt leaves records stranded in those states.
// Pages are keyed on code so the walk stays stable while retries move rows
// in and out of the set; records at or past maxAttempts stay in error until
// forced manually.
func (r *repository) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, afterCode string, limit int) ([]models.Activity, error) {
	var activities []models.Activity
	err := r.db.WithContext(ctx).
		Where("code > ?", afterCode).
		Where("(sync_status = ? AND sync_attempt_count < ?) OR (sync_status IN ? AND updated_at < ?)",
			enums.SyncStatusError, maxAttempts,
			[]enums.SyncStatus{enums.SyncStatusPending, enums.SyncStatusReprocessing}, staleBefore).
		Order("code ASC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *repository) CountByStatus(ctx context.Context) (StatusCounts, error) {
	type row struct {
		SyncStatus enums.SyncStatus
		Total      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Activity{}).
		Select("sync_status, COUNT(*) AS total").
		Group("sync_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := StatusCounts{}
	for _, r := range rows {
		counts[r.SyncStatus] = r.Total
	}
	return counts, nil
}
