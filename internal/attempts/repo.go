package attempts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an attempts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, attempt *models.SyncAttempt) (*models.SyncAttempt, error) {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.Status == "" {
		attempt.Status = enums.AttemptStarted
	}
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

// Close resolves a started attempt. The status guard in the WHERE clause
// makes the close idempotent-safe: a row can only leave started once.
func (r *repository) Close(ctx context.Context, id uuid.UUID, input CloseInput) error {
	now := time.Now().UTC()
	values := map[string]any{
		"status":       input.Status,
		"duration_ms":  input.DurationMs,
		"completed_at": now,
	}
	if input.HTTPStatus != nil {
		values["http_status"] = *input.HTTPStatus
	}
	if input.ResponseBody != nil {
		values["response_body"] = *input.ResponseBody
	}
	if input.ErrorMessage != nil {
		values["error_message"] = *input.ErrorMessage
	}
	if input.NextRetryAt != nil {
		values["next_retry_at"] = *input.NextRetryAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.SyncAttempt{}).
		Where("id = ? AND status = ?", id, enums.AttemptStarted).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "attempt already closed")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SyncAttempt, error) {
	var attempt models.SyncAttempt
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) ListByActivity(ctx context.Context, activityCode string, limit, offset int) ([]models.SyncAttempt, error) {
	var attempts []models.SyncAttempt
	err := r.db.WithContext(ctx).
		Where("activity_code = ?", activityCode).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) ListFailedSince(ctx context.Context, since time.Time, limit, offset int) ([]models.SyncAttempt, error) {
	var attempts []models.SyncAttempt
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at >= ?", []enums.AttemptStatus{enums.AttemptError, enums.AttemptTimeout}, since).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) Stats(ctx context.Context, since time.Time) (*Statistics, error) {
	type row struct {
		Status enums.AttemptStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.SyncAttempt{}).
		Select("status, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &Statistics{ByStatus: map[enums.AttemptStatus]int64{}}
	for _, r := range rows {
		stats.ByStatus[r.Status] = r.Total
		stats.Total += r.Total
	}

	var avg *float64
	err = r.db.WithContext(ctx).
		Model(&models.SyncAttempt{}).
		Select("AVG(duration_ms)").
		Where("created_at >= ? AND duration_ms IS NOT NULL", since).
		Scan(&avg).Error
	if err != nil {
		return nil, err
	}
	if avg != nil {
		stats.AvgDurationMs = *avg
	}
	return stats, nil
}
