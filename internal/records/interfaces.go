package records

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
)

// StatusCounts aggregates how many activities sit in each lifecycle status.
type StatusCounts map[enums.SyncStatus]int64

// StatusUpdate carries the sync-engine-owned fields written alongside a
// status transition. Nil pointers leave the column untouched.
type StatusUpdate struct {
	Status           enums.SyncStatus
	ExternalID       *string
	LastSyncedAt     *bool
	SyncAttemptCount *int
	LastSyncError    *string
	ClearSyncError   bool
}

// Repository defines persistence operations for activities.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, activity *models.Activity) (*models.Activity, error)
	FindByCode(ctx context.Context, code string) (*models.Activity, error)
	SaveIf(ctx context.Context, activity *models.Activity, expectedVersion int64) error
	UpdateStatusIf(ctx context.Context, code string, expectedVersion int64, update StatusUpdate) (*models.Activity, error)
	ListByStatus(ctx context.Context, status enums.SyncStatus, limit, offset int) ([]models.Activity, error)
	ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, afterCode string, limit int) ([]models.Activity, error)
	CountByStatus(ctx context.Context) (StatusCounts, error)
}
