package attempts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
)

// CloseInput carries the fields written when an attempt resolves. The row is
// closed exactly once; a second close is rejected.
type CloseInput struct {
	Status       enums.AttemptStatus
	HTTPStatus   *int
	DurationMs   int64
	ResponseBody *string
	ErrorMessage *string
	NextRetryAt  *time.Time
}

// Statistics summarizes the attempt trail for reporting.
type Statistics struct {
	Total         int64                         `json:"total"`
	ByStatus      map[enums.AttemptStatus]int64 `json:"by_status"`
	AvgDurationMs float64                       `json:"avg_duration_ms"`
}

// Repository defines persistence operations for the attempt trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, attempt *models.SyncAttempt) (*models.SyncAttempt, error)
	Close(ctx context.Context, id uuid.UUID, input CloseInput) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SyncAttempt, error)
	ListByActivity(ctx context.Context, activityCode string, limit, offset int) ([]models.SyncAttempt, error)
	ListFailedSince(ctx context.Context, since time.Time, limit, offset int) ([]models.SyncAttempt, error)
	Stats(ctx context.Context, since time.Time) (*Statistics, error)
}
