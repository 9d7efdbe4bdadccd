package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/pkg/enums"
)

// SyncAttempt is the durable trail of one synchronization try. A row is
// opened (started) before the outward call and closed exactly once when the
// call resolves; no other component mutates it.
type SyncAttempt struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ActivityCode        string              `gorm:"column:activity_code;index;not null"`
	Operation           enums.SyncOperation `gorm:"column:operation;type:sync_operation;not null"`
	Status              enums.AttemptStatus `gorm:"column:status;type:attempt_status;not null;default:'started'"`
	HTTPStatus          *int                `gorm:"column:http_status"`
	Endpoint            string              `gorm:"column:endpoint"`
	DurationMs          *int64              `gorm:"column:duration_ms"`
	ResponseBody        *string             `gorm:"column:response_body"`
	ErrorMessage        *string             `gorm:"column:error_message"`
	AttemptNumber       int                 `gorm:"column:attempt_number;not null;default:1"`
	NextRetryAt         *time.Time          `gorm:"column:next_retry_at"`
	CorrelationID       string              `gorm:"column:correlation_id;index;not null"`
	IntegrationConfigID int64               `gorm:"column:integration_config_id;not null"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	CompletedAt         *time.Time          `gorm:"column:completed_at"`
}

func (SyncAttempt) TableName() string { return "sync_attempts" }
