package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/pkg/enums"
)

// WebhookEvent is the audit row for one inbound confirmation. It is written
// unconditionally on receipt, before any dispatch, so replays and failed
// processing still leave a trail.
type WebhookEvent struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Source          string                 `gorm:"column:source;not null"`
	EventType       enums.WebhookEventType `gorm:"column:event_type;not null"`
	EntityID        string                 `gorm:"column:entity_id;index"`
	ExternalID      *string                `gorm:"column:external_id"`
	Payload         json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	CorrelationID   string                 `gorm:"column:correlation_id;index"`
	ReceivedAt      time.Time              `gorm:"column:received_at;autoCreateTime"`
	ProcessedAt     *time.Time             `gorm:"column:processed_at"`
	ProcessingError *string                `gorm:"column:processing_error"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
