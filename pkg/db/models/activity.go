package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightpath-io/activity-sync/pkg/enums"
)

// Activity is a locally-owned business record mirrored to the remote system
// of record. Code is the stable natural key the remote side dedupes on.
// Status/attempt fields are written only by the sync engine; payload fields
// are written by local business edits, which reset the record to pending.
type Activity struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Code        string          `gorm:"column:code;uniqueIndex;not null"`
	Name        string          `gorm:"column:name;not null"`
	Description *string         `gorm:"column:description"`
	UnitValue   decimal.Decimal `gorm:"column:unit_value;type:numeric(12,2);not null"`
	Active      bool            `gorm:"column:active;not null;default:true"`

	SyncStatus       enums.SyncStatus `gorm:"column:sync_status;type:sync_status;not null;default:'pending'"`
	ExternalID       *string          `gorm:"column:external_id"`
	LastSyncedAt     *time.Time       `gorm:"column:last_synced_at"`
	SyncAttemptCount int              `gorm:"column:sync_attempt_count;not null;default:0"`
	LastSyncError    *string          `gorm:"column:last_sync_error"`

	// Version is the optimistic-concurrency token; every status-mutating
	// write goes through a compare-and-swap on this column.
	Version int64 `gorm:"column:version;not null;default:1"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Activity) TableName() string { return "activities" }
