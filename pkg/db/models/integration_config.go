package models

import (
	"time"

	"github.com/brightpath-io/activity-sync/pkg/enums"
)

// IntegrationConfig holds the remote endpoint and retry policy for one
// integration target. Exactly one row carries is_default at a time; the
// store enforces that transactionally.
type IntegrationConfig struct {
	ID                    int64             `gorm:"column:id;primaryKey;autoIncrement"`
	Name                  string            `gorm:"column:name;not null"`
	BaseURL               string            `gorm:"column:base_url;not null"`
	Login                 string            `gorm:"column:login;not null"`
	Password              string            `gorm:"column:password;not null"`
	TimeoutSeconds        int               `gorm:"column:timeout_seconds;not null;default:30"`
	MaxAttempts           int               `gorm:"column:max_attempts;not null;default:5"`
	RetryPolicy           enums.RetryPolicy `gorm:"column:retry_policy;type:retry_policy;not null;default:'exponential'"`
	RetryBaseDelaySeconds int               `gorm:"column:retry_base_delay_seconds;not null;default:60"`
	CircuitBreakerEnabled bool              `gorm:"column:circuit_breaker_enabled;not null;default:false"`
	CircuitBreakerLimit   int               `gorm:"column:circuit_breaker_limit;not null;default:10"`
	IsDefault             bool              `gorm:"column:is_default;not null;default:false"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (IntegrationConfig) TableName() string { return "integration_configs" }

// Timeout returns the per-call timeout as a duration.
func (c IntegrationConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay computes the delay before the given attempt number retries.
func (c IntegrationConfig) RetryDelay(attemptNumber int) time.Duration {
	base := time.Duration(c.RetryBaseDelaySeconds) * time.Second
	if base <= 0 {
		base = time.Minute
	}
	if c.RetryPolicy != enums.RetryPolicyExponential || attemptNumber <= 1 {
		return base
	}
	delay := base
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
	}
	return delay
}
