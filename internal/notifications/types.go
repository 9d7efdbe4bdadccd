package notifications

import (
	"time"

	"github.com/brightpath-io/activity-sync/pkg/enums"
)

// Message is one outbound email notice about a sync outcome.
type Message struct {
	Kind         enums.NotificationKind `json:"kind"`
	ActivityCode string                 `json:"activity_code"`
	ActivityName string                 `json:"activity_name"`
	Detail       string                 `json:"detail"`
	Recipient    string                 `json:"recipient,omitempty"`
}

// Envelope is the broker payload wrapping a Message with its tracing fields.
type Envelope struct {
	MessageID     string    `json:"message_id"`
	CorrelationID string    `json:"correlation_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Message       Message   `json:"message"`
}
