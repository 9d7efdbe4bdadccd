package enums

// WebhookEventType identifies the inbound confirmation kinds the remote
// system delivers. Unknown types are logged and dropped, so there is no
// Parse helper that fails; callers switch on the known constants.
type WebhookEventType string

const (
	WebhookIntegrationSuccess WebhookEventType = "integration_success"
	WebhookIntegrationError   WebhookEventType = "integration_error"
	WebhookDataUpdated        WebhookEventType = "data_updated"
)

// IsKnown reports whether the ingestor dispatches on this event type.
func (w WebhookEventType) IsKnown() bool {
	switch w {
	case WebhookIntegrationSuccess, WebhookIntegrationError, WebhookDataUpdated:
		return true
	}
	return false
}
