package enums

import "fmt"

// NotificationKind classifies outbound email notices.
type NotificationKind string

const (
	NotificationSyncSuccess NotificationKind = "sync_success"
	NotificationSyncError   NotificationKind = "sync_error"
	NotificationReport      NotificationKind = "report"
)

var validNotificationKinds = []NotificationKind{
	NotificationSyncSuccess,
	NotificationSyncError,
	NotificationReport,
}

// IsValid reports whether the value matches a known notification kind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
