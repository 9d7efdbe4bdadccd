package enums

import "fmt"

// AttemptStatus maps to the attempt_status enum in Postgres. An attempt opens
// as Started and is closed exactly once into one of the completion statuses.
type AttemptStatus string

const (
	AttemptStarted      AttemptStatus = "started"
	AttemptSuccess      AttemptStatus = "success"
	AttemptError        AttemptStatus = "error"
	AttemptTimeout      AttemptStatus = "timeout"
	AttemptCancelled    AttemptStatus = "cancelled"
	AttemptReprocessing AttemptStatus = "reprocessing"
)

var validAttemptStatuses = []AttemptStatus{
	AttemptStarted,
	AttemptSuccess,
	AttemptError,
	AttemptTimeout,
	AttemptCancelled,
	AttemptReprocessing,
}

// IsValid reports whether the value matches the canonical attempt_status enum.
func (a AttemptStatus) IsValid() bool {
	for _, candidate := range validAttemptStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsOpen reports whether the attempt still awaits its closing update.
func (a AttemptStatus) IsOpen() bool {
	return a == AttemptStarted
}

// ParseAttemptStatus converts raw input into AttemptStatus.
func ParseAttemptStatus(value string) (AttemptStatus, error) {
	for _, candidate := range validAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attempt status %q", value)
}
