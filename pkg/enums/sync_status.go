package enums

import "fmt"

// SyncStatus maps to the sync_status enum in Postgres. The numeric rank
// mirrors the order records move through the lifecycle and is what the
// legacy export format used.
type SyncStatus string

const (
	SyncStatusPending      SyncStatus = "pending"
	SyncStatusSynced       SyncStatus = "synced"
	SyncStatusError        SyncStatus = "error"
	SyncStatusReprocessing SyncStatus = "reprocessing"
	SyncStatusCancelled    SyncStatus = "cancelled"
)

var validSyncStatuses = []SyncStatus{
	SyncStatusPending,
	SyncStatusSynced,
	SyncStatusError,
	SyncStatusReprocessing,
	SyncStatusCancelled,
}

var syncStatusRanks = map[SyncStatus]int{
	SyncStatusPending:      0,
	SyncStatusSynced:       1,
	SyncStatusError:        2,
	SyncStatusReprocessing: 3,
	SyncStatusCancelled:    4,
}

// IsValid reports whether the value matches the canonical sync_status enum.
func (s SyncStatus) IsValid() bool {
	for _, candidate := range validSyncStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Rank returns the numeric code the status is exported as.
func (s SyncStatus) Rank() int {
	if rank, ok := syncStatusRanks[s]; ok {
		return rank
	}
	return -1
}

// IsTerminal reports whether the status is terminal for the sync engine.
// Synced is terminal until the payload changes; Cancelled is final.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSynced || s == SyncStatusCancelled
}

// ParseSyncStatus converts raw input into SyncStatus.
func ParseSyncStatus(value string) (SyncStatus, error) {
	for _, candidate := range validSyncStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync status %q", value)
}
