package enums

import "fmt"

// SyncOperation maps to the sync_operation enum in Postgres.
type SyncOperation string

const (
	OperationCreate SyncOperation = "create"
	OperationUpdate SyncOperation = "update"
	OperationDelete SyncOperation = "delete"
)

var validSyncOperations = []SyncOperation{
	OperationCreate,
	OperationUpdate,
	OperationDelete,
}

// IsValid reports whether the value matches the canonical sync_operation enum.
func (o SyncOperation) IsValid() bool {
	for _, candidate := range validSyncOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseSyncOperation converts raw input into SyncOperation.
func ParseSyncOperation(value string) (SyncOperation, error) {
	for _, candidate := range validSyncOperations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync operation %q", value)
}
