package enums

import "testing"

func TestParseSyncStatus(t *testing.T) {
	for _, value := range []string{"pending", "synced", "error", "reprocessing", "cancelled"} {
		status, err := ParseSyncStatus(value)
		if err != nil {
			t.Fatalf("ParseSyncStatus(%q): %v", value, err)
		}
		if !status.IsValid() {
			t.Fatalf("parsed status %q should be valid", value)
		}
	}

	if _, err := ParseSyncStatus("bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := ParseSyncStatus("Pending"); err == nil {
		t.Fatal("parse is case sensitive, matching the database enum")
	}
}

func TestSyncStatusRank(t *testing.T) {
	ranks := map[SyncStatus]int{
		SyncStatusPending:      0,
		SyncStatusSynced:       1,
		SyncStatusError:        2,
		SyncStatusReprocessing: 3,
		SyncStatusCancelled:    4,
	}
	for status, want := range ranks {
		if got := status.Rank(); got != want {
			t.Fatalf("rank of %s: expected %d got %d", status, want, got)
		}
	}
	if got := SyncStatus("bogus").Rank(); got != -1 {
		t.Fatalf("unknown status rank should be -1, got %d", got)
	}
}

func TestSyncStatusIsTerminal(t *testing.T) {
	if !SyncStatusSynced.IsTerminal() || !SyncStatusCancelled.IsTerminal() {
		t.Fatal("synced and cancelled are terminal")
	}
	if SyncStatusPending.IsTerminal() || SyncStatusError.IsTerminal() || SyncStatusReprocessing.IsTerminal() {
		t.Fatal("pending, error and reprocessing are not terminal")
	}
}

func TestAttemptStatusIsOpen(t *testing.T) {
	if !AttemptStarted.IsOpen() {
		t.Fatal("started attempts are open")
	}
	for _, status := range []AttemptStatus{AttemptSuccess, AttemptError, AttemptTimeout, AttemptCancelled} {
		if status.IsOpen() {
			t.Fatalf("%s attempts are closed", status)
		}
	}
}

func TestParseSyncOperation(t *testing.T) {
	op, err := ParseSyncOperation("delete")
	if err != nil {
		t.Fatalf("ParseSyncOperation: %v", err)
	}
	if op != OperationDelete {
		t.Fatalf("expected delete, got %s", op)
	}
	if _, err := ParseSyncOperation("upsert"); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}
