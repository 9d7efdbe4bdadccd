package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brightpath-io/activity-sync/pkg/enums"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type recordedRun struct {
	code          string
	correlationID string
	isNew         bool
}

type fakeSynchronizer struct {
	mu   sync.Mutex
	runs []recordedRun
	done chan struct{}
}

func newFakeSynchronizer(expected int) *fakeSynchronizer {
	return &fakeSynchronizer{done: make(chan struct{}, expected)}
}

func (f *fakeSynchronizer) Synchronize(ctx context.Context, code, correlationID string, isNewHint bool) (Result, error) {
	f.mu.Lock()
	f.runs = append(f.runs, recordedRun{code: code, correlationID: correlationID, isNew: isNewHint})
	f.mu.Unlock()
	f.done <- struct{}{}
	return Result{Success: true, Code: code}, nil
}

func (f *fakeSynchronizer) recorded() []recordedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRun, len(f.runs))
	copy(out, f.runs)
	return out
}

func newTestScheduler(t *testing.T, orch synchronizer, queueSize int) *Scheduler {
	t.Helper()

	scheduler, err := NewScheduler(SchedulerParams{
		Orchestrator: orch,
		Logger:       logger.New(logger.Options{Level: logger.ParseLevel("error")}),
		QueueSize:    queueSize,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return scheduler
}

func waitFor(t *testing.T, done chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for run %d", i+1)
		}
	}
}

func TestSchedulerRunsDeferredJobWithOwnCorrelationID(t *testing.T) {
	orch := newFakeSynchronizer(1)
	scheduler := newTestScheduler(t, orch, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	logg := logger.New(logger.Options{Level: logger.ParseLevel("error")})
	requestCtx := logg.WithCorrelationID(context.Background(), "req-123")

	if ok := scheduler.ScheduleDeferred(requestCtx, "ACT001", enums.OperationCreate); !ok {
		t.Fatal("expected enqueue to succeed")
	}
	waitFor(t, orch.done, 1)

	runs := orch.recorded()
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
	if runs[0].correlationID == "" || runs[0].correlationID == "req-123" {
		t.Fatalf("job must carry its own correlation id, got %q", runs[0].correlationID)
	}
	if !runs[0].isNew {
		t.Fatal("create operation should carry the new-record hint")
	}
}

func TestSchedulerCancelBeforeStart(t *testing.T) {
	orch := newFakeSynchronizer(1)
	scheduler := newTestScheduler(t, orch, 8)

	jobID, ok := scheduler.ScheduleForce(context.Background(), "ACT001")
	if !ok {
		t.Fatal("expected enqueue to succeed")
	}
	if !scheduler.Cancel(jobID) {
		t.Fatal("expected cancel to succeed before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if len(orch.recorded()) != 0 {
		t.Fatal("cancelled job must not run")
	}

	// Cancelling an unknown or consumed job reports false.
	if scheduler.Cancel(jobID) {
		t.Fatal("expected cancel of consumed job to fail")
	}
}

func TestSchedulerQueueFull(t *testing.T) {
	orch := newFakeSynchronizer(4)
	scheduler := newTestScheduler(t, orch, 2)

	ctx := context.Background()
	if ok := scheduler.ScheduleDeferred(ctx, "ACT001", enums.OperationUpdate); !ok {
		t.Fatal("first enqueue should fit")
	}
	if ok := scheduler.ScheduleDeferred(ctx, "ACT002", enums.OperationUpdate); !ok {
		t.Fatal("second enqueue should fit")
	}
	if ok := scheduler.ScheduleDeferred(ctx, "ACT003", enums.OperationUpdate); ok {
		t.Fatal("expected full queue to reject the third enqueue")
	}
}
