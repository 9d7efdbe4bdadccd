package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/pkg/enums"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type synchronizer interface {
	Synchronize(ctx context.Context, code, correlationID string, isNewHint bool) (Result, error)
}

// Job is one queued synchronization. Every job gets its own correlation id
// at enqueue time; the triggering request's id is only kept as a log link.
type Job struct {
	ID            uuid.UUID
	Code          string
	Operation     enums.SyncOperation
	CorrelationID string
	TriggeredBy   string
	EnqueuedAt    time.Time

	cancelled bool
}

// Scheduler runs one-shot synchronization jobs off a bounded queue. A full
// queue drops the enqueue (reported to the caller) rather than blocking the
// local write path; the recurring sweep catches anything dropped.
type Scheduler struct {
	orchestrator synchronizer
	logger       *logger.Logger
	queue        chan uuid.UUID

	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// SchedulerParams collects the dependencies for the scheduler.
type SchedulerParams struct {
	Orchestrator synchronizer
	Logger       *logger.Logger
	QueueSize    int
}

// NewScheduler builds the one-shot job scheduler.
func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.QueueSize <= 0 {
		params.QueueSize = 256
	}
	return &Scheduler{
		orchestrator: params.Orchestrator,
		logger:       params.Logger,
		queue:        make(chan uuid.UUID, params.QueueSize),
		jobs:         map[uuid.UUID]*Job{},
	}, nil
}

// ScheduleDeferred queues a synchronization right after a local write.
// Returns false when the queue is full.
func (s *Scheduler) ScheduleDeferred(ctx context.Context, code string, operation enums.SyncOperation) bool {
	_, ok := s.enqueue(ctx, code, operation)
	return ok
}

// ScheduleForce queues an operator-requested synchronization, used for
// records that exhausted their automatic retries. The job id allows
// cancellation before the job starts.
func (s *Scheduler) ScheduleForce(ctx context.Context, code string) (uuid.UUID, bool) {
	return s.enqueue(ctx, code, enums.OperationUpdate)
}

// Cancel marks a queued job as cancelled. Returns false when the job is
// unknown or already started; a job that began its outward call runs to
// completion.
func (s *Scheduler) Cancel(jobID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	job.cancelled = true
	return true
}

// Run drains the queue until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case jobID := <-s.queue:
			s.runJob(ctx, jobID)
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, code string, operation enums.SyncOperation) (uuid.UUID, bool) {
	job := &Job{
		ID:            uuid.New(),
		Code:          code,
		Operation:     operation,
		CorrelationID: uuid.NewString(),
		TriggeredBy:   logger.CorrelationIDFrom(ctx),
		EnqueuedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	select {
	case s.queue <- job.ID:
		return job.ID, true
	default:
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		s.logger.Warn(s.logger.WithActivityCode(ctx, code), "sync queue full, job dropped")
		return uuid.Nil, false
	}
}

func (s *Scheduler) runJob(ctx context.Context, jobID uuid.UUID) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()
	if !ok || job.cancelled {
		return
	}

	jobCtx := s.logger.WithFields(ctx, map[string]any{
		"job_id":       job.ID.String(),
		"triggered_by": job.TriggeredBy,
	})

	isNew := job.Operation == enums.OperationCreate
	if _, err := s.orchestrator.Synchronize(jobCtx, job.Code, job.CorrelationID, isNew); err != nil {
		// The orchestrator already wrote the attempt trail and the status
		// transition; nothing else to do on this path.
		s.logger.Warn(s.logger.WithActivityCode(jobCtx, job.Code), "scheduled sync failed")
	}
}
