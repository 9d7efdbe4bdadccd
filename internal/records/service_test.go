package records

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type stubRecordsRepo struct {
	byCode map[string]*models.Activity
	saved  []*models.Activity
	// conflictsLeft makes the next N guarded saves lose the version race,
	// advancing the stored row's version like a concurrent writer would.
	conflictsLeft int
}

func newStubRecordsRepo() *stubRecordsRepo {
	return &stubRecordsRepo{byCode: map[string]*models.Activity{}}
}

func (s *stubRecordsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRecordsRepo) Create(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	activity.ID = int64(len(s.byCode) + 1)
	s.byCode[activity.Code] = activity
	return activity, nil
}

func (s *stubRecordsRepo) FindByCode(ctx context.Context, code string) (*models.Activity, error) {
	activity, ok := s.byCode[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *activity
	return &clone, nil
}

func (s *stubRecordsRepo) SaveIf(ctx context.Context, activity *models.Activity, expectedVersion int64) error {
	current, ok := s.byCode[activity.Code]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
	}
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		current.Version++
		return pkgerrors.New(pkgerrors.CodeConflict, "activity modified concurrently")
	}
	if current.Version != expectedVersion {
		return pkgerrors.New(pkgerrors.CodeConflict, "activity modified concurrently")
	}
	clone := *activity
	s.byCode[activity.Code] = &clone
	s.saved = append(s.saved, &clone)
	return nil
}

func (s *stubRecordsRepo) UpdateStatusIf(ctx context.Context, code string, expectedVersion int64, update StatusUpdate) (*models.Activity, error) {
	return nil, nil
}

func (s *stubRecordsRepo) ListByStatus(ctx context.Context, status enums.SyncStatus, limit, offset int) ([]models.Activity, error) {
	var out []models.Activity
	for _, activity := range s.byCode {
		if activity.SyncStatus == status {
			out = append(out, *activity)
		}
	}
	return out, nil
}

func (s *stubRecordsRepo) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, afterCode string, limit int) ([]models.Activity, error) {
	return nil, nil
}

func (s *stubRecordsRepo) CountByStatus(ctx context.Context) (StatusCounts, error) {
	counts := StatusCounts{}
	for _, activity := range s.byCode {
		counts[activity.SyncStatus]++
	}
	return counts, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordedSchedule struct {
	code      string
	operation enums.SyncOperation
}

type stubScheduler struct {
	scheduled []recordedSchedule
	full      bool
}

func (s *stubScheduler) ScheduleDeferred(ctx context.Context, code string, operation enums.SyncOperation) bool {
	if s.full {
		return false
	}
	s.scheduled = append(s.scheduled, recordedSchedule{code: code, operation: operation})
	return true
}

func newRecordsService(t *testing.T, repo Repository, scheduler Scheduler) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Tx:        stubTxRunner{},
		Scheduler: scheduler,
		Logger:    logger.New(logger.Options{Level: logger.ParseLevel("error")}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestServiceCreateSchedulesDeferredSync(t *testing.T) {
	repo := newStubRecordsRepo()
	scheduler := &stubScheduler{}
	svc := newRecordsService(t, repo, scheduler)

	activity, err := svc.Create(context.Background(), CreateInput{
		Code:      "ACT001",
		Name:      "Consulting",
		UnitValue: decimal.NewFromInt(200),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if activity.SyncStatus != enums.SyncStatusPending {
		t.Fatalf("expected pending status, got %s", activity.SyncStatus)
	}
	if len(scheduler.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled sync, got %d", len(scheduler.scheduled))
	}
	if scheduler.scheduled[0].operation != enums.OperationCreate {
		t.Fatalf("expected create operation, got %s", scheduler.scheduled[0].operation)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc := newRecordsService(t, newStubRecordsRepo(), &stubScheduler{})

	_, err := svc.Create(context.Background(), CreateInput{Name: "no code"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = svc.Create(context.Background(), CreateInput{
		Code:      "ACT002",
		Name:      "Negative",
		UnitValue: decimal.NewFromInt(-5),
	})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for negative unit value, got %v", err)
	}
}

func TestServiceUpdateResetsSyncState(t *testing.T) {
	repo := newStubRecordsRepo()
	scheduler := &stubScheduler{}
	svc := newRecordsService(t, repo, scheduler)

	errMsg := "remote rejected"
	repo.byCode["ACT001"] = &models.Activity{
		ID:               1,
		Code:             "ACT001",
		Name:             "Consulting",
		Active:           true,
		SyncStatus:       enums.SyncStatusError,
		SyncAttemptCount: 3,
		LastSyncError:    &errMsg,
		Version:          4,
	}

	name := "Consulting (revised)"
	updated, err := svc.Update(context.Background(), "ACT001", UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.SyncStatus != enums.SyncStatusPending {
		t.Fatalf("expected pending after edit, got %s", updated.SyncStatus)
	}
	if updated.SyncAttemptCount != 0 {
		t.Fatalf("expected attempt count reset, got %d", updated.SyncAttemptCount)
	}
	if updated.LastSyncError != nil {
		t.Fatalf("expected sync error cleared, got %q", *updated.LastSyncError)
	}
	if updated.Version != 5 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0].operation != enums.OperationUpdate {
		t.Fatalf("expected one scheduled update, got %+v", scheduler.scheduled)
	}
}

func TestServiceUpdateCancelledRejected(t *testing.T) {
	repo := newStubRecordsRepo()
	svc := newRecordsService(t, repo, &stubScheduler{})

	repo.byCode["ACT001"] = &models.Activity{
		ID:         1,
		Code:       "ACT001",
		Name:       "Consulting",
		SyncStatus: enums.SyncStatusCancelled,
		Version:    2,
	}

	name := "nope"
	_, err := svc.Update(context.Background(), "ACT001", UpdateInput{Name: &name})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestServiceDeactivateSchedulesDelete(t *testing.T) {
	repo := newStubRecordsRepo()
	scheduler := &stubScheduler{}
	svc := newRecordsService(t, repo, scheduler)

	repo.byCode["ACT001"] = &models.Activity{
		ID:         1,
		Code:       "ACT001",
		Name:       "Consulting",
		Active:     true,
		SyncStatus: enums.SyncStatusSynced,
		Version:    2,
	}

	updated, err := svc.Deactivate(context.Background(), "ACT001")
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if updated.Active {
		t.Fatal("expected activity inactive")
	}
	if updated.SyncStatus != enums.SyncStatusPending {
		t.Fatalf("expected pending after deactivation, got %s", updated.SyncStatus)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0].operation != enums.OperationDelete {
		t.Fatalf("expected one scheduled delete, got %+v", scheduler.scheduled)
	}

	// Deactivating again is a no-op and must not queue another sync.
	if _, err := svc.Deactivate(context.Background(), "ACT001"); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
	if len(scheduler.scheduled) != 1 {
		t.Fatalf("expected no extra schedule, got %d", len(scheduler.scheduled))
	}
}

func TestServiceUpdateRetriesLostVersionRace(t *testing.T) {
	repo := newStubRecordsRepo()
	scheduler := &stubScheduler{}
	svc := newRecordsService(t, repo, scheduler)

	repo.byCode["ACT001"] = &models.Activity{
		ID:         1,
		Code:       "ACT001",
		Name:       "Consulting",
		Active:     true,
		SyncStatus: enums.SyncStatusSynced,
		Version:    2,
	}
	repo.conflictsLeft = 1

	name := "Consulting (revised)"
	updated, err := svc.Update(context.Background(), "ACT001", UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("Update after lost race: %v", err)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected exactly one committed save, got %d", len(repo.saved))
	}
	if updated.Name != "Consulting (revised)" || updated.SyncStatus != enums.SyncStatusPending {
		t.Fatalf("expected edit applied on the fresh row, got %+v", updated)
	}
	// The retry re-read version 3 and committed on top of it.
	if updated.Version != 4 {
		t.Fatalf("expected version built on the concurrent writer's, got %d", updated.Version)
	}
	if len(scheduler.scheduled) != 1 {
		t.Fatalf("expected one scheduled sync, got %d", len(scheduler.scheduled))
	}
}

func TestServiceUpdateSurfacesConflictWhenRetriesExhausted(t *testing.T) {
	repo := newStubRecordsRepo()
	svc := newRecordsService(t, repo, &stubScheduler{})

	repo.byCode["ACT001"] = &models.Activity{
		ID:         1,
		Code:       "ACT001",
		Name:       "Consulting",
		Active:     true,
		SyncStatus: enums.SyncStatusSynced,
		Version:    2,
	}
	repo.conflictsLeft = 10

	name := "never lands"
	_, err := svc.Update(context.Background(), "ACT001", UpdateInput{Name: &name})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict after exhausted retries, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("expected no committed save, got %d", len(repo.saved))
	}
}

func TestServiceCreateFullSchedulerStillSucceeds(t *testing.T) {
	repo := newStubRecordsRepo()
	scheduler := &stubScheduler{full: true}
	svc := newRecordsService(t, repo, scheduler)

	_, err := svc.Create(context.Background(), CreateInput{
		Code:      "ACT001",
		Name:      "Consulting",
		UnitValue: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Create with full scheduler: %v", err)
	}
}
