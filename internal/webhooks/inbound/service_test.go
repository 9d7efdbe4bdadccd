package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type fakeEventsRepo struct {
	rows map[uuid.UUID]*models.WebhookEvent
}

func newFakeEventsRepo() *fakeEventsRepo {
	return &fakeEventsRepo{rows: map[uuid.UUID]*models.WebhookEvent{}}
}

func (f *fakeEventsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeEventsRepo) Create(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.ReceivedAt = time.Now().UTC()
	clone := *event
	f.rows[event.ID] = &clone
	return nil
}

func (f *fakeEventsRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processingError *string) error {
	row, ok := f.rows[id]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found")
	}
	now := time.Now().UTC()
	row.ProcessedAt = &now
	row.ProcessingError = processingError
	return nil
}

func (f *fakeEventsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found")
	}
	clone := *row
	return &clone, nil
}

func (f *fakeEventsRepo) ListByEntity(ctx context.Context, entityID string, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	for _, row := range f.rows {
		if row.EntityID == entityID {
			events = append(events, *row)
		}
	}
	return events, nil
}

type confirmation struct {
	code       string
	succeeded  bool
	externalID string
	detail     string
}

type fakeConfirmer struct {
	calls []confirmation
	err   error
}

func (f *fakeConfirmer) ApplyRemoteConfirmation(ctx context.Context, code string, succeeded bool, externalID, detail, correlationID string) error {
	f.calls = append(f.calls, confirmation{code: code, succeeded: succeeded, externalID: externalID, detail: detail})
	return f.err
}

type fakeRecordsRepo struct {
	activities map[string]*models.Activity
	saved      int
	// conflicts makes the next N guarded saves lose the version race,
	// advancing the stored row's version like a concurrent writer would.
	conflicts int
}

func newFakeRecordsRepo(activities ...*models.Activity) *fakeRecordsRepo {
	f := &fakeRecordsRepo{activities: map[string]*models.Activity{}}
	for _, a := range activities {
		f.activities[a.Code] = a
	}
	return f
}

func (f *fakeRecordsRepo) WithTx(tx *gorm.DB) records.Repository { return f }

func (f *fakeRecordsRepo) Create(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	f.activities[activity.Code] = activity
	return activity, nil
}

func (f *fakeRecordsRepo) FindByCode(ctx context.Context, code string) (*models.Activity, error) {
	activity, ok := f.activities[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *activity
	return &clone, nil
}

func (f *fakeRecordsRepo) SaveIf(ctx context.Context, activity *models.Activity, expectedVersion int64) error {
	current, ok := f.activities[activity.Code]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
	}
	if f.conflicts > 0 {
		f.conflicts--
		current.Version++
		return pkgerrors.New(pkgerrors.CodeConflict, "activity modified concurrently")
	}
	if current.Version != expectedVersion {
		return pkgerrors.New(pkgerrors.CodeConflict, "activity modified concurrently")
	}
	clone := *activity
	f.activities[activity.Code] = &clone
	f.saved++
	return nil
}

func (f *fakeRecordsRepo) UpdateStatusIf(ctx context.Context, code string, expectedVersion int64, update records.StatusUpdate) (*models.Activity, error) {
	return nil, fmt.Errorf("not expected in webhook tests")
}

func (f *fakeRecordsRepo) ListByStatus(ctx context.Context, status enums.SyncStatus, limit, offset int) ([]models.Activity, error) {
	return nil, nil
}

func (f *fakeRecordsRepo) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, afterCode string, limit int) ([]models.Activity, error) {
	return nil, nil
}

func (f *fakeRecordsRepo) CountByStatus(ctx context.Context) (records.StatusCounts, error) {
	return records.StatusCounts{}, nil
}

func newTestService(t *testing.T, events *fakeEventsRepo, recs *fakeRecordsRepo, conf *fakeConfirmer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Events:    events,
		Records:   recs,
		Confirmer: conf,
		Logger:    logger.New(logger.Options{Level: logger.ParseLevel("error")}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestProcessSuccessEventConfirmsRecord(t *testing.T) {
	events := newFakeEventsRepo()
	conf := &fakeConfirmer{}
	svc := newTestService(t, events, newFakeRecordsRepo(), conf)

	body := []byte(`{"eventType":"integration_success","entityId":"ACT001","externalId":"EXT-7","timestamp":"2026-08-30T12:00:00Z"}`)
	id, err := svc.Process(context.Background(), body, "corr-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(conf.calls) != 1 {
		t.Fatalf("expected 1 confirmation, got %d", len(conf.calls))
	}
	call := conf.calls[0]
	if call.code != "ACT001" || !call.succeeded || call.externalID != "EXT-7" {
		t.Fatalf("unexpected confirmation: %+v", call)
	}

	row, err := events.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if row.ProcessedAt == nil {
		t.Fatal("expected audit row stamped as processed")
	}
	if row.ProcessingError != nil {
		t.Fatalf("expected clean outcome, got %q", *row.ProcessingError)
	}
	if row.CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id on audit row, got %q", row.CorrelationID)
	}
}

func TestProcessErrorEventKeepsAuditRowOnRejection(t *testing.T) {
	events := newFakeEventsRepo()
	conf := &fakeConfirmer{err: pkgerrors.New(pkgerrors.CodeStateConflict, "record already settled")}
	svc := newTestService(t, events, newFakeRecordsRepo(), conf)

	body := []byte(`{"eventType":"integration_error","entityId":"ACT002","detail":"duplicate key","timestamp":"2026-08-30T12:00:00Z"}`)
	id, err := svc.Process(context.Background(), body, "corr-2")
	if err == nil {
		t.Fatal("expected dispatch error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}

	if len(conf.calls) != 1 || conf.calls[0].succeeded {
		t.Fatalf("expected one error confirmation, got %+v", conf.calls)
	}
	if conf.calls[0].detail != "duplicate key" {
		t.Fatalf("expected detail forwarded, got %q", conf.calls[0].detail)
	}

	row, findErr := events.FindByID(context.Background(), id)
	if findErr != nil {
		t.Fatalf("FindByID: %v", findErr)
	}
	if row.ProcessingError == nil {
		t.Fatal("expected processing error recorded on audit row")
	}
}

func TestProcessDataUpdatedMergesPayload(t *testing.T) {
	desc := "old description"
	recs := newFakeRecordsRepo(&models.Activity{
		Code:        "ACT003",
		Name:        "Old Name",
		Description: &desc,
		UnitValue:   decimal.NewFromInt(10),
		Active:      true,
		SyncStatus:  enums.SyncStatusSynced,
		Version:     3,
	})
	events := newFakeEventsRepo()
	conf := &fakeConfirmer{}
	svc := newTestService(t, events, recs, conf)

	body := []byte(`{"eventType":"data_updated","entityId":"ACT003","externalId":"EXT-9","data":{"name":"New Name","unitValue":"12.50"},"timestamp":"2026-08-30T12:00:00Z"}`)
	if _, err := svc.Process(context.Background(), body, "corr-3"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	activity, err := recs.FindByCode(context.Background(), "ACT003")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if activity.Name != "New Name" {
		t.Fatalf("expected name merged, got %q", activity.Name)
	}
	if !activity.UnitValue.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected unit value merged, got %s", activity.UnitValue)
	}
	if activity.Description == nil || *activity.Description != "old description" {
		t.Fatal("expected untouched fields preserved")
	}
	if activity.ExternalID == nil || *activity.ExternalID != "EXT-9" {
		t.Fatal("expected external id recorded")
	}
	if activity.SyncStatus != enums.SyncStatusSynced {
		t.Fatalf("expected sync status untouched, got %s", activity.SyncStatus)
	}
	if activity.LastSyncedAt == nil {
		t.Fatal("expected external confirmation timestamp")
	}
	if len(conf.calls) != 0 {
		t.Fatalf("data_updated must not touch the confirmer, got %+v", conf.calls)
	}
}

func TestProcessDataUpdatedRemergesAfterLostVersionRace(t *testing.T) {
	recs := newFakeRecordsRepo(&models.Activity{
		Code:       "ACT007",
		Name:       "Old Name",
		UnitValue:  decimal.NewFromInt(10),
		Active:     true,
		SyncStatus: enums.SyncStatusSynced,
		Version:    2,
	})
	recs.conflicts = 1
	events := newFakeEventsRepo()
	svc := newTestService(t, events, recs, &fakeConfirmer{})

	body := []byte(`{"eventType":"data_updated","entityId":"ACT007","data":{"name":"New Name"},"timestamp":"2026-08-30T12:00:00Z"}`)
	if _, err := svc.Process(context.Background(), body, "corr-7"); err != nil {
		t.Fatalf("Process after lost race: %v", err)
	}

	if recs.saved != 1 {
		t.Fatalf("expected exactly one committed save, got %d", recs.saved)
	}
	activity, err := recs.FindByCode(context.Background(), "ACT007")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if activity.Name != "New Name" {
		t.Fatalf("expected merge reapplied on the fresh row, got %q", activity.Name)
	}
	// The retry re-read version 3 and committed on top of it.
	if activity.Version != 4 {
		t.Fatalf("expected version built on the concurrent writer's, got %d", activity.Version)
	}
}

func TestProcessUnknownTypeDroppedButAudited(t *testing.T) {
	events := newFakeEventsRepo()
	conf := &fakeConfirmer{}
	svc := newTestService(t, events, newFakeRecordsRepo(), conf)

	body := []byte(`{"eventType":"inventory_moved","entityId":"ACT004","timestamp":"2026-08-30T12:00:00Z"}`)
	id, err := svc.Process(context.Background(), body, "corr-4")
	if err != nil {
		t.Fatalf("unknown types must be dropped without error, got %v", err)
	}
	if len(conf.calls) != 0 {
		t.Fatalf("expected no confirmations, got %+v", conf.calls)
	}

	row, findErr := events.FindByID(context.Background(), id)
	if findErr != nil {
		t.Fatalf("FindByID: %v", findErr)
	}
	if row.EventType != enums.WebhookEventType("inventory_moved") {
		t.Fatalf("expected raw type on audit row, got %s", row.EventType)
	}
	if row.ProcessedAt == nil || row.ProcessingError != nil {
		t.Fatal("expected unknown event stamped as cleanly dropped")
	}
}

func TestProcessRejectsMalformedBody(t *testing.T) {
	events := newFakeEventsRepo()
	svc := newTestService(t, events, newFakeRecordsRepo(), &fakeConfirmer{})

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"missing event type", `{"entityId":"ACT005"}`},
		{"missing entity id", `{"eventType":"integration_success"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Process(context.Background(), []byte(tc.body), "corr-5")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
	if len(events.rows) != 0 {
		t.Fatalf("unparseable bodies must not create audit rows, got %d", len(events.rows))
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"eventType":"integration_success","entityId":"ACT001"}`)

	if err := VerifySignature(secret, body, Sign(secret, body)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := VerifySignature(secret, body, ""); err == nil {
		t.Fatal("missing header accepted")
	}
	if err := VerifySignature(secret, body, "md5=abc"); err == nil {
		t.Fatal("malformed header accepted")
	}
	if err := VerifySignature(secret, body, Sign("other-secret", body)); err == nil {
		t.Fatal("mismatched signature accepted")
	}
	tampered := append(json.RawMessage(nil), body...)
	tampered[0] = ' '
	if err := VerifySignature(secret, tampered, Sign(secret, body)); err == nil {
		t.Fatal("tampered body accepted")
	}
}
