package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
)

type stubRecordsService struct {
	created    *records.CreateInput
	createErr  error
	activity   *models.Activity
	activities []models.Activity
	counts     records.StatusCounts
}

func (s *stubRecordsService) Create(ctx context.Context, input records.CreateInput) (*models.Activity, error) {
	s.created = &input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.activity, nil
}

func (s *stubRecordsService) Update(ctx context.Context, code string, input records.UpdateInput) (*models.Activity, error) {
	return s.activity, nil
}

func (s *stubRecordsService) Deactivate(ctx context.Context, code string) (*models.Activity, error) {
	return s.activity, nil
}

func (s *stubRecordsService) Get(ctx context.Context, code string) (*models.Activity, error) {
	if s.activity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
	}
	return s.activity, nil
}

func (s *stubRecordsService) ListByStatus(ctx context.Context, status enums.SyncStatus, limit, offset int) ([]models.Activity, error) {
	return s.activities, nil
}

func (s *stubRecordsService) Statistics(ctx context.Context) (records.StatusCounts, error) {
	return s.counts, nil
}

func TestCreateActivity(t *testing.T) {
	svc := &stubRecordsService{activity: &models.Activity{
		ID:         1,
		Code:       "ACT001",
		Name:       "Consulting",
		UnitValue:  decimal.RequireFromString("150.00"),
		Active:     true,
		SyncStatus: enums.SyncStatusPending,
		Version:    1,
	}}
	handler := CreateActivity(svc, nil)

	body := `{"code":"ACT001","name":"Consulting","unit_value":"150.00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.created == nil {
		t.Fatal("expected service invoked")
	}
	if !svc.created.UnitValue.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("unexpected unit value: %s", svc.created.UnitValue)
	}

	var envelope struct {
		Data activityResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Code != "ACT001" || envelope.Data.SyncStatus != enums.SyncStatusPending {
		t.Fatalf("unexpected response: %+v", envelope.Data)
	}
}

func TestCreateActivityValidation(t *testing.T) {
	svc := &stubRecordsService{}
	handler := CreateActivity(svc, nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing code", `{"name":"Consulting","unit_value":"10"}`},
		{"missing unit value", `{"code":"ACT001","name":"Consulting"}`},
		{"bad unit value", `{"code":"ACT001","name":"Consulting","unit_value":"abc"}`},
		{"unknown field", `{"code":"ACT001","name":"Consulting","unit_value":"10","extra":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
			if svc.created != nil {
				t.Fatal("service must not be invoked on validation failure")
			}
		})
	}
}

func TestGetActivityNotFound(t *testing.T) {
	handler := GetActivity(&stubRecordsService{}, nil)

	router := chi.NewRouter()
	router.Get("/api/v1/activities/{code}", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities/ACT404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListActivitiesRequiresValidStatus(t *testing.T) {
	handler := ListActivities(&stubRecordsService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities?status=bogus", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
}

func TestListActivities(t *testing.T) {
	svc := &stubRecordsService{activities: []models.Activity{
		{Code: "ACT001", SyncStatus: enums.SyncStatusError},
		{Code: "ACT002", SyncStatus: enums.SyncStatusError},
	}}
	handler := ListActivities(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities?status=error&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data []activityResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected 2 items, got %d", len(envelope.Data))
	}
}
