package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/internal/webhooks/inbound"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
)

type fakeInboundService struct {
	calls int
	last  []byte
	err   error
}

func (f *fakeInboundService) Process(ctx context.Context, raw []byte, correlationID string) (uuid.UUID, error) {
	f.calls++
	f.last = append([]byte(nil), raw...)
	if f.err != nil {
		return uuid.Nil, f.err
	}
	return uuid.New(), nil
}

func TestInbound_ValidSignature(t *testing.T) {
	payload := []byte(`{"eventType":"integration_success","entityId":"ACT001"}`)
	service := &fakeInboundService{}
	handler := Inbound(service, "whsec_test", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sync", bytes.NewReader(payload))
	req.Header.Set(inbound.SignatureHeader, inbound.Sign("whsec_test", payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
	if !bytes.Equal(service.last, payload) {
		t.Fatal("service must receive the raw body the signature covered")
	}
}

func TestInbound_InvalidSignature(t *testing.T) {
	payload := []byte(`{"eventType":"integration_success","entityId":"ACT001"}`)
	service := &fakeInboundService{}
	handler := Inbound(service, "whsec_test", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sync", bytes.NewReader(payload))
	req.Header.Set(inbound.SignatureHeader, inbound.Sign("other-secret", payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatal("service must not run on a failed signature check")
	}
}

func TestInbound_MissingSignature(t *testing.T) {
	payload := []byte(`{"eventType":"integration_success","entityId":"ACT001"}`)
	service := &fakeInboundService{}
	handler := Inbound(service, "whsec_test", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sync", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}
}

func TestInbound_DispatchConflictSurfaces(t *testing.T) {
	payload := []byte(`{"eventType":"integration_error","entityId":"ACT002"}`)
	service := &fakeInboundService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "record already settled")}
	handler := Inbound(service, "whsec_test", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sync", bytes.NewReader(payload))
	req.Header.Set(inbound.SignatureHeader, inbound.Sign("whsec_test", payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for state conflict, got %d", rec.Code)
	}
}
