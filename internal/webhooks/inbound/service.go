package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/internal/records"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

const eventSource = "remote"

// mergeRetries bounds how often a data_updated merge is re-applied after the
// sync engine commits a transition between the read and the guarded write.
const mergeRetries = 3

// confirmer applies an asynchronous remote confirmation to a record,
// enforcing the engine's state-transition rules.
type confirmer interface {
	ApplyRemoteConfirmation(ctx context.Context, code string, succeeded bool, externalID, detail, correlationID string) error
}

// Event is the decoded inbound webhook body.
type Event struct {
	EventType  string          `json:"eventType"`
	EntityID   string          `json:"entityId"`
	ExternalID *string         `json:"externalId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// dataPayload carries the record fields a data_updated event may push.
// Nil pointers leave the local field untouched.
type dataPayload struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	UnitValue   *decimal.Decimal `json:"unitValue"`
	Active      *bool            `json:"active"`
}

// ServiceParams collects the dependencies for the inbound webhook service.
type ServiceParams struct {
	Events    Repository
	Records   records.Repository
	Confirmer confirmer
	Logger    *logger.Logger
}

// Service ingests remote webhook events. The raw body is verified at the
// transport layer before it reaches Process.
type Service struct {
	events    Repository
	records   records.Repository
	confirmer confirmer
	logger    *logger.Logger
}

// NewService builds the inbound webhook service, validating required
// dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("records repository required")
	}
	if params.Confirmer == nil {
		return nil, fmt.Errorf("confirmer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		events:    params.Events,
		records:   params.Records,
		confirmer: params.Confirmer,
		logger:    params.Logger,
	}, nil
}

// Process decodes and dispatches a verified webhook body. The audit row is
// written before dispatch so a failed dispatch still leaves a trace; the
// outcome is stamped on the row either way. The returned event ID
// identifies the audit row.
func (s *Service) Process(ctx context.Context, raw []byte, correlationID string) (uuid.UUID, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "malformed webhook body")
	}
	if event.EventType == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "eventType is required")
	}
	if event.EntityID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "entityId is required")
	}

	row := &models.WebhookEvent{
		Source:        eventSource,
		EventType:     enums.WebhookEventType(event.EventType),
		EntityID:      event.EntityID,
		ExternalID:    event.ExternalID,
		Payload:       json.RawMessage(raw),
		CorrelationID: correlationID,
	}
	if err := s.events.Create(ctx, row); err != nil {
		return uuid.Nil, err
	}

	ctx = s.logger.WithCorrelationID(ctx, correlationID)
	ctx = s.logger.WithFields(ctx, map[string]any{
		"event_id":   row.ID.String(),
		"event_type": event.EventType,
		"entity_id":  event.EntityID,
	})

	dispatchErr := s.dispatch(ctx, event, correlationID)
	s.settle(ctx, row.ID, dispatchErr)

	if dispatchErr != nil {
		s.logger.Warn(ctx, fmt.Sprintf("webhook event dispatch failed: %v", dispatchErr))
		return row.ID, dispatchErr
	}
	s.logger.Info(ctx, "webhook event processed")
	return row.ID, nil
}

func (s *Service) dispatch(ctx context.Context, event Event, correlationID string) error {
	switch enums.WebhookEventType(event.EventType) {
	case enums.WebhookIntegrationSuccess:
		return s.confirmer.ApplyRemoteConfirmation(ctx, event.EntityID, true, stringOrEmpty(event.ExternalID), event.Detail, correlationID)
	case enums.WebhookIntegrationError:
		return s.confirmer.ApplyRemoteConfirmation(ctx, event.EntityID, false, stringOrEmpty(event.ExternalID), event.Detail, correlationID)
	case enums.WebhookDataUpdated:
		return s.applyDataUpdate(ctx, event)
	default:
		// Unknown types are acknowledged and dropped so the remote side
		// does not retry them forever.
		s.logger.Warn(ctx, "unknown webhook event type dropped")
		return nil
	}
}

// applyDataUpdate pulls remote-pushed payload fields into the local record.
// It touches payload and confirmation fields only; sync status and the
// attempt counter stay with the engine.
func (s *Service) applyDataUpdate(ctx context.Context, event Event) error {
	var payload dataPayload
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "malformed data payload")
		}
	}

	var err error
	for attempt := 0; attempt < mergeRetries; attempt++ {
		var activity *models.Activity
		activity, err = s.records.FindByCode(ctx, event.EntityID)
		if err != nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
		}
		expectedVersion := activity.Version

		if payload.Name != nil {
			activity.Name = *payload.Name
		}
		if payload.Description != nil {
			activity.Description = payload.Description
		}
		if payload.UnitValue != nil {
			activity.UnitValue = *payload.UnitValue
		}
		if payload.Active != nil {
			activity.Active = *payload.Active
		}
		if event.ExternalID != nil {
			activity.ExternalID = event.ExternalID
		}
		now := time.Now().UTC()
		activity.LastSyncedAt = &now
		activity.Version++

		err = s.records.SaveIf(ctx, activity, expectedVersion)
		// A concurrent status transition won the version race; merge onto
		// the fresh row instead of overwriting it.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			continue
		}
		return err
	}
	return err
}

func (s *Service) settle(ctx context.Context, id uuid.UUID, dispatchErr error) {
	var processingError *string
	if dispatchErr != nil {
		msg := dispatchErr.Error()
		processingError = &msg
	}
	if err := s.events.MarkProcessed(ctx, id, processingError); err != nil {
		s.logger.Error(ctx, "stamping webhook event outcome", err)
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
