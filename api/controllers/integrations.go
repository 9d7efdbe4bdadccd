package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightpath-io/activity-sync/api/responses"
	"github.com/brightpath-io/activity-sync/api/validators"
	"github.com/brightpath-io/activity-sync/internal/integrations"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

// integrationResponse omits the credential fields. Login and password never
// leave the service.
type integrationResponse struct {
	ID                    int64             `json:"id"`
	Name                  string            `json:"name"`
	BaseURL               string            `json:"base_url"`
	TimeoutSeconds        int               `json:"timeout_seconds"`
	MaxAttempts           int               `json:"max_attempts"`
	RetryPolicy           enums.RetryPolicy `json:"retry_policy"`
	RetryBaseDelaySeconds int               `json:"retry_base_delay_seconds"`
	IsDefault             bool              `json:"is_default"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

func toIntegrationResponse(c *models.IntegrationConfig) integrationResponse {
	return integrationResponse{
		ID:                    c.ID,
		Name:                  c.Name,
		BaseURL:               c.BaseURL,
		TimeoutSeconds:        c.TimeoutSeconds,
		MaxAttempts:           c.MaxAttempts,
		RetryPolicy:           c.RetryPolicy,
		RetryBaseDelaySeconds: c.RetryBaseDelaySeconds,
		IsDefault:             c.IsDefault,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

type createIntegrationRequest struct {
	Name                  string  `json:"name" validate:"required,max=255"`
	BaseURL               string  `json:"base_url" validate:"required,url"`
	Login                 string  `json:"login" validate:"required"`
	Password              string  `json:"password" validate:"required"`
	TimeoutSeconds        *int    `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=300"`
	MaxAttempts           *int    `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=20"`
	RetryPolicy           *string `json:"retry_policy,omitempty" validate:"omitempty,oneof=fixed exponential"`
	RetryBaseDelaySeconds *int    `json:"retry_base_delay_seconds,omitempty" validate:"omitempty,min=1"`
	MakeDefault           bool    `json:"make_default,omitempty"`
}

// CreateIntegrationConfig registers a new integration target.
func CreateIntegrationConfig(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integrations service unavailable"))
			return
		}

		var payload createIntegrationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := integrations.CreateInput{
			Name:        strings.TrimSpace(payload.Name),
			BaseURL:     strings.TrimSpace(payload.BaseURL),
			Login:       payload.Login,
			Password:    payload.Password,
			MakeDefault: payload.MakeDefault,
		}
		if payload.TimeoutSeconds != nil {
			input.TimeoutSeconds = *payload.TimeoutSeconds
		}
		if payload.MaxAttempts != nil {
			input.MaxAttempts = *payload.MaxAttempts
		}
		if payload.RetryPolicy != nil {
			policy, err := enums.ParseRetryPolicy(*payload.RetryPolicy)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid retry policy"))
				return
			}
			input.RetryPolicy = policy
		}
		if payload.RetryBaseDelaySeconds != nil {
			input.RetryBaseDelaySeconds = *payload.RetryBaseDelaySeconds
		}

		cfg, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toIntegrationResponse(cfg))
	}
}

func ListIntegrationConfigs(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integrations service unavailable"))
			return
		}

		configs, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]integrationResponse, 0, len(configs))
		for i := range configs {
			items = append(items, toIntegrationResponse(&configs[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

func GetIntegrationConfig(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integrations service unavailable"))
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid config id"))
			return
		}

		cfg, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toIntegrationResponse(cfg))
	}
}

// SetDefaultIntegrationConfig atomically swaps which target new syncs use.
func SetDefaultIntegrationConfig(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integrations service unavailable"))
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid config id"))
			return
		}

		if err := svc.SetDefault(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"id": id, "is_default": true})
	}
}
