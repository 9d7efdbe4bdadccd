package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/api/responses"
	"github.com/brightpath-io/activity-sync/internal/webhooks/inbound"
	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// InboundService processes a verified webhook body.
type InboundService interface {
	Process(ctx context.Context, raw []byte, correlationID string) (uuid.UUID, error)
}

// Inbound handles remote confirmation callbacks. The raw body is read
// before any decoding so the HMAC covers exactly what was sent; a failed
// signature check is logged for audit and rejected without touching state.
func Inbound(svc InboundService, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := inbound.VerifySignature(signingSecret, payload, r.Header.Get(inbound.SignatureHeader)); err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "remote_addr", r.RemoteAddr), "webhook signature rejected")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		correlationID := logger.CorrelationIDFrom(ctx)

		eventID, err := svc.Process(ctx, payload, correlationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"event_id": eventID.String()})
	}
}
