package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/pkg/logger"
)

const correlationIDHeader = "X-Correlation-ID"

// CorrelationID tags every request with a correlation id, minting one when
// the caller did not supply the header. The id is echoed back so clients
// can quote it in support requests.
func CorrelationID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get(correlationIDHeader)
			if corrID == "" {
				corrID = uuid.NewString()
			}

			w.Header().Set(correlationIDHeader, corrID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithCorrelationID(ctx, corrID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
