package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherAdapter struct {
	inner *gcppubsub.Publisher
}

func (p publisherAdapter) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.inner.Publish(ctx, msg)
}

// Dispatcher offloads email notices to the broker. Enqueueing is
// fire-and-forget: the sync path must never block or fail on a
// notification, so publish errors are only logged.
type Dispatcher struct {
	publisher        publisher
	defaultRecipient string
	logger           *logger.Logger
}

// DispatcherParams collects the dependencies for the dispatcher.
type DispatcherParams struct {
	Publisher        *gcppubsub.Publisher
	DefaultRecipient string
	Logger           *logger.Logger
}

// NewDispatcher builds the notification dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Publisher == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{
		publisher:        publisherAdapter{inner: params.Publisher},
		defaultRecipient: params.DefaultRecipient,
		logger:           params.Logger,
	}, nil
}

// EnqueueEmail publishes the message to the notification topic.
func (d *Dispatcher) EnqueueEmail(ctx context.Context, message Message, correlationID string) {
	if message.Recipient == "" {
		message.Recipient = d.defaultRecipient
	}

	envelope := Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: correlationID,
		EnqueuedAt:    time.Now().UTC(),
		Message:       message,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Error(ctx, "encoding notification envelope", err)
		return
	}

	result := d.publisher.Publish(ctx, &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":           string(message.Kind),
			"correlation_id": correlationID,
		},
	})

	// Await the server ack off the caller's critical path.
	go func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			d.logger.Error(d.logger.WithCorrelationID(waitCtx, correlationID), "publishing notification", err)
		}
	}()
}
