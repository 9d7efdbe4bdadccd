package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/brightpath-io/activity-sync/pkg/enums"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

// EmailSender delivers a rendered notice. The default implementation only
// logs; a real SMTP/SES sender plugs in behind this interface.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogSender writes notices to the structured log instead of sending mail.
type LogSender struct {
	Logger *logger.Logger
}

func (s LogSender) Send(ctx context.Context, recipient, subject, body string) error {
	ctx = s.Logger.WithFields(ctx, map[string]any{
		"recipient": recipient,
		"subject":   subject,
	})
	s.Logger.Info(ctx, "notification delivered")
	return nil
}

// Consumer drains the notification subscription and hands each notice to
// the sender. Malformed messages are acked and dropped; delivery failures
// are nacked for redelivery.
type Consumer struct {
	subscription *pubsub.Subscriber
	sender       EmailSender
	from         string
	logger       *logger.Logger
}

// ConsumerParams collects the dependencies for the notification consumer.
type ConsumerParams struct {
	Subscription *pubsub.Subscriber
	Sender       EmailSender
	FromAddress  string
	Logger       *logger.Logger
}

// NewConsumer builds the notification consumer loop.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	sender := params.Sender
	if sender == nil {
		sender = LogSender{Logger: params.Logger}
	}
	return &Consumer{
		subscription: params.Subscription,
		sender:       sender,
		from:         params.FromAddress,
		logger:       params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	logCtx := c.logger.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"kind":       msg.Attributes["kind"],
	})

	var envelope Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logger.Error(logCtx, "decoding notification envelope", err)
		return true
	}
	logCtx = c.logger.WithCorrelationID(logCtx, envelope.CorrelationID)

	message := envelope.Message
	if message.Recipient == "" {
		c.logger.Warn(logCtx, "notification without recipient dropped")
		return true
	}

	subject, body := render(message)
	if err := c.sender.Send(logCtx, message.Recipient, subject, body); err != nil {
		c.logger.Error(logCtx, "delivering notification", err)
		return false
	}
	return true
}

func render(message Message) (string, string) {
	switch message.Kind {
	case enums.NotificationSyncSuccess:
		return fmt.Sprintf("Activity %s synchronized", message.ActivityCode),
			fmt.Sprintf("Activity %s (%s) was confirmed by the remote system.\n\n%s",
				message.ActivityCode, message.ActivityName, message.Detail)
	case enums.NotificationSyncError:
		return fmt.Sprintf("Activity %s failed to synchronize", message.ActivityCode),
			fmt.Sprintf("Activity %s (%s) could not be synchronized.\n\nDetail: %s",
				message.ActivityCode, message.ActivityName, message.Detail)
	default:
		return "Activity sync report", message.Detail
	}
}
