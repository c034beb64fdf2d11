package notify

import (
	"context"
	"log/slog"

	"github.com/mvolkov/web_shop/internal/mykafka"
)

// Sink delivers customer-facing notifications. The core does not care how
// messages reach the shopper; email delivery lives behind this interface.
type Sink interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// KafkaSink hands notifications to the mail worker via Kafka.
type KafkaSink struct {
	Producer *mykafka.Producer
	Topic    string
}

func (s *KafkaSink) Send(ctx context.Context, recipient, subject, body string) error {
	return s.Producer.PublishEvent(ctx, s.Topic, recipient, map[string]string{
		"recipient": recipient,
		"subject":   subject,
		"body":      body,
	})
}

// LogSink is the local fallback when no broker is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s *LogSink) Send(ctx context.Context, recipient, subject, body string) error {
	s.Log.InfoContext(ctx, "notification", "recipient", recipient, "subject", subject)
	return nil
}
