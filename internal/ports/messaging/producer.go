package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Producer publishes attendance events to the notification queue.
type Producer struct {
	sender         MessageSender
	notifyQueueURL string
}

func NewProducer(sender MessageSender, notifyQueueURL string) *Producer {
	return &Producer{
		sender:         sender,
		notifyQueueURL: notifyQueueURL,
	}
}

func NewSQSProducer(client SQSClient, notifyQueueURL string) *Producer {
	return NewProducer(&SQSSender{client: client}, notifyQueueURL)
}

// PublishException sends a late or emergency punch-in event.
func (p *Producer) PublishException(ctx context.Context, event AttendanceExceptionEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("app.employeeId", event.EmployeeID),
			attribute.String("app.event_type", event.Type()),
		)
	}

	if err := p.sender.SendMessage(ctx, p.notifyQueueURL, event.Type(), b); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
