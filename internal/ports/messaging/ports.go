package messaging

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Publisher defines the output port for publishing attendance events.
type Publisher interface {
	PublishException(ctx context.Context, event AttendanceExceptionEvent) error
}

// MessageSender defines the interface for sending raw messages to a messaging system.
type MessageSender interface {
	SendMessage(ctx context.Context, destination, eventType string, body []byte) error
}

// SQSClient defines the interface for the AWS SQS client.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}
