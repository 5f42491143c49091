package worker

import (
	"context"
	"sync"
	"time"

	"attendance.service/pkg/logger"
	"attendance.service/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Processor handles one message. A failed message is retried after
// retryDelay seconds when shouldRetry is set and dropped otherwise.
type Processor interface {
	Process(ctx context.Context, msg types.Message) (shouldRetry bool, retryDelay int32, err error)
}

// Worker polls an SQS queue and hands messages to a pool of processors.
type Worker struct {
	client    SQSClient
	queueURL  string
	processor Processor
	// Concurrency controls how many messages can be processed at the same time.
	Concurrency int
	// WaitTimeSeconds is the long-poll duration of a receive call.
	WaitTimeSeconds int32
	// ErrorBackoff is the pause after a failed receive call.
	ErrorBackoff time.Duration
}

// NewWorker creates a new SQS worker, ready to be started.
func NewWorker(client SQSClient, url string, proc Processor) *Worker {
	return &Worker{
		client:          client,
		queueURL:        url,
		processor:       proc,
		Concurrency:     5,
		WaitTimeSeconds: 20,
		ErrorBackoff:    5 * time.Second,
	}
}

// Start polls until ctx is canceled and returns once every in-flight
// message has been handled.
func (w *Worker) Start(ctx context.Context) {
	log.Info().Int("concurrency", w.Concurrency).Str("queue", w.queueURL).Msg("Notification worker started")

	messagesCh := make(chan types.Message, w.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processMessages(ctx, messagesCh)
		}()
	}

	w.pollMessages(ctx, messagesCh)
	wg.Wait()
}

func (w *Worker) pollMessages(ctx context.Context, messagesCh chan<- types.Message) {
	defer close(messagesCh)

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Poller shutting down...")
			return
		}

		output, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              &w.queueURL,
			MaxNumberOfMessages:   int32(w.Concurrency),
			WaitTimeSeconds:       w.WaitTimeSeconds,
			MessageAttributeNames: []string{"All"}, // trace context and EventType
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("Error receiving messages")
			select {
			case <-ctx.Done():
			case <-time.After(w.ErrorBackoff):
			}
			continue
		}

		if len(output.Messages) > 0 {
			log.Debug().Int("count", len(output.Messages)).Msg("Received messages")
		}
		for _, msg := range output.Messages {
			select {
			case messagesCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) processMessages(ctx context.Context, messagesCh <-chan types.Message) {
	for msg := range messagesCh {
		w.handleSingleMessage(ctx, msg)
	}
}

// handleSingleMessage deletes a message on success or unrecoverable failure
// and hides it for retryDelay seconds on a retryable failure.
func (w *Worker) handleSingleMessage(ctx context.Context, msg types.Message) {
	ctx, span := telemetry.StartSpanFromSQSMessage(ctx, msg)
	defer span.End()

	ctx = logger.EnrichContextWithLogger(ctx)

	shouldRetry, retryDelay, err := w.processor.Process(ctx, msg)

	// message bookkeeping outlives worker shutdown
	ackCtx := context.WithoutCancel(ctx)

	if err != nil && shouldRetry {
		log.Ctx(ctx).Warn().Err(err).Int32("retry_delay", retryDelay).Msg("Processing failed, will retry")

		if _, verr := w.client.ChangeMessageVisibility(ackCtx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          &w.queueURL,
			ReceiptHandle:     msg.ReceiptHandle,
			VisibilityTimeout: retryDelay,
		}); verr != nil {
			log.Ctx(ctx).Error().Err(verr).Msg("Failed to change message visibility")
		}
		return
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Unrecoverable error processing message, dropping it")
	}

	if _, derr := w.client.DeleteMessage(ackCtx, &sqs.DeleteMessageInput{
		QueueUrl:      &w.queueURL,
		ReceiptHandle: msg.ReceiptHandle,
	}); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Msg("Failed to delete message")
	}
}
