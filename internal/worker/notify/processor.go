package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"attendance.service/internal/core"
	"attendance.service/internal/ports/messaging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// maxAttempts is how often a notice is tried before it is dropped.
const maxAttempts = 8

// Processor e-mails the manager about late and emergency punch-ins.
type Processor struct {
	emailService core.EmailService
	managerEmail string
}

// NewProcessor sets up a processor sending notices to managerEmail.
func NewProcessor(emailService core.EmailService, managerEmail string) *Processor {
	return &Processor{
		emailService: emailService,
		managerEmail: managerEmail,
	}
}

// Process handles one message from the notification queue.
func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	if msg.Body == nil {
		return false, 0, fmt.Errorf("message %s has no body", aws.ToString(msg.MessageId))
	}

	var event messaging.AttendanceExceptionEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal attendance exception event")
		return false, 0, err // Do not retry on malformed message
	}
	if event.EmployeeID == "" || event.SessionID == "" {
		return false, 0, fmt.Errorf("attendance exception event is missing its employee or session")
	}

	attempt := receiveCount(msg)
	err := p.emailService.SendExceptionNotice(ctx, p.managerEmail, event)
	if err != nil {
		if attempt >= maxAttempts {
			return false, 0, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		return true, calculateBackoff(attempt), err
	}

	log.Ctx(ctx).Info().
		Str("session_id", event.SessionID).
		Str("event_type", event.Type()).
		Msg("Exception notice sent")
	return false, 0, nil
}

func receiveCount(msg types.Message) int {
	n, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// calculateBackoff determines how long to wait before retrying a failed job.
// It increases the delay exponentially with each retry.
func calculateBackoff(retryCount int) int32 {
	backoff := int32(math.Pow(2, float64(retryCount)) * 10)
	if backoff > 3600 {
		return 3600 // max at 1 hour
	}
	return backoff
}
