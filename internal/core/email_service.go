package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"attendance.service/internal/ports/messaging"
	"attendance.service/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type EmailService interface {
	SendExceptionNotice(ctx context.Context, to string, event messaging.AttendanceExceptionEvent) error
}

// SESClient is the subset of the SES API the email service uses.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESEmailService struct {
	client SESClient
	sender string
}

func NewSESEmailService(client SESClient, sender string) *SESEmailService {
	return &SESEmailService{client: client, sender: sender}
}

// SendExceptionNotice e-mails a manager about a late or emergency punch-in.
func (s *SESEmailService) SendExceptionNotice(ctx context.Context, to string, event messaging.AttendanceExceptionEvent) error {
	tracer := otel.Tracer("ses-email-service")
	ctx, span := tracer.Start(ctx, "send_email", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// Enrich span with employeeId if available in context
	if empID := telemetry.GetEmployeeIDFromContext(ctx); empID != "" {
		span.SetAttributes(attribute.String("app.employeeId", empID))
	}

	subject, body := exceptionNotice(event)
	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	_, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send exception notice: %w", err)
	}
	return nil
}

func exceptionNotice(e messaging.AttendanceExceptionEvent) (string, string) {
	var subject string
	if e.Emergency {
		subject = fmt.Sprintf("Emergency attendance: %s", e.EmployeeID)
	} else {
		subject = fmt.Sprintf("Late arrival: %s", e.EmployeeID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nEmployee %s punched in for %s attendance at %s.\n",
		e.EmployeeID, e.Kind, e.StartedAt.Format(time.RFC1123))
	if e.Emergency {
		b.WriteString("The punch-in was flagged as emergency attendance.\n")
	}
	if e.Late {
		reason := e.LateReason
		if reason == "" {
			reason = "none given"
		}
		fmt.Fprintf(&b, "Late reason: %s\n", reason)
	}
	if e.Latitude != nil && e.Longitude != nil {
		fmt.Fprintf(&b, "Location: %.6f, %.6f\n", *e.Latitude, *e.Longitude)
	} else {
		b.WriteString("Location: not available\n")
	}
	return subject, b.String()
}
