package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"attendance.service/internal/core/model"
	"attendance.service/internal/ports/messaging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSendExceptionNotice(t *testing.T) {
	client := &mockSES{}
	svc := NewSESEmailService(client, "attendance@example.com")
	event := messaging.AttendanceExceptionEvent{
		SessionID:  "sess-1",
		EmployeeID: "emp-1",
		Kind:       model.KindField,
		StartedAt:  time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC),
		Late:       true,
	}

	if err := svc.SendExceptionNotice(context.Background(), "boss@example.com", event); err != nil {
		t.Fatalf("SendExceptionNotice: %v", err)
	}

	in := client.input
	if aws.ToString(in.Source) != "attendance@example.com" {
		t.Errorf("Source = %q", aws.ToString(in.Source))
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "boss@example.com" {
		t.Errorf("ToAddresses = %v", in.Destination.ToAddresses)
	}
	if got := aws.ToString(in.Message.Subject.Data); got != "Late arrival: emp-1" {
		t.Errorf("subject = %q", got)
	}
	body := aws.ToString(in.Message.Body.Text.Data)
	for _, want := range []string{"field attendance", "Late reason: none given", "Location: not available"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestSendExceptionNotice_Emergency(t *testing.T) {
	lat, lng := 44.43, 26.1
	subject, body := exceptionNotice(messaging.AttendanceExceptionEvent{
		EmployeeID: "emp-2",
		Kind:       model.KindOffice,
		Emergency:  true,
		Latitude:   &lat,
		Longitude:  &lng,
	})

	if subject != "Emergency attendance: emp-2" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Location: 44.430000, 26.100000") {
		t.Errorf("body lacks coordinates:\n%s", body)
	}
	if strings.Contains(body, "Late reason") {
		t.Errorf("on-time emergency should not mention a late reason:\n%s", body)
	}
}

func TestSendExceptionNotice_Error(t *testing.T) {
	boom := errors.New("quota exceeded")
	svc := NewSESEmailService(&mockSES{err: boom}, "a@example.com")

	if err := svc.SendExceptionNotice(context.Background(), "b@example.com", messaging.AttendanceExceptionEvent{}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped SES error, got %v", err)
	}
}
