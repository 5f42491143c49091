package messaging

import (
	"time"

	"attendance.service/internal/core/model"
)

// Event types carried in the EventType message attribute.
const (
	EventLateArrival         = "LATE_ARRIVAL"
	EventEmergencyAttendance = "EMERGENCY_ATTENDANCE"
)

// AttendanceExceptionEvent is the JSON payload sent via SQS when a punch-in
// was late or flagged as emergency attendance.
type AttendanceExceptionEvent struct {
	SessionID  string            `json:"sessionId"`
	EmployeeID string            `json:"employeeId"`
	Kind       model.SessionKind `json:"kind"`
	StartedAt  time.Time         `json:"startedAt"`
	Late       bool              `json:"late"`
	Emergency  bool              `json:"emergency"`
	LateReason string            `json:"lateReason,omitempty"`
	Latitude   *float64          `json:"latitude,omitempty"`
	Longitude  *float64          `json:"longitude,omitempty"`
}

// Type returns the event type attribute value.
func (e AttendanceExceptionEvent) Type() string {
	if e.Emergency {
		return EventEmergencyAttendance
	}
	return EventLateArrival
}
