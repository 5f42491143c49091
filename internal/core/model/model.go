package model

import (
	"fmt"
	"time"
)

// SessionKind is the category of tracked time.
type SessionKind string

const (
	KindOffice SessionKind = "office"
	KindField  SessionKind = "field"
	KindBreak  SessionKind = "break"
)

// Kinds lists every session kind in display order.
var Kinds = []SessionKind{KindOffice, KindField, KindBreak}

// ParseSessionKind accepts the wire names used by the attendance API.
func ParseSessionKind(s string) (SessionKind, error) {
	switch SessionKind(s) {
	case KindOffice, KindField, KindBreak:
		return SessionKind(s), nil
	}
	return "", fmt.Errorf("unknown session kind %q", s)
}

// IsWork reports whether the kind is a punchable work session (office or field).
func (k SessionKind) IsWork() bool {
	return k == KindOffice || k == KindField
}

// SessionState is the lifecycle position of a session kind as derived from
// its server-provided flags.
type SessionState string

const (
	StateIdle      SessionState = "IDLE"
	StateRunning   SessionState = "RUNNING"
	StateCompleted SessionState = "COMPLETED"
)

// Labels used by the attendance API.
const (
	LabelNotStarted  = "Not Started"
	LabelRunning     = "Running"
	LabelCompleted   = "Completed"
	LabelOnBreak     = "On Break"
	LabelAvailable   = "Available"
	LabelUnavailable = "Unavailable"
)

// SessionStatus is the server's view of one session kind.
type SessionStatus struct {
	Label           string     `json:"label"`
	CanStart        bool       `json:"can_start"`
	CanEnd          bool       `json:"can_end"`
	LastActionTime  *time.Time `json:"last_action_time,omitempty"`
	WorkingDuration string     `json:"working_duration,omitempty"`
}

// State derives the lifecycle state from the start/end flags.
func (s SessionStatus) State() SessionState {
	switch {
	case s.CanEnd:
		return StateRunning
	case s.CanStart:
		return StateIdle
	default:
		return StateCompleted
	}
}

// WorklogValidation is an advisory, non-blocking message about whether a
// worklog entry can still be added today.
type WorklogValidation struct {
	CanAddWorklog bool   `json:"can_add_worklog"`
	Message       string `json:"message,omitempty"`
}

// AttendanceSnapshot is the complete server picture of all session statuses
// at one point in time. A new snapshot always replaces the previous one.
type AttendanceSnapshot struct {
	Office            SessionStatus     `json:"office"`
	Field             SessionStatus     `json:"field"`
	Break             SessionStatus     `json:"break"`
	WorklogValidation WorklogValidation `json:"worklog_validation"`
	FetchedAt         time.Time         `json:"fetched_at"`
}

// Status returns the status for kind.
func (s *AttendanceSnapshot) Status(kind SessionKind) SessionStatus {
	switch kind {
	case KindOffice:
		return s.Office
	case KindField:
		return s.Field
	default:
		return s.Break
	}
}

// BreakActive reports whether a break is running. While it is, office and
// field sessions can be neither started nor ended.
func (s *AttendanceSnapshot) BreakActive() bool {
	return s.Break.CanEnd
}

// Validate rejects snapshots where a kind claims to be both startable and
// endable.
func (s *AttendanceSnapshot) Validate() error {
	for _, kind := range Kinds {
		st := s.Status(kind)
		if st.CanStart && st.CanEnd {
			return fmt.Errorf("%w: %s has both can_start and can_end set", ErrMalformedSnapshot, kind)
		}
	}
	return nil
}

// Coordinates is a device location fix.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LateReasonOption is a server-supplied reason for a late punch-in.
type LateReasonOption struct {
	ID     int    `json:"id"`
	Reason string `json:"reason"`
}

// PendingAction describes a punch-in waiting for a late reason.
type PendingAction struct {
	Kind        SessionKind `json:"kind"`
	IsEmergency bool        `json:"is_emergency"`
}

// PunchInRequest is one punch-in attempt. Geo is nil when no location fix
// could be obtained; Reason is empty unless a late reason is being supplied.
type PunchInRequest struct {
	Kind      SessionKind
	Geo       *Coordinates
	Reason    string
	Emergency bool
}

// PunchOutRequest ends a running office or field session.
type PunchOutRequest struct {
	Kind SessionKind
	Geo  *Coordinates
}

// BreakDirection selects the break endpoint.
type BreakDirection string

const (
	BreakStart BreakDirection = "start"
	BreakEnd   BreakDirection = "end"
)

// ActionResult is the server acknowledgement of a mutating request.
type ActionResult struct {
	Message string `json:"message"`
}
