package model

import "time"

// AttendanceSession is one stored punch-in/punch-out (or break start/end)
// pair on the server side. EndedAt is nil while the session is open.
type AttendanceSession struct {
	ID            string       `json:"id"`
	EmployeeID    string       `json:"employeeId"`
	Kind          SessionKind  `json:"kind"`
	StartedAt     time.Time    `json:"startedAt"`
	EndedAt       *time.Time   `json:"endedAt,omitempty"`
	StartLocation *Coordinates `json:"startLocation,omitempty"`
	EndLocation   *Coordinates `json:"endLocation,omitempty"`
	LateReason    string       `json:"lateReason,omitempty"`
	Late          bool         `json:"late"`
	Emergency     bool         `json:"emergency"`
}

// Open reports whether the session has not ended yet.
func (s *AttendanceSession) Open() bool {
	return s.EndedAt == nil
}

// Duration is the elapsed time of the session, measured up to now for open
// sessions.
func (s *AttendanceSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}
