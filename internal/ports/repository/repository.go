package repository

import (
	"context"
	"errors"
	"time"

	"attendance.service/internal/core/model"
)

// ErrOpenSessionExists is returned when a second open session of the same
// kind is created for an employee.
var ErrOpenSessionExists = errors.New("an open session of this kind already exists")

// ErrSessionNotFound is returned when closing a session that is missing or
// already closed.
var ErrSessionNotFound = errors.New("open session not found")

// Repository contract
type Repository interface {
	// CreateSession stores s and assigns its ID.
	CreateSession(ctx context.Context, s *model.AttendanceSession) error
	// CloseSession sets the end time and location of an open session.
	CloseSession(ctx context.Context, id string, endedAt time.Time, geo *model.Coordinates) error
	// FindOpenSession returns the open session of kind, or nil if none.
	FindOpenSession(ctx context.Context, employeeID string, kind model.SessionKind) (*model.AttendanceSession, error)
	// ListDaySessions returns sessions started in [from, to) plus any
	// session still open, ordered by start time.
	ListDaySessions(ctx context.Context, employeeID string, from, to time.Time) ([]model.AttendanceSession, error)
}
