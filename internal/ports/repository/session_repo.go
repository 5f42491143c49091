package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attendance.service/internal/core/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Schema creates the attendance_sessions table. The partial unique index
// keeps at most one open session per employee and kind.
const Schema = `
CREATE TABLE IF NOT EXISTS attendance_sessions (
    id              UUID PRIMARY KEY,
    employee_id     TEXT NOT NULL,
    kind            TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    ended_at        TIMESTAMPTZ,
    start_latitude  DOUBLE PRECISION,
    start_longitude DOUBLE PRECISION,
    end_latitude    DOUBLE PRECISION,
    end_longitude   DOUBLE PRECISION,
    late_reason     TEXT NOT NULL DEFAULT '',
    late            BOOLEAN NOT NULL DEFAULT FALSE,
    emergency       BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS attendance_sessions_one_open
    ON attendance_sessions (employee_id, kind) WHERE ended_at IS NULL;
CREATE INDEX IF NOT EXISTS attendance_sessions_employee_started
    ON attendance_sessions (employee_id, started_at);
`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// SessionRepository is the concrete implementation for a PostgreSQL database.
type SessionRepository struct {
	DB *sql.DB
}

// NewSessionRepository create new instance
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// Migrate applies Schema.
func (r *SessionRepository) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply attendance schema: %w", err)
	}
	return nil
}

// CreateSession inserts a new open session.
func (r *SessionRepository) CreateSession(ctx context.Context, s *model.AttendanceSession) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", s.EmployeeID))

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	lat, lng := splitCoordinates(s.StartLocation)

	query := `INSERT INTO attendance_sessions
                  (id, employee_id, kind, started_at, start_latitude, start_longitude, late_reason, late, emergency)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.DB.ExecContext(ctx, query,
		s.ID, s.EmployeeID, string(s.Kind), s.StartedAt, lat, lng, s.LateReason, s.Late, s.Emergency)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrOpenSessionExists
		}
		return err
	}
	return nil
}

// CloseSession ends an open session.
func (r *SessionRepository) CloseSession(ctx context.Context, id string, endedAt time.Time, geo *model.Coordinates) error {
	lat, lng := splitCoordinates(geo)

	query := `UPDATE attendance_sessions
              SET ended_at = $1,
                  end_latitude = $2,
                  end_longitude = $3
              WHERE id = $4 AND ended_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, endedAt, lat, lng, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// FindOpenSession gets the open session of a kind for an employee.
func (r *SessionRepository) FindOpenSession(ctx context.Context, employeeID string, kind model.SessionKind) (*model.AttendanceSession, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))

	query := `SELECT ` + sessionColumns + `
              FROM attendance_sessions
              WHERE employee_id = $1 AND kind = $2 AND ended_at IS NULL
              ORDER BY started_at DESC
              LIMIT 1`

	s, err := scanSession(r.DB.QueryRowContext(ctx, query, employeeID, string(kind)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListDaySessions fetches the sessions relevant to one work day.
func (r *SessionRepository) ListDaySessions(ctx context.Context, employeeID string, from, to time.Time) ([]model.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + `
              FROM attendance_sessions
              WHERE employee_id = $1
                AND ((started_at >= $2 AND started_at < $3) OR ended_at IS NULL)
              ORDER BY started_at`

	rows, err := r.DB.QueryContext(ctx, query, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttendanceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

const sessionColumns = `id, employee_id, kind, started_at, ended_at,
                     start_latitude, start_longitude, end_latitude, end_longitude,
                     late_reason, late, emergency`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.AttendanceSession, error) {
	var (
		s                  model.AttendanceSession
		kind               string
		endedAt            sql.NullTime
		startLat, startLng sql.NullFloat64
		endLat, endLng     sql.NullFloat64
	)
	err := row.Scan(&s.ID, &s.EmployeeID, &kind, &s.StartedAt, &endedAt,
		&startLat, &startLng, &endLat, &endLng,
		&s.LateReason, &s.Late, &s.Emergency)
	if err != nil {
		return nil, err
	}

	s.Kind = model.SessionKind(kind)
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	s.StartLocation = joinCoordinates(startLat, startLng)
	s.EndLocation = joinCoordinates(endLat, endLng)
	return &s, nil
}

func splitCoordinates(geo *model.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if geo == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: geo.Latitude, Valid: true}, sql.NullFloat64{Float64: geo.Longitude, Valid: true}
}

func joinCoordinates(lat, lng sql.NullFloat64) *model.Coordinates {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &model.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
}
