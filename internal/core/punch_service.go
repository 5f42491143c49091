package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"attendance.service/internal/core/model"
	"attendance.service/internal/ports/messaging"
	"attendance.service/internal/ports/repository"
	"github.com/rs/zerolog/log"
)

// PunchRules are the attendance policy knobs of the server.
type PunchRules struct {
	Location *time.Location
	// LateThreshold is the offset from midnight after which a punch-in
	// needs a late reason.
	LateThreshold time.Duration
	// PunchInCutoff is the offset from midnight after which only emergency
	// punch-ins are accepted.
	PunchInCutoff time.Duration
	LateReasons   []model.LateReasonOption
}

// NewLateReasonOptions numbers reasons from 1 in the given order.
func NewLateReasonOptions(reasons []string) []model.LateReasonOption {
	out := make([]model.LateReasonOption, 0, len(reasons))
	for i, r := range reasons {
		out = append(out, model.LateReasonOption{ID: i + 1, Reason: r})
	}
	return out
}

// PunchService holds the ground truth for attendance sessions. It is the
// server behind the attendance API the SessionController talks to.
type PunchService struct {
	repo      repository.Repository
	publisher messaging.Publisher
	rules     PunchRules
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPunchService creates the punch service. publisher may be nil when no
// notification queue is configured.
func NewPunchService(repo repository.Repository, publisher messaging.Publisher, rules PunchRules) *PunchService {
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	return &PunchService{
		repo:      repo,
		publisher: publisher,
		rules:     rules,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetClock replaces the wall clock.
func (s *PunchService) SetClock(now func() time.Time) {
	s.now = now
}

// LateReasons returns the configured late reason options.
func (s *PunchService) LateReasons() []model.LateReasonOption {
	return append([]model.LateReasonOption(nil), s.rules.LateReasons...)
}

// Status builds the attendance snapshot of an employee for today.
func (s *PunchService) Status(ctx context.Context, employeeID string) (*model.AttendanceSnapshot, error) {
	day, err := s.loadDay(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return day.snapshot(), nil
}

// PunchIn opens an office or field session.
func (s *PunchService) PunchIn(ctx context.Context, employeeID string, req model.PunchInRequest) (*model.ActionResult, error) {
	if !req.Kind.IsWork() {
		return nil, model.NewValidationError("movement_type must be %q or %q", model.KindOffice, model.KindField)
	}

	unlock := s.lock(employeeID)
	defer unlock()

	day, err := s.loadDay(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if day.open(model.KindBreak) != nil {
		return nil, model.NewValidationError("End your break before punching in")
	}
	switch day.status(req.Kind).State() {
	case model.StateRunning:
		return nil, model.NewValidationError("You are already punched in for %s attendance", req.Kind)
	case model.StateCompleted:
		return nil, model.NewValidationError("%s attendance is already completed for today", titleCase(req.Kind))
	}

	offset := day.now.Sub(day.start)
	if !req.Emergency && offset > s.rules.PunchInCutoff {
		return nil, model.NewValidationError("Punch-in closed at %s. Use emergency attendance instead", clock(s.rules.PunchInCutoff))
	}

	reason := strings.TrimSpace(req.Reason)
	late := offset > s.rules.LateThreshold
	if late && reason == "" {
		return nil, &model.LateReasonRequiredError{
			Options: s.LateReasons(),
			Message: fmt.Sprintf("You are late (after %s). Please provide a reason", clock(s.rules.LateThreshold)),
		}
	}

	session := &model.AttendanceSession{
		EmployeeID:    employeeID,
		Kind:          req.Kind,
		StartedAt:     day.now,
		StartLocation: req.Geo,
		LateReason:    reason,
		Late:          late,
		Emergency:     req.Emergency,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		if errors.Is(err, repository.ErrOpenSessionExists) {
			return nil, model.NewValidationError("You are already punched in for %s attendance", req.Kind)
		}
		return nil, fmt.Errorf("failed to create %s session: %w", req.Kind, err)
	}

	if late || req.Emergency {
		s.publishException(ctx, session)
	}

	log.Ctx(ctx).Info().
		Str("employee_id", employeeID).
		Str("kind", string(req.Kind)).
		Bool("late", late).
		Bool("emergency", req.Emergency).
		Msg("Punch-in recorded")

	msg := fmt.Sprintf("%s punch-in recorded", titleCase(req.Kind))
	if req.Emergency {
		msg = "Emergency attendance recorded"
	}
	return &model.ActionResult{Message: msg}, nil
}

// PunchOut closes the running office or field session.
func (s *PunchService) PunchOut(ctx context.Context, employeeID string, req model.PunchOutRequest) (*model.ActionResult, error) {
	if !req.Kind.IsWork() {
		return nil, model.NewValidationError("movement_type must be %q or %q", model.KindOffice, model.KindField)
	}

	unlock := s.lock(employeeID)
	defer unlock()

	day, err := s.loadDay(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if day.open(model.KindBreak) != nil {
		return nil, model.NewValidationError("End your break before punching out")
	}
	open := day.open(req.Kind)
	if open == nil {
		return nil, model.NewValidationError("No running %s session to punch out of", req.Kind)
	}

	if err := s.repo.CloseSession(ctx, open.ID, day.now, req.Geo); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, model.NewValidationError("No running %s session to punch out of", req.Kind)
		}
		return nil, fmt.Errorf("failed to close %s session: %w", req.Kind, err)
	}

	log.Ctx(ctx).Info().Str("employee_id", employeeID).Str("kind", string(req.Kind)).Msg("Punch-out recorded")

	return &model.ActionResult{
		Message: fmt.Sprintf("%s punch-out recorded. Session time %s", titleCase(req.Kind), formatDuration(open.Duration(day.now))),
	}, nil
}

// StartBreak opens a break while a work session is running.
func (s *PunchService) StartBreak(ctx context.Context, employeeID string) (*model.ActionResult, error) {
	unlock := s.lock(employeeID)
	defer unlock()

	day, err := s.loadDay(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if day.open(model.KindBreak) != nil {
		return nil, model.NewValidationError("You are already on a break")
	}
	if !day.working() {
		return nil, model.NewValidationError("Punch in before taking a break")
	}

	session := &model.AttendanceSession{
		EmployeeID: employeeID,
		Kind:       model.KindBreak,
		StartedAt:  day.now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		if errors.Is(err, repository.ErrOpenSessionExists) {
			return nil, model.NewValidationError("You are already on a break")
		}
		return nil, fmt.Errorf("failed to start break: %w", err)
	}
	return &model.ActionResult{Message: "Break started"}, nil
}

// EndBreak closes the running break, including one opened on an earlier day.
func (s *PunchService) EndBreak(ctx context.Context, employeeID string) (*model.ActionResult, error) {
	unlock := s.lock(employeeID)
	defer unlock()

	open, err := s.repo.FindOpenSession(ctx, employeeID, model.KindBreak)
	if err != nil {
		return nil, fmt.Errorf("failed to load break: %w", err)
	}
	if open == nil {
		return nil, model.NewValidationError("You are not on a break")
	}
	now := s.now().In(s.rules.Location)
	if err := s.repo.CloseSession(ctx, open.ID, now, nil); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, model.NewValidationError("You are not on a break")
		}
		return nil, fmt.Errorf("failed to end break: %w", err)
	}
	return &model.ActionResult{Message: fmt.Sprintf("Break ended after %s", formatDuration(open.Duration(now)))}, nil
}

func (s *PunchService) publishException(ctx context.Context, session *model.AttendanceSession) {
	if s.publisher == nil {
		return
	}
	event := messaging.AttendanceExceptionEvent{
		SessionID:  session.ID,
		EmployeeID: session.EmployeeID,
		Kind:       session.Kind,
		StartedAt:  session.StartedAt,
		Late:       session.Late,
		Emergency:  session.Emergency,
		LateReason: session.LateReason,
	}
	if session.StartLocation != nil {
		lat, lng := session.StartLocation.Latitude, session.StartLocation.Longitude
		event.Latitude, event.Longitude = &lat, &lng
	}
	if err := s.publisher.PublishException(ctx, event); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("session_id", session.ID).Msg("Failed to publish attendance exception")
	}
}

// lock serialises mutations per employee.
func (s *PunchService) lock(employeeID string) func() {
	s.mu.Lock()
	m, ok := s.locks[employeeID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[employeeID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *PunchService) loadDay(ctx context.Context, employeeID string) (*workDay, error) {
	now := s.now().In(s.rules.Location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.rules.Location)

	sessions, err := s.repo.ListDaySessions(ctx, employeeID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return &workDay{now: now, start: start, sessions: sessions}, nil
}

// workDay is the set of sessions that determine today's status.
type workDay struct {
	now      time.Time
	start    time.Time
	sessions []model.AttendanceSession
}

func (d *workDay) open(kind model.SessionKind) *model.AttendanceSession {
	for i := range d.sessions {
		if d.sessions[i].Kind == kind && d.sessions[i].Open() {
			return &d.sessions[i]
		}
	}
	return nil
}

func (d *workDay) working() bool {
	return d.open(model.KindOffice) != nil || d.open(model.KindField) != nil
}

// status derives the SessionStatus of one kind.
func (d *workDay) status(kind model.SessionKind) model.SessionStatus {
	var (
		total   time.Duration
		seen    bool
		last    *time.Time
		running bool
	)
	for i := range d.sessions {
		s := &d.sessions[i]
		if s.Kind != kind {
			continue
		}
		seen = true
		total += s.Duration(d.now)
		at := s.StartedAt
		if s.EndedAt != nil {
			at = *s.EndedAt
		} else {
			running = true
		}
		if last == nil || at.After(*last) {
			t := at
			last = &t
		}
	}

	st := model.SessionStatus{LastActionTime: last}
	if seen {
		st.WorkingDuration = formatDuration(total)
	}

	if kind == model.KindBreak {
		switch {
		case running:
			st.Label, st.CanEnd = model.LabelOnBreak, true
		case d.working():
			st.Label, st.CanStart = model.LabelAvailable, true
		default:
			st.Label = model.LabelUnavailable
		}
		return st
	}

	switch {
	case running:
		st.Label, st.CanEnd = model.LabelRunning, true
	case seen:
		st.Label = model.LabelCompleted
	default:
		st.Label, st.CanStart = model.LabelNotStarted, true
	}
	return st
}

func (d *workDay) snapshot() *model.AttendanceSnapshot {
	snap := &model.AttendanceSnapshot{
		Office:    d.status(model.KindOffice),
		Field:     d.status(model.KindField),
		Break:     d.status(model.KindBreak),
		FetchedAt: d.now,
	}
	if snap.Office.State() != model.StateIdle || snap.Field.State() != model.StateIdle {
		snap.WorklogValidation = model.WorklogValidation{CanAddWorklog: true, Message: "Worklog can be added for today"}
	} else {
		snap.WorklogValidation = model.WorklogValidation{Message: "Punch in before adding a worklog"}
	}
	return snap
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func clock(offset time.Duration) string {
	return formatDuration(offset)
}

func titleCase(kind model.SessionKind) string {
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
