package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"attendance.service/internal/core/model"
	"attendance.service/internal/ports"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLocationTimeout bounds a single location fix.
const DefaultLocationTimeout = 20 * time.Second

// State is an immutable view of the controller handed to observers.
type State struct {
	Snapshot    *model.AttendanceSnapshot
	Stale       bool
	Pending     *model.PendingAction
	LateReasons []model.LateReasonOption
	Busy        bool
}

// AwaitingReason reports whether a punch-in is parked until the user
// supplies a late reason.
func (s State) AwaitingReason() bool {
	return s.Pending != nil
}

// SessionController owns the punch/break state machine for one user. It is
// the only writer of the attendance snapshot, the pending action and the
// late reason options.
type SessionController struct {
	api             ports.AttendanceAPI
	location        ports.LocationProvider
	locationTimeout time.Duration

	mu          sync.Mutex
	snapshot    *model.AttendanceSnapshot
	stale       bool
	pending     *model.PendingAction
	reasons     []model.LateReasonOption
	busy        bool
	detached    bool
	nextSubID   int
	subscribers map[int]func(State)
}

// ControllerOption configures a SessionController.
type ControllerOption func(*SessionController)

// WithLocationTimeout overrides DefaultLocationTimeout.
func WithLocationTimeout(d time.Duration) ControllerOption {
	return func(c *SessionController) {
		if d > 0 {
			c.locationTimeout = d
		}
	}
}

// NewSessionController wires the controller to the attendance API and the
// device location provider.
func NewSessionController(api ports.AttendanceAPI, location ports.LocationProvider, opts ...ControllerOption) *SessionController {
	c := &SessionController{
		api:             api,
		location:        location,
		locationTimeout: DefaultLocationTimeout,
		subscribers:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var tracer = otel.Tracer("attendance-controller")

// State returns a copy of the current controller state.
func (c *SessionController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers fn to receive every state change. The returned func
// removes the subscription.
func (c *SessionController) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Detach stops all state mutation and notification. Responses to requests
// still in flight are discarded when they arrive.
func (c *SessionController) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	c.subscribers = make(map[int]func(State))
}

// Refresh fetches the status from the server and replaces the snapshot
// wholesale. Concurrent refreshes are allowed; the last one to resolve wins.
func (c *SessionController) Refresh(ctx context.Context) (*model.AttendanceSnapshot, error) {
	ctx, span := tracer.Start(ctx, "attendance.refresh")
	defer span.End()

	snap, err := c.api.FetchStatus(ctx)
	if err != nil {
		return nil, c.fail(ctx, requestFailed("failed to fetch attendance status", err))
	}
	if err := snap.Validate(); err != nil {
		return nil, c.fail(ctx, &model.RequestFailedError{Message: "server returned an unusable status", Err: err})
	}

	c.apply(func() {
		c.snapshot = snap
		c.stale = false
	})

	out := *snap
	return &out, nil
}

// RequestStart punches in an office or field session.
func (c *SessionController) RequestStart(ctx context.Context, kind model.SessionKind) (*model.ActionResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.request_start",
		trace.WithAttributes(attribute.String("app.session_kind", string(kind))))
	defer span.End()

	if !kind.IsWork() {
		return nil, c.fail(ctx, model.NewValidationError("%s sessions are toggled, not punched in", kind))
	}

	err := c.begin(func() error {
		snap, err := c.currentLocked()
		if err != nil {
			return err
		}
		if snap.BreakActive() {
			return model.NewValidationError("end your break before starting a %s session", kind)
		}
		if !snap.Status(kind).CanStart {
			return model.NewValidationError("%s session cannot be started now", kind)
		}
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	defer c.end()

	geo, err := c.acquireLocation(ctx)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	return c.punchIn(ctx, model.PunchInRequest{Kind: kind, Geo: &geo})
}

// RequestEnd punches out of a running office or field session.
func (c *SessionController) RequestEnd(ctx context.Context, kind model.SessionKind) (*model.ActionResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.request_end",
		trace.WithAttributes(attribute.String("app.session_kind", string(kind))))
	defer span.End()

	if !kind.IsWork() {
		return nil, c.fail(ctx, model.NewValidationError("%s sessions are toggled, not punched out", kind))
	}

	err := c.begin(func() error {
		snap, err := c.currentLocked()
		if err != nil {
			return err
		}
		if snap.BreakActive() {
			return model.NewValidationError("end your break before ending the %s session", kind)
		}
		if !snap.Status(kind).CanEnd {
			return model.NewValidationError("%s session is not running", kind)
		}
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	defer c.end()

	geo, err := c.acquireLocation(ctx)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	res, err := c.api.PunchOut(ctx, model.PunchOutRequest{Kind: kind, Geo: &geo})
	if err != nil {
		return nil, c.fail(ctx, requestFailed("punch-out failed", err))
	}

	c.completeMutation(ctx)
	return res, nil
}

// ToggleBreak starts a break when one can be started, otherwise ends the
// running break.
func (c *SessionController) ToggleBreak(ctx context.Context) (*model.ActionResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.toggle_break")
	defer span.End()

	var dir model.BreakDirection
	err := c.begin(func() error {
		snap, err := c.currentLocked()
		if err != nil {
			return err
		}
		switch {
		case snap.Break.CanStart:
			dir = model.BreakStart
		case snap.Break.CanEnd:
			dir = model.BreakEnd
		default:
			return model.NewValidationError("break is not available now")
		}
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	defer c.end()

	span.SetAttributes(attribute.String("app.break_direction", string(dir)))

	geo, err := c.acquireLocation(ctx)
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	log.Ctx(ctx).Debug().
		Str("direction", string(dir)).
		Float64("latitude", geo.Latitude).
		Float64("longitude", geo.Longitude).
		Msg("Toggling break")

	res, err := c.api.Break(ctx, dir)
	if err != nil {
		return nil, c.fail(ctx, requestFailed("break request failed", err))
	}

	c.completeMutation(ctx)
	return res, nil
}

// ResubmitWithReason repeats the parked punch-in with the user's late reason.
// Location is best effort here; the request goes out without coordinates if
// no fix is available.
func (c *SessionController) ResubmitWithReason(ctx context.Context, reason string) (*model.ActionResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.resubmit_with_reason")
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, c.fail(ctx, model.NewValidationError("reason required"))
	}

	var pending model.PendingAction
	err := c.begin(func() error {
		if c.pending == nil {
			return model.NewValidationError("no punch-in is waiting for a late reason")
		}
		pending = *c.pending
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	defer c.end()

	span.SetAttributes(
		attribute.String("app.session_kind", string(pending.Kind)),
		attribute.Bool("app.emergency", pending.IsEmergency),
	)

	return c.punchIn(ctx, model.PunchInRequest{
		Kind:      pending.Kind,
		Geo:       c.bestEffortLocation(ctx),
		Reason:    reason,
		Emergency: pending.IsEmergency,
	})
}

// RequestEmergencyStart punches in an emergency office session. The pending
// action is armed before dispatch so the user can follow up with a reason.
func (c *SessionController) RequestEmergencyStart(ctx context.Context) (*model.ActionResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.request_emergency_start")
	defer span.End()

	err := c.begin(func() error {
		snap, err := c.currentLocked()
		if err != nil {
			return err
		}
		if snap.BreakActive() {
			return model.NewValidationError("end your break before recording emergency attendance")
		}
		if snap.Office.State() != model.StateIdle {
			return model.NewValidationError("emergency attendance is only available before the office session starts")
		}
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	defer c.end()

	c.apply(func() {
		c.pending = &model.PendingAction{Kind: model.KindOffice, IsEmergency: true}
		c.reasons = nil
	})

	return c.punchIn(ctx, model.PunchInRequest{
		Kind:      model.KindOffice,
		Geo:       c.bestEffortLocation(ctx),
		Emergency: true,
	})
}

// CancelPendingAction leaves the awaiting-reason sub-state without sending
// anything.
func (c *SessionController) CancelPendingAction() {
	c.apply(func() {
		c.pending = nil
		c.reasons = nil
	})
}

// punchIn sends req and handles the late-reason escalation. A late-reason
// rejection parks req as the pending action; success clears it.
func (c *SessionController) punchIn(ctx context.Context, req model.PunchInRequest) (*model.ActionResult, error) {
	res, err := c.api.PunchIn(ctx, req)
	if err != nil {
		var late *model.LateReasonRequiredError
		if errors.As(err, &late) {
			c.apply(func() {
				c.pending = &model.PendingAction{Kind: req.Kind, IsEmergency: req.Emergency}
				c.reasons = slices.Clone(late.Options)
			})
			return nil, c.fail(ctx, late)
		}
		return nil, c.fail(ctx, requestFailed("punch-in failed", err))
	}

	c.completeMutation(ctx)
	return res, nil
}

// completeMutation runs after every successful mutating request: it clears
// the pending action and refreshes the snapshot exactly once. Until that
// refresh succeeds the snapshot is stale and guarded actions are refused.
func (c *SessionController) completeMutation(ctx context.Context) {
	c.apply(func() {
		c.pending = nil
		c.reasons = nil
		c.stale = true
	})

	if _, err := c.Refresh(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Status refresh after attendance action failed")
	}
}

// acquireLocation asks for permission and then for a fix bounded by the
// location timeout. The provider is not trusted to honour ctx.
func (c *SessionController) acquireLocation(ctx context.Context) (model.Coordinates, error) {
	granted, err := c.location.RequestPermission(ctx)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("%w: %v", model.ErrPermissionDenied, err)
	}
	if !granted {
		return model.Coordinates{}, model.ErrPermissionDenied
	}

	lctx, cancel := context.WithTimeout(ctx, c.locationTimeout)
	defer cancel()

	type fix struct {
		geo model.Coordinates
		err error
	}
	ch := make(chan fix, 1)
	go func() {
		geo, err := c.location.CurrentCoordinates(lctx)
		ch <- fix{geo: geo, err: err}
	}()

	select {
	case f := <-ch:
		if f.err != nil {
			if errors.Is(f.err, model.ErrLocationUnavailable) {
				return model.Coordinates{}, f.err
			}
			return model.Coordinates{}, fmt.Errorf("%w: %v", model.ErrLocationUnavailable, f.err)
		}
		return f.geo, nil
	case <-lctx.Done():
		return model.Coordinates{}, fmt.Errorf("%w: %v", model.ErrLocationUnavailable, lctx.Err())
	}
}

func (c *SessionController) bestEffortLocation(ctx context.Context) *model.Coordinates {
	geo, err := c.acquireLocation(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Bool("geo_absent", true).Msg("Proceeding without coordinates")
		return nil
	}
	return &geo
}

// begin enforces the single in-flight mutation rule and runs check under the
// lock. check must not call back into the controller.
func (c *SessionController) begin(check func() error) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return model.ErrBusy
	}
	if err := check(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.busy = true
	st, subs := c.stateLocked(), c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, st)
	return nil
}

func (c *SessionController) end() {
	c.mu.Lock()
	c.busy = false
	if c.detached {
		c.mu.Unlock()
		return
	}
	st, subs := c.stateLocked(), c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, st)
}

// apply mutates controller state and notifies observers. After Detach the
// mutation is dropped.
func (c *SessionController) apply(mutate func()) {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	mutate()
	st, subs := c.stateLocked(), c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, st)
}

func (c *SessionController) currentLocked() (*model.AttendanceSnapshot, error) {
	if c.snapshot == nil {
		return nil, model.NewValidationError("attendance status not loaded yet")
	}
	if c.stale {
		return nil, model.NewValidationError("attendance status is out of date, refresh and try again")
	}
	return c.snapshot, nil
}

func (c *SessionController) stateLocked() State {
	st := State{
		Stale:       c.stale,
		Busy:        c.busy,
		LateReasons: slices.Clone(c.reasons),
	}
	if c.snapshot != nil {
		snap := *c.snapshot
		st.Snapshot = &snap
	}
	if c.pending != nil {
		p := *c.pending
		st.Pending = &p
	}
	return st
}

func (c *SessionController) subscribersLocked() []func(State) {
	subs := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}

// fail logs err and returns it unchanged.
func (c *SessionController) fail(ctx context.Context, err error) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var rf *model.RequestFailedError
	if errors.As(err, &rf) {
		log.Ctx(ctx).Error().Err(err).Msg("Attendance request failed")
	} else {
		log.Ctx(ctx).Warn().Err(err).Msg("Attendance action rejected")
	}
	return err
}

// requestFailed passes classified API errors through and wraps everything
// else as a RequestFailedError.
func requestFailed(msg string, err error) error {
	var (
		ve *model.ValidationError
		rf *model.RequestFailedError
	)
	if errors.As(err, &ve) || errors.As(err, &rf) {
		return err
	}
	return &model.RequestFailedError{Message: msg, Err: err}
}
