package core

import (
	"context"
	"errors"
	"sync"

	"attendance.service/internal/core/model"
	"attendance.service/internal/ports/messaging"
)

// ── Fake AttendanceAPI ──

type fakeAPI struct {
	mu sync.Mutex

	// statuses are served in order; the last one repeats.
	statuses  []*model.AttendanceSnapshot
	statusErr error

	// punchInErrs are consumed one per call; a nil entry or an empty
	// queue means success.
	punchInErrs []error
	punchOutErr error
	breakErr    error

	fetchCalls    int
	punchInCalls  int
	punchOutCalls int
	breakCalls    int

	punchIns  []model.PunchInRequest
	punchOuts []model.PunchOutRequest
	breaks    []model.BreakDirection

	onPunchIn func(model.PunchInRequest)

	// gate, when set, holds PunchIn until closed; entered is signalled
	// first.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) FetchStatus(_ context.Context) (*model.AttendanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, errors.New("no status configured")
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	out := *s
	return &out, nil
}

func (f *fakeAPI) PunchIn(_ context.Context, req model.PunchInRequest) (*model.ActionResult, error) {
	f.mu.Lock()
	f.punchInCalls++
	f.punchIns = append(f.punchIns, req)
	var err error
	if len(f.punchInErrs) > 0 {
		err = f.punchInErrs[0]
		f.punchInErrs = f.punchInErrs[1:]
	}
	hook, gate, entered := f.onPunchIn, f.gate, f.entered
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &model.ActionResult{Message: "punched in"}, nil
}

func (f *fakeAPI) PunchOut(_ context.Context, req model.PunchOutRequest) (*model.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.punchOutCalls++
	f.punchOuts = append(f.punchOuts, req)
	if f.punchOutErr != nil {
		return nil, f.punchOutErr
	}
	return &model.ActionResult{Message: "punched out"}, nil
}

func (f *fakeAPI) Break(_ context.Context, dir model.BreakDirection) (*model.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.breakCalls++
	f.breaks = append(f.breaks, dir)
	if f.breakErr != nil {
		return nil, f.breakErr
	}
	return &model.ActionResult{Message: "break " + string(dir)}, nil
}

func (f *fakeAPI) setStatuses(s ...*model.AttendanceSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = s
	f.statusErr = nil
}

func (f *fakeAPI) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls + f.punchInCalls + f.punchOutCalls + f.breakCalls
}

func (f *fakeAPI) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// ── Fake LocationProvider ──

type fakeLocation struct {
	mu sync.Mutex

	granted bool
	permErr error
	geo     model.Coordinates
	geoErr  error
	// hang makes CurrentCoordinates ignore its context and never return.
	hang bool

	permissionCalls int
	coordinateCalls int
}

func grantedLocation(lat, lng float64) *fakeLocation {
	return &fakeLocation{granted: true, geo: model.Coordinates{Latitude: lat, Longitude: lng}}
}

func (f *fakeLocation) RequestPermission(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissionCalls++
	return f.granted, f.permErr
}

func (f *fakeLocation) CurrentCoordinates(_ context.Context) (model.Coordinates, error) {
	f.mu.Lock()
	f.coordinateCalls++
	hang, geo, err := f.hang, f.geo, f.geoErr
	f.mu.Unlock()

	if hang {
		select {}
	}
	return geo, err
}

func (f *fakeLocation) coordinates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coordinateCalls
}

// ── Fake Publisher ──

type fakePublisher struct {
	mu     sync.Mutex
	events []messaging.AttendanceExceptionEvent
	err    error
}

func (f *fakePublisher) PublishException(_ context.Context, e messaging.AttendanceExceptionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

// ── Snapshot fixtures ──

func idle() model.SessionStatus {
	return model.SessionStatus{Label: model.LabelNotStarted, CanStart: true}
}

func running() model.SessionStatus {
	return model.SessionStatus{Label: model.LabelRunning, CanEnd: true, WorkingDuration: "00:10"}
}

func completed() model.SessionStatus {
	return model.SessionStatus{Label: model.LabelCompleted, WorkingDuration: "08:00"}
}

func snapshot(office, field, brk model.SessionStatus) *model.AttendanceSnapshot {
	return &model.AttendanceSnapshot{Office: office, Field: field, Break: brk}
}
