package ports

import (
	"context"

	"attendance.service/internal/core/model"
)

// AttendanceAPI is the remote service holding the ground truth for
// attendance sessions. Implementations return *model.ValidationError,
// *model.LateReasonRequiredError or *model.RequestFailedError.
type AttendanceAPI interface {
	FetchStatus(ctx context.Context) (*model.AttendanceSnapshot, error)
	PunchIn(ctx context.Context, req model.PunchInRequest) (*model.ActionResult, error)
	PunchOut(ctx context.Context, req model.PunchOutRequest) (*model.ActionResult, error)
	Break(ctx context.Context, dir model.BreakDirection) (*model.ActionResult, error)
}

// LocationProvider supplies device coordinates behind a platform permission.
type LocationProvider interface {
	// RequestPermission may prompt the user and block until they answer.
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentCoordinates returns the current fix or model.ErrLocationUnavailable.
	CurrentCoordinates(ctx context.Context) (model.Coordinates, error)
}
