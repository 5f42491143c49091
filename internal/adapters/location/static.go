// Package location provides LocationProvider implementations for hosts
// without a platform location service.
package location

import (
	"context"

	"attendance.service/internal/core/model"
)

// Static reports a fixed position. A nil position behaves like a device
// that cannot get a fix.
type Static struct {
	Granted  bool
	Position *model.Coordinates
}

// NewStatic builds a Static provider from optional coordinates.
func NewStatic(granted bool, lat, lng *float64) *Static {
	s := &Static{Granted: granted}
	if lat != nil && lng != nil {
		s.Position = &model.Coordinates{Latitude: *lat, Longitude: *lng}
	}
	return s
}

func (s *Static) RequestPermission(ctx context.Context) (bool, error) {
	return s.Granted, ctx.Err()
}

func (s *Static) CurrentCoordinates(ctx context.Context) (model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinates{}, err
	}
	if s.Position == nil {
		return model.Coordinates{}, model.ErrLocationUnavailable
	}
	return *s.Position, nil
}
