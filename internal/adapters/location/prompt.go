package location

import (
	"context"
	"sync"

	"attendance.service/internal/core/model"
	"attendance.service/internal/ports"
	"github.com/charmbracelet/huh"
)

// AskFunc asks the user whether location may be shared.
type AskFunc func(ctx context.Context) (bool, error)

// Consent wraps a provider and gates it behind an interactive prompt. A
// grant is remembered for the lifetime of the value; a denial is asked
// again next time.
type Consent struct {
	inner ports.LocationProvider
	ask   AskFunc

	mu      sync.Mutex
	granted bool
}

// NewConsent wraps inner. A nil ask uses a terminal confirm prompt.
func NewConsent(inner ports.LocationProvider, ask AskFunc) *Consent {
	if ask == nil {
		ask = askTerminal
	}
	return &Consent{inner: inner, ask: ask}
}

func (c *Consent) RequestPermission(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.granted {
		return true, nil
	}
	ok, err := c.ask(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	// the wrapped provider keeps its own platform gate
	ok, err = c.inner.RequestPermission(ctx)
	c.granted = ok && err == nil
	return ok, err
}

func (c *Consent) CurrentCoordinates(ctx context.Context) (model.Coordinates, error) {
	return c.inner.CurrentCoordinates(ctx)
}

func askTerminal(ctx context.Context) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Share your current location with the attendance service?").
			Affirmative("Allow").
			Negative("Deny").
			Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}
