package shell

import (
	"context"
	"errors"

	"busjp/internal/domain"
)

// ErrLocationUnavailable is returned when the platform could not produce a
// position (permission denied, no fix, ...).
var ErrLocationUnavailable = errors.New("location unavailable")

// Locator is a one-shot "where am I" request
type Locator interface {
	Locate(ctx context.Context) (domain.LatLng, error)
}

// LocatorFunc adapts a function to Locator
type LocatorFunc func(ctx context.Context) (domain.LatLng, error)

func (f LocatorFunc) Locate(ctx context.Context) (domain.LatLng, error) {
	return f(ctx)
}
