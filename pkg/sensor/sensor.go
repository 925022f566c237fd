// Package sensor defines the compass and position sources the device reads.
package sensor

import (
	"context"
	"errors"
	"time"

	"ocular/pkg/geo"
)

var (
	// ErrUnavailable is returned when a sensor cannot be read.
	ErrUnavailable = errors.New("sensor unavailable")
	// ErrClosed is returned by a worker after Close.
	ErrClosed = errors.New("sensor worker closed")
)

// HeadingSource returns the signed raw X/Y axes of a magnetometer.
type HeadingSource interface {
	Read(ctx context.Context) (x, y int16, err error)
}

// PositionSource returns the current position. geo.NoFix means the receiver
// has no fix yet; that is not an error.
type PositionSource interface {
	Position(ctx context.Context) (geo.Point, error)
}

// Compass returns a heading in degrees in [0,360).
type Compass interface {
	Heading(ctx context.Context) (float64, error)
}

// Reading is one combined sample of both sensors.
type Reading struct {
	Position  geo.Point
	Heading   float64
	HeadingOK bool
	At        time.Time
}

// Sample reads both sensors. A compass failure leaves HeadingOK false; a
// position failure reports geo.NoFix. Only when both fail is an error returned.
func Sample(ctx context.Context, c Compass, p PositionSource) (Reading, error) {
	r := Reading{At: time.Now()}
	var errs []error

	if h, err := c.Heading(ctx); err == nil {
		r.Heading = h
		r.HeadingOK = true
	} else {
		errs = append(errs, err)
	}

	if pos, err := p.Position(ctx); err == nil {
		r.Position = pos
	} else {
		errs = append(errs, err)
	}

	if len(errs) == 2 {
		return r, errors.Join(errs...)
	}
	return r, nil
}
