// Package system provides a real clock implementation.
package system

import (
	"time"

	"github.com/JakeFAU/fleetwatch/internal/clock"
)

// Clock implements clock.Clock using the wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// NewTicker wraps time.NewTicker.
func (Clock) NewTicker(d time.Duration) clock.Ticker {
	return ticker{t: time.NewTicker(d)}
}

type ticker struct {
	t *time.Ticker
}

func (t ticker) C() <-chan time.Time { return t.t.C }

func (t ticker) Stop() { t.t.Stop() }
