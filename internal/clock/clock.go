// Package clock declares the time abstractions shared by the store and the
// generator so tests can drive ticks deterministically.
package clock

import "time"

// Clock returns the current time and builds tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}
