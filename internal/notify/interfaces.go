package notify

import "time"

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces notification IDs. IDs must sort in generation order.
type IDGenerator interface {
	NewID() (string, error)
}
