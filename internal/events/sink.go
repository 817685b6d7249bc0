package events

import (
	"context"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// Sink consumes batches of store events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []notify.Event) error
	Close(ctx context.Context) error
}
