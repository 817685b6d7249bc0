package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// LogSink emits structured logs for each store event. It is useful during
// development or audits where a durable archive is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []notify.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("kind", string(evt.Kind)),
			zap.Int("unread", evt.Unread),
			zap.Int("total", evt.Total),
			zap.Time("at", evt.At),
		}
		if n := evt.Notification; n != nil {
			fields = append(fields,
				zap.String("id", n.ID),
				zap.String("title", n.Title),
				zap.String("server", n.Server),
				zap.String("severity", string(n.Severity)),
				zap.String("category", n.Category),
			)
		}
		if len(evt.IDs) > 0 {
			fields = append(fields, zap.Int("affected", len(evt.IDs)))
		}
		s.logger.Info("notification event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
