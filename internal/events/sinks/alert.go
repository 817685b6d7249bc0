package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// Alert variants understood by the dashboard toast component.
const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Publisher delivers alert payloads to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Alert is the ephemeral toast raised for each new notification.
type Alert struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Variant     string          `json:"variant"`
	Severity    notify.Severity `json:"severity"`
	Server      string          `json:"server"`
	Link        string          `json:"link,omitempty"`
}

// AlertFor builds the toast payload for n.
func AlertFor(n notify.Notification) Alert {
	variant := VariantDefault
	if n.Severity == notify.SeverityCritical {
		variant = VariantDestructive
	}
	return Alert{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Message,
		Variant:     variant,
		Severity:    n.Severity,
		Server:      n.Server,
		Link:        n.Link,
	}
}

// AlertSink publishes an Alert for every added notification. Alerts are
// advisory: failures are reported but never retried, and alerts beyond the
// limiter's budget are skipped.
type AlertSink struct {
	pub     Publisher
	topic   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewAlertSink wires a publisher to the sink interface. A nil limiter means
// no cap.
func NewAlertSink(pub Publisher, topic string, limiter *rate.Limiter, logger *zap.Logger) (*AlertSink, error) {
	if pub == nil {
		return nil, errors.New("alert publisher is required")
	}
	if topic == "" {
		return nil, errors.New("alert topic is required")
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertSink{pub: pub, topic: topic, limiter: limiter, logger: logger}, nil
}

// Consume publishes alerts for the added events in the batch.
func (s *AlertSink) Consume(ctx context.Context, batch []notify.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Kind != notify.EventAdded || evt.Notification == nil {
			continue
		}
		if !s.limiter.Allow() {
			s.logger.Debug("alert skipped by rate limit", zap.String("id", evt.Notification.ID))
			continue
		}
		msgID, err := s.pub.Publish(ctx, s.topic, AlertFor(*evt.Notification))
		if err != nil {
			errs = append(errs, fmt.Errorf("publish alert %s: %w", evt.Notification.ID, err))
			continue
		}
		s.logger.Debug("alert published",
			zap.String("id", evt.Notification.ID),
			zap.String("message_id", msgID),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *AlertSink) Close(context.Context) error {
	return nil
}
