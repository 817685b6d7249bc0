package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// PrometheusSink exports notification feed metrics via Prometheus.
type PrometheusSink struct {
	added   *prometheus.CounterVec
	removed *prometheus.CounterVec
	read    prometheus.Counter
	unread  prometheus.Gauge
	total   prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		added: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_notifications_added_total",
			Help: "Notifications added, partitioned by severity and category.",
		}, []string{"severity", "category"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_notifications_removed_total",
			Help: "Notifications removed, partitioned by reason.",
		}, []string{"reason"}),
		read: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetwatch_notifications_read_total",
			Help: "Notifications transitioned from unread to read.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetwatch_notifications_unread",
			Help: "Current number of unread notifications.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetwatch_notifications_total",
			Help: "Current number of notifications held.",
		}),
	}
	for _, collector := range []prometheus.Collector{s.added, s.removed, s.read, s.unread, s.total} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register notification collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Gauges track the last event.
func (s *PrometheusSink) Consume(_ context.Context, batch []notify.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt notify.Event) {
	switch evt.Kind {
	case notify.EventAdded:
		category := evt.Notification.Category
		if category == "" {
			category = "uncategorized"
		}
		s.added.WithLabelValues(string(evt.Notification.Severity), category).Inc()
	case notify.EventRead:
		s.read.Inc()
	case notify.EventAllRead:
		s.read.Add(float64(len(evt.IDs)))
	case notify.EventDeleted, notify.EventEvicted:
		s.removed.WithLabelValues(string(evt.Kind)).Inc()
	case notify.EventCleared:
		s.removed.WithLabelValues(string(evt.Kind)).Add(float64(len(evt.IDs)))
	}
	s.unread.Set(float64(evt.Unread))
	s.total.Set(float64(evt.Total))
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
