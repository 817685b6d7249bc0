package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 1024).
//   - MaxBatchEvents: flush once this many events queue (default 100).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 250ms).
//   - SinkTimeout: per-sink timeout while flushing (default 5s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
//   - TracerProvider: source of the per-flush span (defaults to the global provider).
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 100
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropLogInterval       = 5 * time.Second

	instrumentationName = "github.com/JakeFAU/fleetwatch/internal/events"
)

// Stats counts events through the hub since it started.
type Stats struct {
	// Delivered is the number of events handed to sinks.
	Delivered int64
	// Dropped is the number of events lost to a full buffer.
	Dropped int64
	// SinkErrors counts failed Consume calls.
	SinkErrors int64
}

// Hub aggregates store events and fans them out to registered sinks. It is
// safe for concurrent use and never blocks callers, so the store can emit
// while holding its lock.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan notify.Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger
	tracer trace.Tracer

	dropLog    rate.Sometimes
	unreported atomic.Int64
	dropped    atomic.Int64
	delivered  atomic.Int64
	sinkErrors atomic.Int64
	closed     atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan notify.Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		tracer:  cfg.TracerProvider.Tracer(instrumentationName),
		dropLog: rate.Sometimes{First: 1, Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues an event for batching. It never blocks; if the buffer is full
// the event is dropped and a rate-limited warning is logged.
func (h *Hub) Emit(evt notify.Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := validate(evt); err != nil {
		h.logger.Debug("discarding invalid store event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.unreported.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("store events dropped due to backpressure",
				zap.Int64("dropped", h.unreported.Swap(0)),
				zap.Int("buffer_size", cap(h.events)),
			)
		})
	}
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Delivered:  h.delivered.Load(),
		Dropped:    h.dropped.Load(),
		SinkErrors: h.sinkErrors.Load(),
	}
}

// Close drains remaining events, flushes and closes sinks, and blocks until
// the background goroutine exits. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event hub close wait: %w", ctx.Err())
	}
}

func validate(evt notify.Event) error {
	if evt.At.IsZero() {
		return errors.New("timestamp is required")
	}
	switch evt.Kind {
	case notify.EventAdded, notify.EventRead, notify.EventDeleted, notify.EventEvicted:
		if evt.Notification == nil {
			return fmt.Errorf("%s event requires a notification", evt.Kind)
		}
	case notify.EventAllRead, notify.EventCleared:
	default:
		return fmt.Errorf("unknown event kind %q", evt.Kind)
	}
	return nil
}

// batch accumulates events until it is full or its wait expires. The wait
// starts with the first event and is not extended by later ones.
type batch struct {
	events  []notify.Event
	size    int
	wait    time.Duration
	timer   *time.Timer
	pending bool
}

func newBatch(size int, wait time.Duration) *batch {
	timer := time.NewTimer(wait)
	timer.Stop()
	return &batch{events: make([]notify.Event, 0, size), size: size, wait: wait, timer: timer}
}

// add appends evt and reports whether the batch is full.
func (b *batch) add(evt notify.Event) bool {
	b.events = append(b.events, evt)
	if len(b.events) >= b.size {
		return true
	}
	if !b.pending {
		b.timer.Reset(b.wait)
		b.pending = true
	}
	return false
}

// take returns the accumulated events and resets the batch.
func (b *batch) take() []notify.Event {
	out := append([]notify.Event(nil), b.events...)
	b.events = b.events[:0]
	b.timer.Stop()
	b.pending = false
	return out
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := newBatch(h.cfg.MaxBatchEvents, h.cfg.MaxBatchWait)
	for {
		select {
		case evt := <-h.events:
			if b.add(evt) {
				h.flush(b.take())
			}
		case <-b.timer.C:
			h.flush(b.take())
		case <-h.stopCh:
			h.drain(b)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) drain(b *batch) {
	for {
		select {
		case evt := <-h.events:
			if b.add(evt) {
				h.flush(b.take())
			}
		default:
			h.flush(b.take())
			return
		}
	}
}

func (h *Hub) flush(events []notify.Event) {
	if len(events) == 0 {
		return
	}
	base, span := h.tracer.Start(h.cfg.BaseContext, "events flush",
		trace.WithAttributes(
			attribute.Int("events.batch_size", len(events)),
			attribute.Int("events.sinks", len(h.sinks)),
		),
	)
	defer span.End()
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(base, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, events); err != nil {
			span.RecordError(err, trace.WithAttributes(attribute.String("events.sink", fmt.Sprintf("%T", sink))))
			span.SetStatus(codes.Error, "sink consume failed")
			h.sinkErrors.Add(1)
			h.logger.Warn("event sink consume failed",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Int("batch", len(events)),
				zap.Error(err),
			)
		}
		cancel()
	}
	h.delivered.Add(int64(len(events)))
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("event sink close failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
}
