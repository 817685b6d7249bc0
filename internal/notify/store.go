package notify

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultSubscriptionBuffer = 64
	dropLogInterval           = 5 * time.Second
)

// Options configures a Store.
//   - Clock: source of notification timestamps (defaults to UTC wall clock).
//   - IDs: id generator; on failure the store falls back to a local sequence.
//   - MaxEntries: retention cap; 0 keeps every notification.
//   - Emitter: optional receiver of every event (e.g. the events hub).
//   - Logger: optional structured logger.
type Options struct {
	Clock      Clock
	IDs        IDGenerator
	MaxEntries int
	Emitter    Emitter
	Logger     *zap.Logger
}

// Store is the single in-memory holder of the session's notifications. It is
// safe for concurrent use; every mutation is serialized so events are observed
// in mutation order.
type Store struct {
	mu sync.RWMutex
	// items is kept oldest-first; List reverses it.
	items  []Notification
	unread int
	seq    uint64

	subs map[*Subscription]struct{}

	clock      Clock
	ids        IDGenerator
	maxEntries int
	emitter    Emitter
	logger     *zap.Logger
	dropLog    rate.Sometimes
}

// NewStore builds an empty Store.
func NewStore(opts Options) *Store {
	clk := opts.Clock
	if clk == nil {
		clk = utcClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxEntries := opts.MaxEntries
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Store{
		subs:       make(map[*Subscription]struct{}),
		clock:      clk,
		ids:        opts.IDs,
		maxEntries: maxEntries,
		emitter:    opts.Emitter,
		logger:     logger,
		dropLog:    rate.Sometimes{Interval: dropLogInterval},
	}
}

// Add records a new unread notification at the head of the collection and
// returns it. It cannot fail; alerting is left to event subscribers.
func (s *Store) Add(d Draft) Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Make room first so no event reports more entries than the cap.
	for s.maxEntries > 0 && len(s.items) >= s.maxEntries {
		oldest := s.items[0]
		s.items = append(s.items[:0:0], s.items[1:]...)
		if !oldest.Read {
			s.unread--
		}
		s.publish(Event{Kind: EventEvicted, Notification: &oldest})
	}

	n := d.build(s.nextID(), s.clock.Now())
	s.items = append(s.items, n)
	s.unread++
	added := n
	s.publish(Event{Kind: EventAdded, Notification: &added})
	return n
}

// MarkAsRead flags the notification as read. It reports whether the state
// changed; unknown ids and already-read notifications are no-ops.
func (s *Store) MarkAsRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.items[i].Read {
		return false
	}
	s.items[i].Read = true
	s.unread--
	n := s.items[i]
	s.publish(Event{Kind: EventRead, Notification: &n})
	return true
}

// MarkAllAsRead flags every notification as read and returns how many changed.
func (s *Store) MarkAllAsRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Read {
			continue
		}
		s.items[i].Read = true
		changed = append(changed, s.items[i].ID)
	}
	s.unread = 0
	if len(changed) > 0 {
		s.publish(Event{Kind: EventAllRead, IDs: changed})
	}
	return len(changed)
}

// Clear removes every notification and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		ids = append(ids, s.items[i].ID)
	}
	s.items = nil
	s.unread = 0
	s.publish(Event{Kind: EventCleared, IDs: ids})
	return len(ids)
}

// Delete removes the notification with the given id. It reports whether a
// notification was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	n := s.items[i]
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	if !n.Read {
		s.unread--
	}
	s.publish(Event{Kind: EventDeleted, Notification: &n})
	return true
}

// List returns a copy of the collection, newest first.
func (s *Store) List() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Get returns the notification with the given id.
func (s *Store) Get(id string) (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return Notification{}, false
	}
	return s.items[i], true
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Len returns the number of notifications held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns the collection and unread count observed atomically.
func (s *Store) Snapshot() ([]Notification, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), s.unread
}

// Subscribe registers a new subscriber. Events are delivered without blocking
// the store: when the buffer is full the event is dropped for that subscriber.
func (s *Store) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{store: s, ch: make(chan Event, buffer)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// SubscribeWithSnapshot registers a subscriber and captures the collection in
// one step, so the first delivered event follows the returned state exactly.
func (s *Store) SubscribeWithSnapshot(buffer int) (*Subscription, []Notification, int) {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{store: s, ch: make(chan Event, buffer)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
	return sub, s.snapshot(), s.unread
}

// Close releases every subscription. The store remains usable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

func (s *Store) snapshot() []Notification {
	out := make([]Notification, len(s.items))
	for i, n := range s.items {
		out[len(s.items)-1-i] = n
	}
	return out
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) nextID() string {
	s.seq++
	if s.ids != nil {
		id, err := s.ids.NewID()
		if err == nil {
			return id
		}
		s.logger.Warn("id generation failed, using local sequence", zap.Error(err))
	}
	return fmt.Sprintf("n-%020d", s.seq)
}

// publish must be called with s.mu held.
func (s *Store) publish(evt Event) {
	evt.Unread = s.unread
	evt.Total = len(s.items)
	evt.At = s.clock.Now()
	for sub := range s.subs {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
			s.dropLog.Do(func() {
				s.logger.Warn("notification event dropped for slow subscriber",
					zap.String("kind", string(evt.Kind)),
					zap.Int64("dropped", sub.dropped.Load()),
				)
			})
		}
	}
	if s.emitter != nil {
		s.emitter.Emit(evt)
	}
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
}

// Subscription is a live feed of store events.
type Subscription struct {
	store   *Store
	ch      chan Event
	dropped atomic.Int64
}

// Events returns the channel events are delivered on. It is closed when the
// subscription or the store is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call multiple times.
func (s *Subscription) Close() {
	s.store.unsubscribe(s)
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
