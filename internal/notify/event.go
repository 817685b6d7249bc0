package notify

import "time"

// EventKind names the store mutation an Event describes.
type EventKind string

// Supported event kinds.
const (
	EventAdded   EventKind = "added"
	EventRead    EventKind = "read"
	EventAllRead EventKind = "all_read"
	EventDeleted EventKind = "deleted"
	EventCleared EventKind = "cleared"
	EventEvicted EventKind = "evicted"
)

// Event is published for every store mutation, after it has been applied.
type Event struct {
	Kind EventKind `json:"kind"`
	// Notification is a copy of the affected record for single-record events.
	Notification *Notification `json:"notification,omitempty"`
	// IDs lists the affected records for bulk events.
	IDs []string `json:"ids,omitempty"`
	// Unread is the unread count after the mutation.
	Unread int `json:"unread"`
	// Total is the collection size after the mutation.
	Total int       `json:"total"`
	At    time.Time `json:"at"`
}

// Emitter receives store events. The events hub satisfies it so the store
// stays agnostic about how events are batched or delivered.
type Emitter interface {
	Emit(evt Event)
}
