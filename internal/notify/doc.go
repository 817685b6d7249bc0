// Package notify holds the session's notification feed: the record types, the
// concurrent Store with its unread counter and subscriptions, and the filter
// and summary helpers used by presenters.
//
// The store keeps notifications newest-first. The only per-record
// transitions are unread→read and exists→deleted; every mutation publishes an
// Event to subscribers and to an optional Emitter, so alerting and metrics
// live outside the store.
package notify
