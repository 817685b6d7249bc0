// Package archive declares the audit trail of notification lifecycle events.
// The archive is write-behind only; the in-memory store is never rebuilt from it.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("archive record not found")

// RemovalReason mirrors the notification_archive.removed_reason column.
type RemovalReason string

// Removal reasons persisted in notification_archive.removed_reason.
const (
	RemovedDeleted RemovalReason = "deleted"
	RemovedCleared RemovalReason = "cleared"
	RemovedEvicted RemovalReason = "evicted"
)

// Record models one notification_archive row.
type Record struct {
	// Notification is the record as it was added.
	Notification notify.Notification
	// ReadAt is nil until the notification was marked read.
	ReadAt *time.Time
	// RemovedAt is nil while the notification is still held by the store.
	RemovedAt *time.Time
	// RemovedReason is set together with RemovedAt.
	RemovedReason *RemovalReason
}

// Repository persists notification lifecycle transitions.
type Repository interface {
	// RecordAdded inserts the notification; repeated inserts are ignored.
	RecordAdded(ctx context.Context, n notify.Notification) error
	// RecordRead stamps read_at for one notification if not already set.
	RecordRead(ctx context.Context, id string, at time.Time) error
	// RecordReadAll stamps read_at for every id in one statement.
	RecordReadAll(ctx context.Context, ids []string, at time.Time) error
	// RecordRemoved stamps removed_at and the reason for the given ids.
	RecordRemoved(ctx context.Context, ids []string, reason RemovalReason, at time.Time) error

	// Get loads one record or returns ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	// ListRecent returns records newest-first.
	ListRecent(ctx context.Context, limit, offset int) ([]Record, error)
}
