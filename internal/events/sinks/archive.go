package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/fleetwatch/internal/archive"
	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// ArchiveSink writes lifecycle transitions to an archive repository.
type ArchiveSink struct {
	repo archive.Repository
}

// NewArchiveSink returns a sink backed by repo.
func NewArchiveSink(repo archive.Repository) (*ArchiveSink, error) {
	if repo == nil {
		return nil, errors.New("archive repository is required")
	}
	return &ArchiveSink{repo: repo}, nil
}

// Consume applies each event in order. It stops at the first failure so rows
// are never stamped before they are inserted.
func (s *ArchiveSink) Consume(ctx context.Context, batch []notify.Event) error {
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			return fmt.Errorf("archive %s event: %w", evt.Kind, err)
		}
	}
	return nil
}

func (s *ArchiveSink) apply(ctx context.Context, evt notify.Event) error {
	switch evt.Kind {
	case notify.EventAdded:
		return s.repo.RecordAdded(ctx, *evt.Notification)
	case notify.EventRead:
		return s.repo.RecordRead(ctx, evt.Notification.ID, evt.At)
	case notify.EventAllRead:
		if len(evt.IDs) == 0 {
			return nil
		}
		return s.repo.RecordReadAll(ctx, evt.IDs, evt.At)
	case notify.EventDeleted:
		return s.repo.RecordRemoved(ctx, []string{evt.Notification.ID}, archive.RemovedDeleted, evt.At)
	case notify.EventEvicted:
		return s.repo.RecordRemoved(ctx, []string{evt.Notification.ID}, archive.RemovedEvicted, evt.At)
	case notify.EventCleared:
		if len(evt.IDs) == 0 {
			return nil
		}
		return s.repo.RecordRemoved(ctx, evt.IDs, archive.RemovedCleared, evt.At)
	default:
		return nil
	}
}

// Close implements the Sink interface; the repository is owned by the caller.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
