// Package export writes JSON snapshots of the notification feed to blob storage.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

// DefaultPrefix is used when no object prefix is configured.
const DefaultPrefix = "exports"

// BlobStore persists export documents.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Lister provides the current newest-first notification list.
type Lister interface {
	List() []notify.Notification
}

// Result describes a written export. SHA256 is the hex digest of the object.
type Result struct {
	URI    string `json:"uri"`
	Count  int    `json:"count"`
	SHA256 string `json:"sha256"`
}

// Document is the JSON layout of an export object.
type Document struct {
	ExportedAt    time.Time             `json:"exported_at"`
	Filter        notify.Filter         `json:"filter"`
	Summary       notify.Summary        `json:"summary"`
	Notifications []notify.Notification `json:"notifications"`
}

// Exporter snapshots the feed through a filter and uploads it.
type Exporter struct {
	source Lister
	blobs  BlobStore
	clock  notify.Clock
	ids    notify.IDGenerator
	prefix string
}

// New constructs an Exporter. An empty prefix falls back to DefaultPrefix.
func New(source Lister, blobs BlobStore, clock notify.Clock, ids notify.IDGenerator, prefix string) (*Exporter, error) {
	switch {
	case source == nil:
		return nil, errors.New("export source is required")
	case blobs == nil:
		return nil, errors.New("export blob store is required")
	case clock == nil:
		return nil, errors.New("export clock is required")
	case ids == nil:
		return nil, errors.New("export id generator is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Exporter{source: source, blobs: blobs, clock: clock, ids: ids, prefix: prefix}, nil
}

// Export writes the filtered feed, newest-first, to <prefix>/<timestamp>-<id>.json.
func (e *Exporter) Export(ctx context.Context, filter notify.Filter) (Result, error) {
	items := filter.Apply(e.source.List())
	now := e.clock.Now().UTC()
	doc := Document{
		ExportedAt:    now,
		Filter:        filter,
		Summary:       notify.Summarize(items),
		Notifications: items,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal export: %w", err)
	}

	sum := sha256.Sum256(body)
	id, err := e.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate export id: %w", err)
	}
	name := path.Join(e.prefix, fmt.Sprintf("%s-%s.json", now.Format("20060102T150405Z"), id))
	uri, err := e.blobs.PutObject(ctx, name, "application/json", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("upload export: %w", err)
	}
	return Result{URI: uri, Count: len(items), SHA256: hex.EncodeToString(sum[:])}, nil
}
