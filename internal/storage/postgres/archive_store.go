// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/fleetwatch/internal/archive"
	"github.com/JakeFAU/fleetwatch/internal/notify"
)

const defaultArchiveTable = "notification_archive"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ArchiveStoreConfig controls the Postgres connection pool used for archive rows.
type ArchiveStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// EnsureSchema creates the table when it does not exist.
	EnsureSchema bool
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ArchiveStore implements archive.Repository using Postgres.
type ArchiveStore struct {
	pool  querier
	table string
}

var _ archive.Repository = (*ArchiveStore)(nil)

// NewArchiveStore creates a Postgres-backed ArchiveStore using the provided config.
func NewArchiveStore(ctx context.Context, cfg ArchiveStoreConfig) (*ArchiveStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("archive.dsn is required")
	}
	table, err := archiveTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &ArchiveStore{pool: pool, table: table}
	if cfg.EnsureSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewArchiveStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArchiveStoreWithPool(pool querier, table string) (*ArchiveStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	table, err := archiveTable(table)
	if err != nil {
		return nil, err
	}
	return &ArchiveStore{pool: pool, table: table}, nil
}

func archiveTable(table string) (string, error) {
	if table == "" {
		table = defaultArchiveTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ArchiveStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the archive table and its listing index if missing.
func (s *ArchiveStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL,
			message        TEXT NOT NULL,
			server         TEXT NOT NULL,
			severity       TEXT NOT NULL,
			category       TEXT NOT NULL,
			link           TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			read_at        TIMESTAMPTZ,
			removed_at     TIMESTAMPTZ,
			removed_reason TEXT
		);
		CREATE INDEX IF NOT EXISTS %[1]s_created_at_idx ON %[1]s (created_at DESC);
	`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// RecordAdded inserts the notification; a duplicate id is ignored.
func (s *ArchiveStore) RecordAdded(ctx context.Context, n notify.Notification) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, message, server, severity, category, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING;
	`, s.table)
	_, err := s.pool.Exec(ctx, query,
		n.ID,
		n.Title,
		n.Message,
		n.Server,
		string(n.Severity),
		n.Category,
		n.Link,
		n.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert archive row: %w", err)
	}
	return nil
}

// RecordRead stamps read_at for one notification.
func (s *ArchiveStore) RecordRead(ctx context.Context, id string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET read_at = $1 WHERE id = $2 AND read_at IS NULL;`, s.table)
	if _, err := s.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark archive row read: %w", err)
	}
	return nil
}

// RecordReadAll stamps read_at for every listed notification.
func (s *ArchiveStore) RecordReadAll(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET read_at = $1 WHERE id = ANY($2) AND read_at IS NULL;`, s.table)
	if _, err := s.pool.Exec(ctx, query, at, ids); err != nil {
		return fmt.Errorf("mark archive rows read: %w", err)
	}
	return nil
}

// RecordRemoved stamps removal time and reason for the listed notifications.
func (s *ArchiveStore) RecordRemoved(
	ctx context.Context,
	ids []string,
	reason archive.RemovalReason,
	at time.Time,
) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET removed_at = $1, removed_reason = $2
		WHERE id = ANY($3) AND removed_at IS NULL;
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, at, string(reason), ids); err != nil {
		return fmt.Errorf("mark archive rows removed: %w", err)
	}
	return nil
}

const archiveColumns = `id, title, message, server, severity, category, link, created_at, read_at, removed_at, removed_reason`

// Get retrieves a single archive record by notification id.
func (s *ArchiveStore) Get(ctx context.Context, id string) (archive.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1;`, archiveColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archive.Record{}, archive.ErrNotFound
		}
		return archive.Record{}, fmt.Errorf("get archive row: %w", err)
	}
	return rec, nil
}

// ListRecent retrieves archive records newest-first.
func (s *ArchiveStore) ListRecent(ctx context.Context, limit, offset int) ([]archive.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2;
	`, archiveColumns, s.table)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list archive rows: %w", err)
	}
	defer rows.Close()

	var out []archive.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (archive.Record, error) {
	var (
		rec      archive.Record
		severity string
		reason   *string
	)
	n := &rec.Notification
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Message,
		&n.Server,
		&severity,
		&n.Category,
		&n.Link,
		&n.Timestamp,
		&rec.ReadAt,
		&rec.RemovedAt,
		&reason,
	)
	if err != nil {
		return archive.Record{}, err
	}
	n.Severity = notify.Severity(severity)
	n.Read = rec.ReadAt != nil
	if reason != nil {
		r := archive.RemovalReason(*reason)
		rec.RemovedReason = &r
	}
	return rec, nil
}
