// Package snapshot - durable named-blob storage for backup and restore.
//
// DESIGN: Snapshots are opaque byte payloads the gateway forwards as-is;
// it never inspects or migrates their contents. A single SQLite table
// keyed by snapshot name holds them, with upsert-on-conflict so repeated
// backups under one name replace the previous payload.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaydesk/model-gateway/internal/config"
)

var (
	// ErrNotFound reports an unknown snapshot name.
	ErrNotFound = errors.New("snapshot not found")

	// ErrTooLarge reports a payload above the configured size cap.
	ErrTooLarge = errors.New("snapshot exceeds size limit")
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    name         TEXT PRIMARY KEY,
    content_type TEXT NOT NULL DEFAULT '',
    data         BLOB NOT NULL,
    size         INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);
`

// Info describes a stored snapshot without its payload.
type Info struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists snapshots in SQLite. Safe for concurrent use; SQLite
// serializes writers and the busy timeout absorbs short contention.
type Store struct {
	db  *sql.DB
	max int
}

// Open opens (creating if needed) the snapshot database at cfg.DBPath.
func Open(cfg config.SnapshotConf) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	db.Exec("PRAGMA journal_mode=wal")
	db.Exec("PRAGMA busy_timeout=1000")
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot schema: %w", err)
	}
	return &Store{db: db, max: cfg.Cap()}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save stores data under name, replacing any previous payload. The content
// type is kept alongside the bytes and handed back verbatim on load.
func (s *Store) Save(ctx context.Context, name, contentType string, data []byte) error {
	if name == "" {
		return errors.New("snapshot name required")
	}
	if len(data) > s.max {
		return ErrTooLarge
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, content_type, data, size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
		    content_type = excluded.content_type,
		    data = excluded.data,
		    size = excluded.size,
		    updated_at = excluded.updated_at`,
		name, contentType, data, len(data), now, now)
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}
	return nil
}

// Load returns the payload stored under name and its content type.
func (s *Store) Load(ctx context.Context, name string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, content_type FROM snapshots WHERE name = ?`, name).Scan(&data, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("load snapshot %q: %w", name, err)
	}
	return data, contentType, nil
}

// List returns metadata for all stored snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, content_type, size, created_at, updated_at
		FROM snapshots ORDER BY updated_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var created, updated int64
		if err := rows.Scan(&info.Name, &info.ContentType, &info.Size, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		info.CreatedAt = time.Unix(created, 0)
		info.UpdatedAt = time.Unix(updated, 0)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
