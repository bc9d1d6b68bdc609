// Package sqlite implements core.Storage on a SQLite database using the pure
// Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS dialog_state (
	key TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	etag TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Storage is a SQLite backed core.Storage.
type Storage struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path. Use ":memory:" for a private
// in-process database.
func Open(path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Storage{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Storage) Path() string {
	return s.path
}

// Read returns the existing documents among keys.
func (s *Storage) Read(ctx context.Context, keys []string) (map[string]core.StoreItem, error) {
	out := make(map[string]core.StoreItem, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := "SELECT key, document, etag FROM dialog_state WHERE key IN (" + placeholders(len(keys)) + ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: read: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, body, etag string
		if err := rows.Scan(&key, &body, &etag); err != nil {
			return nil, fmt.Errorf("sqlite storage: scan: %w", err)
		}
		doc := core.NewMap()
		if err := doc.UnmarshalJSON([]byte(body)); err != nil {
			return nil, fmt.Errorf("sqlite storage: decode %q: %w", key, err)
		}
		out[key] = core.StoreItem{Value: doc, ETag: etag}
	}
	return out, rows.Err()
}

// Write applies all changes in one transaction; an ETag conflict rolls back
// the whole batch.
func (s *Storage) Write(ctx context.Context, changes map[string]core.StoreItem) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite storage: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for key, change := range changes {
		var current string
		row := tx.QueryRowContext(ctx, "SELECT etag FROM dialog_state WHERE key = ?", key)
		scanErr := row.Scan(&current)
		exists := scanErr == nil
		if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("sqlite storage: read etag %q: %w", key, scanErr)
		}
		if err := storage.CheckETag(key, change.ETag, current, exists); err != nil {
			return err
		}

		body, encErr := change.Value.MarshalJSON()
		if encErr != nil {
			return fmt.Errorf("sqlite storage: encode %q: %w", key, encErr)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dialog_state (key, document, etag, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET document = excluded.document, etag = excluded.etag, updated_at = excluded.updated_at`,
			key, string(body), core.NewID()); err != nil {
			return fmt.Errorf("sqlite storage: write %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite storage: commit: %w", err)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (s *Storage) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM dialog_state WHERE key IN ("+placeholders(len(keys))+")", args...); err != nil {
		return fmt.Errorf("sqlite storage: delete: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var _ core.Storage = (*Storage)(nil)
