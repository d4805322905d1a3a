package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"openmatch/internal/logging"
)

// SQLiteStore keeps objects in a single-file SQLite database, one row per
// key. A single connection serializes writers; WAL keeps readers off the
// writer's lock.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the database at path. ":memory:" gives an
// ephemeral store for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: create schema: %w", err)
	}

	logging.StoreDebug("SQLiteStore opened at %s", path)
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objects (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		key, data)
	if err != nil {
		return fmt.Errorf("sqlite store: put %s: %w", key, wrapClosed(err))
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM objects WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite store: key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get %s: %w", key, wrapClosed(err))
	}
	return data, nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM objects WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list %s: %w", prefix, wrapClosed(err))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite store: list scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: list %s: %w", prefix, err)
	}
	return keys, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("sqlite store: delete %s: %w", key, wrapClosed(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store: delete %s: %w", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlite store: key %s: %w", key, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	logging.StoreDebug("Closing SQLiteStore at %s", s.path)
	return s.db.Close()
}

// wrapClosed maps driver errors from a closed handle onto ErrUnavailable so
// callers can detect a store shut down underneath them.
func wrapClosed(err error) error {
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
