// Package store persists solutions behind a small object-store contract with
// filesystem and SQLite drivers. Keys are slash-separated logical paths;
// listing is prefix-based and sorted. The SolutionStore layers naming, TTL
// bookkeeping, staleness checks, and cleanup on top of an ObjectStore.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound reports a key or solution id with no stored object.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a key that collides with existing structure,
	// such as a filesystem key whose parent is an existing object.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable reports a backend that cannot serve requests,
	// typically because it was closed.
	ErrUnavailable = errors.New("store unavailable")
)

// ObjectStore is the minimal blob contract the solution store runs on.
// Put overwrites. Get returns ErrNotFound for absent keys. List returns
// the sorted keys beginning with prefix. Delete returns ErrNotFound when
// there was nothing to delete.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// validateKey rejects keys that could escape the store's namespace.
func validateKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return errors.New("key must not start or end with a slash")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.New("key contains an invalid path element")
		}
	}
	return nil
}
