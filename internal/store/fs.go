package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"openmatch/internal/logging"
)

// FSStore keeps objects as files under a root directory, one file per key.
// Writes go through a temp file in the destination directory followed by a
// rename, so readers never observe a partial object.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns the store.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("fs store: empty root")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("fs store: create root: %w", err)
	}
	logging.StoreDebug("FSStore rooted at %s", root)
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("fs store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := s.path(key)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		// A parent element already stored as a plain object blocks this key.
		if isNotDir(err) {
			return fmt.Errorf("fs store: key %s: %w", key, ErrConflict)
		}
		return fmt.Errorf("fs store: mkdir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("fs store: temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fs store: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fs store: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fs store: rename %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("fs store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fs store: key %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("fs store: read %s: %w", key, err)
	}
	return data, nil
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs store: list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("fs store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("fs store: key %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("fs store: delete %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) Close() error { return nil }

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EEXIST)
}
