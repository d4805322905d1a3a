package resolver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BlobLoader fetches raw BOM bytes. Implementations must distinguish
// missing files (errors.Is fs.ErrNotExist) from other failures.
type BlobLoader interface {
	Read(ctx context.Context, path string) (data []byte, contentType string, err error)
}

// FileBlobLoader reads BOM files from the filesystem. Relative paths
// resolve against BaseDir.
type FileBlobLoader struct {
	BaseDir string
}

// NewFileBlobLoader builds a loader rooted at dir ("." when empty).
func NewFileBlobLoader(dir string) *FileBlobLoader {
	if dir == "" {
		dir = "."
	}
	return &FileBlobLoader{BaseDir: dir}
}

// Read loads a file and reports its content type from the extension.
func (l *FileBlobLoader) Read(ctx context.Context, path string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(l.BaseDir, path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", &FileNotFoundError{Path: full, Err: err}
		}
		return nil, "", err
	}
	return data, ContentTypeFor(full), nil
}

// ContentTypeFor maps a file extension to the content types ParseBOM
// understands. Unknown extensions return "" and are sniffed.
func ContentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".md", ".markdown":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	default:
		return ""
	}
}
