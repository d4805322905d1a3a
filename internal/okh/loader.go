package okh

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"openmatch/internal/logging"
)

// Loader resolves a manifest id or path to its canonical loaded form.
type Loader interface {
	LoadManifest(ctx context.Context, idOrPath string) (*Manifest, error)
}

// FileLoader loads manifests from the filesystem. Relative paths resolve
// against BaseDir; an id without an extension is tried as <id>.yaml, <id>.yml,
// then <id>.json under BaseDir.
type FileLoader struct {
	BaseDir string
}

// NewFileLoader builds a loader rooted at dir ("." when empty).
func NewFileLoader(dir string) *FileLoader {
	if dir == "" {
		dir = "."
	}
	return &FileLoader{BaseDir: dir}
}

var manifestExtensions = []string{".yaml", ".yml", ".json"}

// LoadManifest reads and parses a manifest file. File-not-found errors wrap
// fs.ErrNotExist so callers can classify them.
func (l *FileLoader) LoadManifest(ctx context.Context, idOrPath string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := l.resolvePath(idOrPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", idOrPath, err)
	}

	m, err := ParseManifest(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m.Origin = abs
	if m.ID == "" {
		m.ID = Slug(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	logging.ResolverDebug("loaded manifest %s: title=%q bom=%s parts=%d", m.ID, m.Title, m.BOMType(), len(m.AllParts()))
	return m, nil
}

// resolvePath maps an id or path onto an existing file.
func (l *FileLoader) resolvePath(idOrPath string) (string, error) {
	candidates := []string{idOrPath}
	if !filepath.IsAbs(idOrPath) {
		candidates = append(candidates, filepath.Join(l.BaseDir, idOrPath))
	}
	if filepath.Ext(idOrPath) == "" {
		for _, ext := range manifestExtensions {
			candidates = append(candidates, filepath.Join(l.BaseDir, idOrPath+ext))
		}
	}

	var firstErr error
	for _, cand := range candidates {
		if _, err := os.Stat(cand); err == nil {
			return cand, nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	return "", fmt.Errorf("manifest %s: %w", idOrPath, firstErr)
}

// ParseManifest decodes manifest bytes. The extension selects the decoder;
// unknown extensions fall back to YAML, which also covers JSON content.
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var m Manifest
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
