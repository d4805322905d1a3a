package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"openmatch/internal/logging"
)

//go:embed tables/manufacturing.yaml
var builtinTableYAML []byte

// tableFile is the on-disk shape of a taxonomy table.
type tableFile struct {
	Domain    string  `yaml:"domain"`
	Processes []Entry `yaml:"processes"`
}

// Registry holds the active Table behind an atomic pointer so reloads are
// invisible to in-flight readers: a match run snapshots the table once and
// sees either the old or the new version in full, never a mix.
type Registry struct {
	table atomic.Pointer[Table]
	path  string
}

// NewRegistry builds a registry over the built-in manufacturing table.
func NewRegistry() (*Registry, error) {
	t, err := loadBuiltin()
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.table.Store(t)
	logging.Taxonomy("loaded built-in table: domain=%s processes=%d", t.Domain(), t.Size())
	return r, nil
}

// NewRegistryFromFile builds a registry from the built-in table overlaid
// with entries from a user table file. The file wins on URI collisions.
func NewRegistryFromFile(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Snapshot returns the current table. The result is immutable; hold it for
// the duration of a run rather than re-snapshotting per lookup.
func (r *Registry) Snapshot() *Table {
	return r.table.Load()
}

// Reload re-reads the user table file and swaps the active table. On any
// error the previous table stays active.
func (r *Registry) Reload() error {
	base, err := parseTable(builtinTableYAML)
	if err != nil {
		return fmt.Errorf("built-in table: %w", err)
	}

	domain := base.Domain
	entries := base.Processes
	if r.path != "" {
		data, err := os.ReadFile(r.path)
		if err != nil {
			return fmt.Errorf("read taxonomy table %s: %w", r.path, err)
		}
		user, err := parseTable(data)
		if err != nil {
			return fmt.Errorf("parse taxonomy table %s: %w", r.path, err)
		}
		if user.Domain != "" {
			domain = user.Domain
		}
		entries = mergeEntries(entries, user.Processes)
	}

	t, err := NewTable(domain, entries)
	if err != nil {
		return err
	}
	r.table.Store(t)
	logging.Taxonomy("table reloaded: domain=%s processes=%d source=%s", t.Domain(), t.Size(), sourceName(r.path))
	return nil
}

func loadBuiltin() (*Table, error) {
	tf, err := parseTable(builtinTableYAML)
	if err != nil {
		return nil, fmt.Errorf("built-in table: %w", err)
	}
	return NewTable(tf.Domain, tf.Processes)
}

func parseTable(data []byte) (*tableFile, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	if len(tf.Processes) == 0 {
		return nil, fmt.Errorf("taxonomy table has no processes")
	}
	return &tf, nil
}

// mergeEntries overlays user entries on base entries. A user entry with a
// URI already present replaces the base entry wholesale; new URIs append.
func mergeEntries(base, overlay []Entry) []Entry {
	out := make([]Entry, 0, len(base)+len(overlay))
	index := make(map[string]int)
	for _, e := range base {
		index[e.URI] = len(out)
		out = append(out, e)
	}
	for _, e := range overlay {
		if i, ok := index[e.URI]; ok {
			out[i] = e
			continue
		}
		index[e.URI] = len(out)
		out = append(out, e)
	}
	return out
}

func sourceName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
