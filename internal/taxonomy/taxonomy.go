// Package taxonomy provides canonical manufacturing process identifiers.
// Raw process strings from requirements and facility listings normalize to
// ProcessID URIs through an alias table with a parent hierarchy, so "cnc
// milling" and "3-axis milling" both satisfy a requirement for machining.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"
)

// ProcessID is a canonical process URI, e.g. "urn:process:machining".
type ProcessID string

// Unknown is the zero ProcessID returned for strings that normalize to nothing.
const Unknown ProcessID = ""

// Entry describes one canonical process in a taxonomy table.
type Entry struct {
	URI     string   `yaml:"uri"`
	Aliases []string `yaml:"aliases"`
	Parent  string   `yaml:"parent,omitempty"`
}

// Table is an immutable alias table with hierarchy. Build one with NewTable;
// share it freely across goroutines.
type Table struct {
	domain  string
	byAlias map[string]ProcessID
	parent  map[ProcessID]ProcessID
	known   map[ProcessID]bool
}

// maxHierarchyDepth bounds parent-chain walks against malformed tables.
const maxHierarchyDepth = 32

// NewTable builds a Table from entries. Aliases are case-insensitive and
// whitespace-normalized; the canonical URI always normalizes to itself.
func NewTable(domain string, entries []Entry) (*Table, error) {
	t := &Table{
		domain:  domain,
		byAlias: make(map[string]ProcessID),
		parent:  make(map[ProcessID]ProcessID),
		known:   make(map[ProcessID]bool),
	}

	for _, e := range entries {
		if e.URI == "" {
			return nil, fmt.Errorf("taxonomy entry with empty uri")
		}
		id := ProcessID(e.URI)
		t.known[id] = true
		t.byAlias[normalizeKey(e.URI)] = id
		for _, alias := range e.Aliases {
			key := normalizeKey(alias)
			if key == "" {
				continue
			}
			if existing, ok := t.byAlias[key]; ok && existing != id {
				return nil, fmt.Errorf("alias %q maps to both %s and %s", alias, existing, id)
			}
			t.byAlias[key] = id
		}
		if e.Parent != "" {
			t.parent[id] = ProcessID(e.Parent)
		}
	}

	// Parents must themselves be defined
	for child, parent := range t.parent {
		if !t.known[parent] {
			return nil, fmt.Errorf("process %s names undefined parent %s", child, parent)
		}
	}

	return t, nil
}

// normalizeKey lowercases and collapses internal whitespace.
func normalizeKey(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// Domain returns the domain this table covers.
func (t *Table) Domain() string { return t.domain }

// Size returns the number of canonical processes.
func (t *Table) Size() int { return len(t.known) }

// Normalize maps a raw process string to its canonical ProcessID.
// The second return is false when the string is unknown; the raw string is
// then preserved by callers for diagnostics and never satisfies a requirement.
func (t *Table) Normalize(raw string) (ProcessID, bool) {
	id, ok := t.byAlias[normalizeKey(raw)]
	if !ok {
		return Unknown, false
	}
	return id, true
}

// NormalizeAll maps raw strings to ProcessIDs, returning the canonical set
// and the raw strings that did not normalize.
func (t *Table) NormalizeAll(raws []string) ([]ProcessID, []string) {
	var ids []ProcessID
	var unknown []string
	seen := make(map[ProcessID]bool)
	for _, raw := range raws {
		id, ok := t.Normalize(raw)
		if !ok {
			unknown = append(unknown, raw)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, unknown
}

// Matches reports whether an offered process satisfies a required one:
// true iff they are equal or offered is a transitive descendant of required.
// A facility offering a more specific process satisfies a more general
// requirement. Unknown processes never match.
func (t *Table) Matches(required, offered ProcessID) bool {
	if required == Unknown || offered == Unknown {
		return false
	}
	if !t.known[required] || !t.known[offered] {
		return false
	}
	if required == offered {
		return true
	}
	cur := offered
	for i := 0; i < maxHierarchyDepth; i++ {
		parent, ok := t.parent[cur]
		if !ok {
			return false
		}
		if parent == required {
			return true
		}
		cur = parent
	}
	return false
}

// ParentOf returns the parent of a process, if it has one.
func (t *Table) ParentOf(p ProcessID) (ProcessID, bool) {
	parent, ok := t.parent[p]
	return parent, ok
}

// Known reports whether p is a canonical process in this table.
func (t *Table) Known(p ProcessID) bool { return t.known[p] }

// Descendants returns every process below p in the hierarchy, sorted.
func (t *Table) Descendants(p ProcessID) []ProcessID {
	var out []ProcessID
	for id := range t.known {
		if id == p {
			continue
		}
		cur := id
		for i := 0; i < maxHierarchyDepth; i++ {
			parent, ok := t.parent[cur]
			if !ok {
				break
			}
			if parent == p {
				out = append(out, id)
				break
			}
			cur = parent
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
