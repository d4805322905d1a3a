// Package resolver turns a manifest's heterogeneous bill of materials into a
// flat, depth-tracked component list ready for matching. It detects embedded
// vs external BOMs, follows component references across manifests, bounds
// recursion depth, and rejects circular reference chains.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"openmatch/internal/logging"
	"openmatch/internal/okh"
	"openmatch/internal/solution"
)

// DefaultNestedDepth is the explosion depth auto-detection lifts to when a
// manifest shows nesting and the caller asked for depth 0.
const DefaultNestedDepth = 5

// Reference-failure policies.
const (
	OnReferenceFail = "fail"
	OnReferenceLeaf = "leaf"
)

// Options controls one explosion.
type Options struct {
	// MaxDepth 0 means match only the root manifest (single-level mode);
	// >0 unlocks nesting to that depth.
	MaxDepth int
	// AutoDetectDepth lifts MaxDepth 0 to DefaultNestedDepth when the
	// manifest carries nested components.
	AutoDetectDepth bool
	// OnReferenceError: "fail" aborts the run on an unresolvable component
	// reference, "leaf" keeps the component as a leaf with a warning.
	OnReferenceError string
}

// ComponentMatch pairs one resolved component with the context needed to
// score it. Matched and Trees are filled by the match runner.
type ComponentMatch struct {
	Component         okh.Component
	Depth             int
	ParentComponentID string
	Path              []string
	ResolvedManifest  *okh.Manifest
	Matched           bool
	Trees             []*solution.SupplyTree
}

// Result is one finished explosion: components sorted depth-descending so
// leaves precede interior nodes, the natural matching order.
type Result struct {
	Manifest       *okh.Manifest
	EffectiveDepth int
	Components     []*ComponentMatch
	Warnings       []string
}

// Resolver explodes bills of materials.
type Resolver struct {
	manifests okh.Loader
	blobs     BlobLoader
	opts      Options
}

// New builds a resolver. Both loaders may block; they receive the context
// passed to Resolve/Explode.
func New(manifests okh.Loader, blobs BlobLoader, opts Options) *Resolver {
	if opts.OnReferenceError == "" {
		opts.OnReferenceError = OnReferenceFail
	}
	return &Resolver{manifests: manifests, blobs: blobs, opts: opts}
}

// Resolve loads and parses a manifest's BOM without exploding it.
func (r *Resolver) Resolve(ctx context.Context, m *okh.Manifest) (*BillOfMaterials, error) {
	switch m.BOMType() {
	case okh.BOMExternal:
		path := m.BOM.Path
		if !filepath.IsAbs(path) && m.Origin != "" {
			path = filepath.Join(filepath.Dir(m.Origin), path)
		}
		data, contentType, err := r.blobs.Read(ctx, path)
		if err != nil {
			return nil, err
		}
		components, err := ParseBOM(data, contentType, path)
		if err != nil {
			return nil, err
		}
		logging.ResolverDebug("external bom %s: %d components", path, len(components))
		return &BillOfMaterials{Source: path, Type: okh.BOMExternal, Components: components}, nil

	case okh.BOMEmbedded:
		return &BillOfMaterials{Source: "embedded", Type: okh.BOMEmbedded, Components: m.AllParts()}, nil

	default:
		return &BillOfMaterials{Source: "empty", Type: okh.BOMEmpty}, nil
	}
}

// Explode resolves the manifest's BOM and flattens it depth-first into
// ComponentMatches. The returned components are sorted by depth descending.
func (r *Resolver) Explode(ctx context.Context, m *okh.Manifest) (*Result, error) {
	start := time.Now()

	effective := r.opts.MaxDepth
	if effective == 0 && r.opts.AutoDetectDepth && m.HasNesting() {
		effective = DefaultNestedDepth
		logging.Resolver("auto-detected nesting in %s, depth lifted to %d", m.ID, effective)
	}

	res := &Result{Manifest: m, EffectiveDepth: effective}
	w := &walker{resolver: r, ctx: ctx, maxDepth: effective, seenIDs: make(map[string]int), result: res}

	root := okh.Component{
		ID:        m.ID,
		Name:      m.Title,
		Quantity:  1,
		Processes: m.Processes,
		Materials: m.Materials,
	}
	if root.Name == "" {
		root.Name = m.ID
	}

	if effective == 0 {
		// Single-level: only the root manifest is matched; nested
		// components are deliberately ignored.
		w.record(root, 0, "", nil, nil)
	} else {
		bom, err := r.Resolve(ctx, m)
		if err != nil {
			return nil, err
		}
		root.SubComponents = bom.Components
		if err := w.walk(root, 0, "", nil, m, []string{manifestKey(m)}); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(res.Components, func(i, j int) bool {
		return res.Components[i].Depth > res.Components[j].Depth
	})

	logging.Resolver("exploded %s: %d components, effective depth %d, %d warnings",
		m.ID, len(res.Components), effective, len(res.Warnings))
	logging.Audit().BOMResolved(m.ID, len(res.Components), effective, time.Since(start).Milliseconds())
	return res, nil
}

type walker struct {
	resolver *Resolver
	ctx      context.Context
	maxDepth int
	seenIDs  map[string]int
	result   *Result
}

// record registers one ComponentMatch, uniquifying its id within the run.
func (w *walker) record(c okh.Component, depth int, parentID string, parentPath []string, resolved *okh.Manifest) *ComponentMatch {
	id := c.EffectiveID()
	if id == "" {
		id = fmt.Sprintf("component-%d", len(w.result.Components)+1)
	}
	if w.seenIDs[id] > 0 {
		base := id
		for n := w.seenIDs[base] + 1; ; n++ {
			candidate := fmt.Sprintf("%s-%d", base, n)
			if w.seenIDs[candidate] == 0 {
				w.seenIDs[base] = n
				id = candidate
				break
			}
		}
		w.warn("duplicate component id %q renamed to %q", base, id)
	}
	w.seenIDs[id] = 1
	c.ID = id

	name := c.Name
	if name == "" {
		name = id
	}
	path := make([]string, 0, len(parentPath)+1)
	path = append(path, parentPath...)
	path = append(path, name)

	cm := &ComponentMatch{
		Component:         c,
		Depth:             depth,
		ParentComponentID: parentID,
		Path:              path,
		ResolvedManifest:  resolved,
	}
	w.result.Components = append(w.result.Components, cm)
	return cm
}

func (w *walker) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.result.Warnings = append(w.result.Warnings, msg)
	logging.ResolverWarn("%s", msg)
}

// walk recurses depth-first. chain carries the manifest keys followed via
// references on this path; revisiting one is a circular reference.
func (w *walker) walk(c okh.Component, depth int, parentID string, parentPath []string, owner *okh.Manifest, chain []string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	subs := c.SubComponents
	nextOwner := owner
	var resolved *okh.Manifest

	if c.Reference != "" {
		refManifest, refComponents, err := w.resolveReference(c, owner, chain)
		if err != nil {
			var circular *CircularReferenceError
			if errors.As(err, &circular) {
				return err
			}
			if w.resolver.opts.OnReferenceError != OnReferenceLeaf {
				return err
			}
			w.warn("component %s: reference %q unresolvable, treated as leaf: %v", c.EffectiveID(), c.Reference, err)
			subs = nil
		} else {
			if len(c.SubComponents) > 0 {
				w.warn("component %s: inline sub_components discarded in favor of reference %q", c.EffectiveID(), c.Reference)
			}
			resolved = refManifest
			nextOwner = refManifest
			subs = refComponents
			// A referenced manifest fills in requirements the component
			// itself left blank.
			if len(c.Processes) == 0 {
				c.Processes = refManifest.Processes
			}
			if len(c.Materials) == 0 {
				c.Materials = refManifest.Materials
			}
			chain = appendChain(chain, manifestKey(refManifest))
		}
	}

	cm := w.record(c, depth, parentID, parentPath, resolved)

	if len(subs) == 0 {
		return nil
	}
	if depth+1 > w.maxDepth {
		return &MaxDepthError{Depth: depth + 1, MaxDepth: w.maxDepth}
	}
	for _, sub := range subs {
		if err := w.walk(sub, depth+1, cm.Component.ID, cm.Path, nextOwner, chain); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) resolveReference(c okh.Component, owner *okh.Manifest, chain []string) (*okh.Manifest, []okh.Component, error) {
	ref := resolveRefPath(owner, c.Reference)

	m, err := w.resolver.manifests.LoadManifest(w.ctx, ref)
	if err != nil {
		return nil, nil, &ReferenceError{ComponentID: c.EffectiveID(), Reference: c.Reference, Err: err}
	}

	key := manifestKey(m)
	for _, seen := range chain {
		if seen == key {
			cycle := appendChain(chain, key)
			return nil, nil, &CircularReferenceError{Cycle: cycle}
		}
	}

	bom, err := w.resolver.Resolve(w.ctx, m)
	if err != nil {
		return nil, nil, &ReferenceError{ComponentID: c.EffectiveID(), Reference: c.Reference, Err: err}
	}
	return m, bom.Components, nil
}

// resolveRefPath maps a path-looking reference onto the referencing
// manifest's directory; bare ids pass through to the manifest loader.
func resolveRefPath(owner *okh.Manifest, ref string) string {
	if owner == nil || owner.Origin == "" || filepath.IsAbs(ref) {
		return ref
	}
	if strings.ContainsRune(ref, '/') || filepath.Ext(ref) != "" {
		return filepath.Join(filepath.Dir(owner.Origin), ref)
	}
	return ref
}

// manifestKey identifies a manifest for cycle detection: its absolute
// origin when loaded from disk, its id otherwise.
func manifestKey(m *okh.Manifest) string {
	if m.Origin != "" {
		return m.Origin
	}
	return m.ID
}

func appendChain(chain []string, key string) []string {
	out := make([]string, 0, len(chain)+1)
	out = append(out, chain...)
	out = append(out, key)
	return out
}
