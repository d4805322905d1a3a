// Package orchestrator drives one match run end to end: BOM explosion,
// per-component layer matching, solution assembly, and optional
// persistence. It owns no policy of its own beyond sequencing; each stage
// lives in its own package.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"openmatch/internal/assembly"
	"openmatch/internal/config"
	"openmatch/internal/logging"
	"openmatch/internal/matching"
	"openmatch/internal/okh"
	"openmatch/internal/okw"
	"openmatch/internal/resolver"
	"openmatch/internal/solution"
	"openmatch/internal/store"
	"openmatch/internal/taxonomy"
)

// Options control one match run. OptionsFromConfig maps the file
// configuration onto them; direct callers can build them by hand.
type Options struct {
	// MaxDepth bounds BOM explosion. 0 keeps matching single-level
	// unless AutoDetectDepth lifts it.
	MaxDepth        int
	AutoDetectDepth bool

	// OnReferenceError is the resolver policy for unresolvable component
	// references: "fail" aborts, "leaf" degrades with a warning.
	OnReferenceError string

	// MinConfidence drops per-facility matches below it after layer
	// combination. TargetConfidence stops the layer pipeline early once
	// reached.
	MinConfidence    float64
	TargetConfidence float64

	// EnabledLayers selects the pipeline. Empty means exact, heuristic,
	// nlp. Known layer names with no wired implementation are skipped
	// with a solution warning; unknown names abort the run.
	EnabledLayers []string

	// ScoreAggregation rolls per-tree confidences into the solution
	// score: "mean" or "weighted". Empty means mean.
	ScoreAggregation string

	// MaxWorkers caps the per-component facility fan-out. 0 lets the
	// runner size the pool itself.
	MaxWorkers int

	// SaveSolution persists the assembled solution when a store is
	// wired. Cancelled runs never persist.
	SaveSolution bool
	Tags         []string
	TTLDays      int
}

// OptionsFromConfig maps the resolver, matching, and store sections of a
// configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxDepth:         cfg.Resolver.MaxDepth,
		AutoDetectDepth:  cfg.Resolver.AutoDetectDepth,
		OnReferenceError: cfg.Resolver.OnReferenceError,
		MinConfidence:    cfg.Matching.MinConfidence,
		TargetConfidence: cfg.Matching.TargetConfidence,
		EnabledLayers:    append([]string(nil), cfg.Matching.EnabledLayers...),
		ScoreAggregation: cfg.Matching.ScoreAggregation,
		MaxWorkers:       cfg.Matching.MaxWorkers,
		TTLDays:          cfg.Store.DefaultTTLDays,
	}
}

func (o Options) validate() error {
	if o.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be >= 0, got %d", o.MaxDepth)
	}
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1], got %v", o.MinConfidence)
	}
	if o.TargetConfidence < 0 || o.TargetConfidence > 1 {
		return fmt.Errorf("target_confidence must be in [0,1], got %v", o.TargetConfidence)
	}
	switch o.ScoreAggregation {
	case "", "mean", "weighted":
	default:
		return fmt.Errorf("score_aggregation must be mean or weighted, got %q", o.ScoreAggregation)
	}
	switch o.OnReferenceError {
	case "", resolver.OnReferenceFail, resolver.OnReferenceLeaf:
	default:
		return fmt.Errorf("on_reference_error must be fail or leaf, got %q", o.OnReferenceError)
	}
	return nil
}

// Deps are the collaborators a Coordinator is built from. Solutions may be
// nil when persistence is not wired; Blobs may be nil when manifests never
// reference external BOM files.
type Deps struct {
	Manifests     okh.Loader
	Blobs         resolver.BlobLoader
	Layers        map[matching.LayerName]matching.Layer
	Combiner      *matching.Combiner
	Taxonomy      *taxonomy.Registry
	Substitutions map[string][]string
	Solutions     *store.SolutionStore
}

// Coordinator owns the long-lived pieces a match run needs. Build one per
// process and share it; Match is safe for concurrent use.
type Coordinator struct {
	manifests okh.Loader
	blobs     resolver.BlobLoader
	layers    map[matching.LayerName]matching.Layer
	combiner  *matching.Combiner
	registry  *taxonomy.Registry
	subs      map[string][]string
	solutions *store.SolutionStore

	// ownedStore is set when FromConfig opened the backend itself, so
	// Close knows whether the handle is ours to release.
	ownedStore store.ObjectStore
}

// New builds a coordinator from explicit collaborators. The manifest
// loader and at least one layer are required; a missing combiner or
// taxonomy falls back to defaults.
func New(deps Deps) (*Coordinator, error) {
	if deps.Manifests == nil {
		return nil, fmt.Errorf("orchestrator: manifest loader is required")
	}
	if len(deps.Layers) == 0 {
		return nil, fmt.Errorf("orchestrator: at least one matching layer is required")
	}
	if deps.Combiner == nil {
		deps.Combiner = matching.NewCombiner(nil, 0)
	}
	if deps.Taxonomy == nil {
		reg, err := taxonomy.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: built-in taxonomy: %w", err)
		}
		deps.Taxonomy = reg
	}
	return &Coordinator{
		manifests: deps.Manifests,
		blobs:     deps.Blobs,
		layers:    deps.Layers,
		combiner:  deps.Combiner,
		registry:  deps.Taxonomy,
		subs:      deps.Substitutions,
		solutions: deps.Solutions,
	}, nil
}

// Solutions exposes the wired solution store, nil when persistence is not
// configured.
func (c *Coordinator) Solutions() *store.SolutionStore { return c.solutions }

// Close releases the store handle when the coordinator owns one.
func (c *Coordinator) Close() error {
	if c.ownedStore == nil {
		return nil
	}
	return c.ownedStore.Close()
}

// Match runs one full match of manifest against facilities.
//
// The stages are explode, match leaves first, assemble. Resolver warnings
// land on the solution's validation report, so a degraded run is visible
// in the result rather than only in logs. When opts.SaveSolution is set
// and a store is wired, the solution is persisted; a save failure returns
// the assembled solution together with the error so the caller can still
// inspect or retry it.
func (c *Coordinator) Match(ctx context.Context, manifest *okh.Manifest, facilities []*okw.Facility, opts Options) (*solution.SupplyTreeSolution, error) {
	if manifest == nil {
		return nil, fmt.Errorf("orchestrator: manifest is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	timer := logging.StartTimer(logging.CategoryMatching, "Match "+manifest.ID)
	defer timer.Stop()

	start := time.Now()
	logging.Audit().MatchStart(runID, manifest.ID, len(facilities))
	fail := func(err error) (*solution.SupplyTreeSolution, error) {
		logging.Audit().MatchComplete(runID, manifest.ID, 0, 0, time.Since(start).Milliseconds(), false, err.Error())
		return nil, err
	}

	layers, skipped, err := c.pickLayers(opts.EnabledLayers)
	if err != nil {
		return fail(err)
	}

	res := resolver.New(c.manifests, c.blobs, resolver.Options{
		MaxDepth:         opts.MaxDepth,
		AutoDetectDepth:  opts.AutoDetectDepth,
		OnReferenceError: opts.OnReferenceError,
	})
	exploded, err := res.Explode(ctx, manifest)
	if err != nil {
		return fail(fmt.Errorf("explode %s: %w", manifest.ID, err))
	}

	runner := matching.NewRunner(layers, c.combiner)
	runner.MinConfidence = opts.MinConfidence
	runner.TargetConfidence = opts.TargetConfidence
	runner.MaxWorkers = opts.MaxWorkers

	mctx := &matching.Context{
		Taxonomy:      c.registry.Snapshot(),
		Substitutions: c.subs,
		RunID:         runID,
	}

	// Components arrive leaves first, so by the time an interior node is
	// matched its children already carry trees.
	for _, comp := range exploded.Components {
		trees, err := runner.Run(ctx, comp, facilities, mctx)
		if err != nil {
			return fail(fmt.Errorf("match %s: %w", comp.Component.EffectiveID(), err))
		}
		comp.Trees = trees
	}

	mode := solution.ModeNested
	if exploded.EffectiveDepth == 0 {
		mode = solution.ModeSingleLevel
	}
	sol, err := assembly.New(opts.ScoreAggregation).Assemble(exploded.Components, mode)
	if err != nil {
		return fail(fmt.Errorf("assemble %s: %w", manifest.ID, err))
	}

	sol.OKHID = manifest.ID
	sol.OKHTitle = manifest.Title
	for _, w := range exploded.Warnings {
		sol.Validation.AddWarning(w)
	}
	for _, name := range skipped {
		sol.Validation.AddWarning("layer_unavailable: " + name)
	}
	if sol.Metadata == nil {
		sol.Metadata = map[string]any{}
	}
	sol.Metadata["run_id"] = runID
	sol.Metadata["layers"] = layerNames(layers)
	sol.Metadata["facility_count"] = len(facilities)
	sol.Metadata["effective_depth"] = exploded.EffectiveDepth

	if opts.SaveSolution && c.solutions != nil && ctx.Err() == nil {
		id, err := c.solutions.Save(ctx, sol, store.SaveOptions{
			Tags:    opts.Tags,
			TTLDays: opts.TTLDays,
		})
		if err != nil {
			logging.Audit().MatchComplete(runID, manifest.ID, len(sol.AllTrees), sol.Score, time.Since(start).Milliseconds(), false, err.Error())
			return sol, fmt.Errorf("save solution: %w", err)
		}
		logging.Matching("run %s persisted as %s", runID, id)
	}

	logging.Audit().MatchComplete(runID, manifest.ID, len(sol.AllTrees), sol.Score, time.Since(start).Milliseconds(), true, "")
	return sol, nil
}

// DefaultLayerNames is the pipeline used when no layers are configured.
// LLM stays out unless asked for.
func DefaultLayerNames() []string {
	return []string{
		string(matching.LayerExact),
		string(matching.LayerHeuristic),
		string(matching.LayerNLP),
	}
}

// pickLayers resolves configured names against the wired layers. A known
// layer name with no wired implementation degrades to a skip so a missing
// embedding backend does not break exact matching; an unknown name is a
// configuration error.
func (c *Coordinator) pickLayers(names []string) ([]matching.Layer, []string, error) {
	if len(names) == 0 {
		names = DefaultLayerNames()
	}
	usable := make([]string, 0, len(names))
	var skipped []string
	for _, raw := range names {
		name := matching.LayerName(raw)
		if _, ok := c.layers[name]; ok {
			usable = append(usable, raw)
			continue
		}
		switch name {
		case matching.LayerExact, matching.LayerHeuristic, matching.LayerNLP, matching.LayerLLM:
			logging.MatchingWarn("layer %s enabled but not wired, skipping", raw)
			skipped = append(skipped, raw)
		default:
			return nil, nil, fmt.Errorf("unknown matching layer %q", raw)
		}
	}
	if len(usable) == 0 {
		return nil, nil, fmt.Errorf("no usable matching layers among %v", names)
	}
	layers, err := matching.LayersFromNames(usable, c.layers)
	if err != nil {
		return nil, nil, err
	}
	return layers, skipped, nil
}

func layerNames(layers []matching.Layer) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = string(l.Name())
	}
	return out
}
