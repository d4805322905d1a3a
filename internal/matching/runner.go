package matching

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"openmatch/internal/logging"
	"openmatch/internal/okw"
	"openmatch/internal/resolver"
	"openmatch/internal/solution"
)

// Well-known facility metadata keys the runner reads when stamping trees.
const (
	// MetaCostPerUnit is a per-unit production cost: a number or a numeric
	// string, currency-agnostic.
	MetaCostPerUnit = "cost_per_unit"

	// MetaLeadTime is a production lead time as a duration string, e.g.
	// "72h" or "30m".
	MetaLeadTime = "lead_time"
)

// Runner fans one component out across facilities, runs the layer pipeline
// per pair, and emits a scored SupplyTree for every facility that produced
// informative signals.
type Runner struct {
	Layers   []Layer
	Combiner *Combiner

	// MinConfidence drops pairs whose combined confidence falls below it.
	MinConfidence float64

	// TargetConfidence stops the pipeline early once reached. Zero means
	// never stop early on target (ceilings still apply).
	TargetConfidence float64

	// MaxWorkers caps concurrent pairs; 0 means min(len(facilities),
	// 2*GOMAXPROCS).
	MaxWorkers int
}

// NewRunner builds a runner over a layer pipeline.
func NewRunner(layers []Layer, combiner *Combiner) *Runner {
	return &Runner{Layers: layers, Combiner: combiner}
}

// Run scores comp against every facility concurrently. Facility iteration
// order is unspecified; the returned trees are sorted by facility id for
// reproducibility. A cancelled context aborts the whole fan-out with
// ErrCancelled.
func (r *Runner) Run(ctx context.Context, comp *resolver.ComponentMatch, facilities []*okw.Facility, mctx *Context) ([]*solution.SupplyTree, error) {
	timer := logging.StartTimer(logging.CategoryMatching, "Run "+comp.Component.EffectiveID())
	defer timer.Stop()

	if len(facilities) == 0 {
		return nil, nil
	}

	expected := ExpectedAttributes(comp, r.Layers)
	logging.MatchingDebug("component %s: expected attributes %v", comp.Component.EffectiveID(), expected)

	limit := r.MaxWorkers
	if limit <= 0 {
		limit = 2 * runtime.GOMAXPROCS(0)
	}
	if limit > len(facilities) {
		limit = len(facilities)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make(chan *solution.SupplyTree, len(facilities))
	for _, fac := range facilities {
		g.Go(func() error {
			tree, err := r.matchPair(gctx, comp, fac, mctx, expected)
			if err != nil {
				return err
			}
			if tree != nil {
				results <- tree
			}
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}

	trees := make([]*solution.SupplyTree, 0, len(results))
	for t := range results {
		trees = append(trees, t)
	}
	sort.Slice(trees, func(i, j int) bool { return trees[i].FacilityID < trees[j].FacilityID })

	logging.Matching("component %s: %d/%d facilities matched", comp.Component.EffectiveID(), len(trees), len(facilities))
	return trees, nil
}

// matchPair runs the pipeline for one (component, facility) pair. Returns
// (nil, nil) when the facility is dropped: no informative signal, or a
// combined confidence below the floor.
func (r *Runner) matchPair(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context, expected []string) (*solution.SupplyTree, error) {
	best := make(map[string]FieldSignal)
	var layersRun []string
	var layerErrors []string
	combined := 0.0

	for _, layer := range r.Layers {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		start := time.Now()
		res, err := layer.Process(ctx, comp, fac, mctx)
		if err != nil {
			return nil, err
		}
		layersRun = append(layersRun, string(layer.Name()))
		if res != nil {
			for _, e := range res.Errors {
				layerErrors = append(layerErrors, string(layer.Name())+": "+e)
			}
			MergeFields(best, res, layer)
		}

		combined = r.Combiner.Combine(best, expected)
		logging.Audit().LayerComplete(string(layer.Name()), comp.Component.EffectiveID(), combined, time.Since(start).Milliseconds())

		if r.TargetConfidence > 0 && combined >= r.TargetConfidence {
			logging.MatchingDebug("pair %s/%s: early stop after %s, %.2f >= target %.2f",
				comp.Component.EffectiveID(), fac.ID, layer.Name(), combined, r.TargetConfidence)
			break
		}
		if combined >= layer.Ceiling() {
			logging.MatchingDebug("pair %s/%s: ceiling of %s reached at %.2f",
				comp.Component.EffectiveID(), fac.ID, layer.Name(), combined)
			break
		}
	}

	if len(best) == 0 {
		logging.MatchingDebug("pair %s/%s dropped: no informative signal",
			comp.Component.EffectiveID(), fac.ID)
		return nil, nil
	}
	if combined < r.MinConfidence {
		logging.MatchingDebug("pair %s/%s dropped: %.2f below floor %.2f",
			comp.Component.EffectiveID(), fac.ID, combined, r.MinConfidence)
		return nil, nil
	}

	return r.buildTree(comp, fac, best, combined, layersRun, layerErrors), nil
}

// buildTree stamps a SupplyTree with identity, placement, scoring and
// provenance for one accepted pair.
func (r *Runner) buildTree(comp *resolver.ComponentMatch, fac *okw.Facility, best map[string]FieldSignal, combined float64, layersRun, layerErrors []string) *solution.SupplyTree {
	stage := solution.StageComponent
	if comp.Depth == 0 {
		stage = solution.StageFinal
	}

	tree := &solution.SupplyTree{
		ID:                solution.NewTreeID(),
		ComponentID:       comp.Component.EffectiveID(),
		ComponentName:     comp.Component.Name,
		ComponentQuantity: comp.Component.EffectiveQuantity(),
		ComponentUnit:     comp.Component.Unit,
		ComponentPath:     comp.Path,
		FacilityID:        fac.ID,
		FacilityName:      fac.Name,
		Depth:             comp.Depth,
		ProductionStage:   stage,
		Confidence:        combined,
		MatchType:         r.Combiner.DominantMatchType(best),
		MaterialsRequired: comp.Component.Materials,
		CreatedAt:         solution.Now(),
	}

	if sig, ok := best[AttrProcess]; ok {
		if used, ok := sig.Value.([]string); ok {
			tree.CapabilitiesUsed = used
		}
	}

	if cost := facilityCost(fac, tree.ComponentQuantity); cost != nil {
		tree.EstimatedCost = cost
	}
	if d, ok := facilityLeadTime(fac); ok {
		tree.EstimatedTime = solution.Duration(d)
	}

	signals := make(map[string]any, len(best))
	for attr, sig := range best {
		signals[attr] = map[string]any{
			"confidence": sig.Confidence,
			"method":     sig.Method,
			"layer":      string(sig.Layer),
		}
	}
	tree.Metadata = map[string]any{
		"signals":    signals,
		"layers_run": layersRun,
	}
	if len(layerErrors) > 0 {
		tree.Metadata["layer_errors"] = layerErrors
	}

	return tree
}

// facilityCost reads cost_per_unit from facility metadata and scales it by
// quantity. Missing or unparseable values yield nil; cost is optional.
func facilityCost(fac *okw.Facility, quantity float64) *decimal.Decimal {
	v, ok := fac.Metadata[MetaCostPerUnit]
	if !ok {
		return nil
	}
	var per decimal.Decimal
	switch val := v.(type) {
	case float64:
		per = decimal.NewFromFloat(val)
	case int:
		per = decimal.NewFromInt(int64(val))
	case int64:
		per = decimal.NewFromInt(val)
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return nil
		}
		per = d
	default:
		return nil
	}
	total := per.Mul(decimal.NewFromFloat(quantity))
	return &total
}

// facilityLeadTime reads lead_time from facility metadata as a duration
// string.
func facilityLeadTime(fac *okw.Facility) (time.Duration, bool) {
	v, ok := fac.Metadata[MetaLeadTime]
	if !ok {
		return 0, false
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
