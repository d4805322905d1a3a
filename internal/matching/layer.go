// Package matching scores (component, facility) pairs through a pipeline of
// progressively fuzzier layers: exact set membership, rule-based heuristics,
// embedding similarity, and LLM assessment. Each layer emits per-attribute
// confidence signals; the combiner folds them into one score per pair and the
// runner fans the pipeline out across facilities.
package matching

import (
	"context"
	"errors"
	"fmt"

	"openmatch/internal/okw"
	"openmatch/internal/resolver"
	"openmatch/internal/taxonomy"
)

// LayerName identifies one matching layer.
type LayerName string

const (
	LayerExact     LayerName = "exact"
	LayerHeuristic LayerName = "heuristic"
	LayerNLP       LayerName = "nlp"
	LayerLLM       LayerName = "llm"
)

// layerOrder fixes the pipeline position of each layer. Deterministic layers
// run first so they win confidence ties.
var layerOrder = map[LayerName]int{
	LayerExact:     0,
	LayerHeuristic: 1,
	LayerNLP:       2,
	LayerLLM:       3,
}

// Order returns the pipeline position of a layer, later-than-known for
// unknown names.
func (n LayerName) Order() int {
	if pos, ok := layerOrder[n]; ok {
		return pos
	}
	return len(layerOrder)
}

// Attribute names layers produce signals for. Each attribute maps one
// aspect of a requirement onto one aspect of a facility's capability.
const (
	AttrProcess       = "process"       // required processes vs offered processes
	AttrMaterial      = "material"      // required materials vs stocked materials
	AttrBatch         = "batch"         // required quantity vs batch range
	AttrAccess        = "access"        // required openness vs access type
	AttrEquipment     = "equipment"     // equipment constraint vs equipment list
	AttrCertification = "certification" // certification constraint vs held certifications
	AttrSemantic      = "semantic"      // free-text similarity
	AttrAssessment    = "assessment"    // holistic LLM judgement
)

// Well-known component constraint keys the layers inspect. Constraints are
// free-form maps; layers type-witness the values they care about and ignore
// the rest.
const (
	ConstraintAccessType     = "access_type"    // string
	ConstraintEquipment      = "equipment"      // string or []string
	ConstraintCertifications = "certifications" // string or []string
)

// FieldSignal is one layer's verdict on one attribute of a pair.
type FieldSignal struct {
	// Value is layer-specific evidence: matched process strings, a cosine
	// similarity, an LLM reasoning string.
	Value any `json:"value,omitempty"`

	Confidence float64 `json:"confidence"`

	// Method names the check that produced the signal, e.g.
	// "taxonomy_intersection" or "material_substitution".
	Method string `json:"method"`

	// RawSource cites the input the signal was derived from.
	RawSource string `json:"raw_source,omitempty"`

	// Layer is stamped at merge time.
	Layer LayerName `json:"layer"`
}

// LayerResult is everything one layer produced for one pair.
type LayerResult struct {
	Fields map[string]FieldSignal `json:"fields"`
	Errors []string               `json:"errors,omitempty"`
	Log    []string               `json:"log,omitempty"`
}

// NewLayerResult returns an empty result ready for AddField.
func NewLayerResult() *LayerResult {
	return &LayerResult{Fields: make(map[string]FieldSignal)}
}

// AddField records a signal for an attribute.
func (r *LayerResult) AddField(attr string, sig FieldSignal) {
	r.Fields[attr] = sig
}

// AddError records a layer-level error string.
func (r *LayerResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Logf records a diagnostic line kept with match provenance.
func (r *LayerResult) Logf(format string, args ...any) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// Layer error strings recorded in LayerResult.Errors. A timed-out layer
// yields empty fields and the pipeline continues; a cancelled layer aborts
// the whole pair.
const (
	ErrStringTimeout   = "timeout"
	ErrStringCancelled = "cancelled"
)

// ErrCancelled is returned by Process when the run's context is done. The
// runner stops the pipeline and propagates cancellation; layer-internal
// timeouts are not errors and surface only in LayerResult.Errors.
var ErrCancelled = errors.New("cancelled")

// Context carries per-run state shared by every layer invocation: the
// taxonomy snapshot held for the duration of the run, the material
// substitution whitelist, and the run id for audit correlation.
type Context struct {
	Taxonomy      *taxonomy.Table
	Substitutions map[string][]string
	RunID         string
}

// Layer is one matcher in the pipeline.
//
// Process scores a pair. On a cancelled context it must return promptly with
// "cancelled" in the result's Errors and ErrCancelled; it never blocks past
// cancellation. A layer that hits an internal deadline returns empty fields
// with "timeout" recorded and a nil error so later layers still run.
type Layer interface {
	Name() LayerName

	// Attributes lists the attribute names this layer can produce.
	Attributes() []string

	Process(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context) (*LayerResult, error)

	// Threshold is the confidence below which this layer's signals are
	// uninformative and dropped at merge.
	Threshold() float64

	// Ceiling is the combined confidence beyond which later layers add
	// nothing for this layer's domain; reaching it short-circuits the
	// pipeline for the pair.
	Ceiling() float64
}

// cancelledResult is the partial result every layer returns on cancellation.
func cancelledResult() *LayerResult {
	r := NewLayerResult()
	r.AddError(ErrStringCancelled)
	return r
}

// timeoutResult is the empty result a layer returns when its internal
// deadline passes.
func timeoutResult() *LayerResult {
	r := NewLayerResult()
	r.AddError(ErrStringTimeout)
	return r
}

// LayersFromNames maps config layer names onto constructed layers, keeping
// pipeline order regardless of the order names were given in. Unknown names
// are reported, not skipped silently.
func LayersFromNames(names []string, available map[LayerName]Layer) ([]Layer, error) {
	picked := make([]Layer, 0, len(names))
	for _, raw := range names {
		name := LayerName(raw)
		layer, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("unknown matching layer %q", raw)
		}
		picked = append(picked, layer)
	}
	// Insertion sort by pipeline order; the slice is tiny.
	for i := 1; i < len(picked); i++ {
		for j := i; j > 0 && picked[j].Name().Order() < picked[j-1].Name().Order(); j-- {
			picked[j], picked[j-1] = picked[j-1], picked[j]
		}
	}
	return picked, nil
}
