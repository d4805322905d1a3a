package matching

import (
	"sort"

	"openmatch/internal/resolver"
	"openmatch/internal/solution"
)

// DefaultAbsencePenaltyWeight is the weight an expected attribute carries
// when no layer produced a signal for it. Absence is not neutral.
const DefaultAbsencePenaltyWeight = 0.1

// mixedShare is the fraction of total weighted confidence a second layer
// must contribute for a match to be stamped mixed.
const mixedShare = 0.2

// Combiner folds per-attribute signals into one confidence per pair.
type Combiner struct {
	// FieldWeights weighs attributes when combining; unlisted attributes
	// weigh 1.0.
	FieldWeights map[string]float64

	// AbsencePenaltyWeight applies to expected attributes with no signal.
	AbsencePenaltyWeight float64
}

// NewCombiner builds a combiner. A non-positive penalty weight defaults.
func NewCombiner(fieldWeights map[string]float64, absencePenalty float64) *Combiner {
	if absencePenalty <= 0 {
		absencePenalty = DefaultAbsencePenaltyWeight
	}
	return &Combiner{FieldWeights: fieldWeights, AbsencePenaltyWeight: absencePenalty}
}

func (c *Combiner) weightOf(attr string) float64 {
	if w, ok := c.FieldWeights[attr]; ok && w > 0 {
		return w
	}
	return 1.0
}

// MergeFields folds one layer's result into the best-signal map. Call it in
// pipeline order: signals below the producing layer's threshold are dropped
// as uninformative, and a surviving signal replaces the incumbent only on
// strictly higher confidence, so earlier layers win exact ties.
func MergeFields(best map[string]FieldSignal, res *LayerResult, layer Layer) {
	for attr, sig := range res.Fields {
		if sig.Confidence < layer.Threshold() {
			continue
		}
		sig.Layer = layer.Name()
		if cur, ok := best[attr]; ok && sig.Confidence <= cur.Confidence {
			continue
		}
		best[attr] = sig
	}
}

// Combine computes the weighted confidence over the expected attributes,
// normalised to [0,1]. An expected attribute with no signal contributes zero
// confidence at the penalty weight.
func (c *Combiner) Combine(best map[string]FieldSignal, expected []string) float64 {
	if len(expected) == 0 {
		return 0
	}
	var num, den float64
	for _, attr := range expected {
		if sig, ok := best[attr]; ok {
			w := c.weightOf(attr)
			num += w * sig.Confidence
			den += w
		} else {
			den += c.AbsencePenaltyWeight
		}
	}
	if den == 0 {
		return 0
	}
	v := num / den
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ExpectedAttributes lists the attributes the enabled layers could produce
// for a component: the union of layer attributes, filtered to those the
// component actually expresses a requirement for. Attributes the component
// never asked about are not penalised.
func ExpectedAttributes(comp *resolver.ComponentMatch, layers []Layer) []string {
	seen := make(map[string]bool)
	var out []string
	for _, layer := range layers {
		for _, attr := range layer.Attributes() {
			if seen[attr] || !attributeExpected(attr, comp) {
				continue
			}
			seen[attr] = true
			out = append(out, attr)
		}
	}
	sort.Strings(out)
	return out
}

func attributeExpected(attr string, comp *resolver.ComponentMatch) bool {
	c := &comp.Component
	switch attr {
	case AttrProcess:
		return len(c.Processes) > 0
	case AttrMaterial:
		return len(c.Materials) > 0
	case AttrBatch:
		return c.Quantity > 0
	case AttrAccess:
		_, ok := accessConstraint(c)
		return ok
	case AttrEquipment:
		return len(stringsConstraint(c, ConstraintEquipment)) > 0
	case AttrCertification:
		return len(stringsConstraint(c, ConstraintCertifications)) > 0
	case AttrSemantic:
		return semanticRequirementText(comp) != ""
	case AttrAssessment:
		// A language model can always form a judgement.
		return true
	default:
		return false
	}
}

// DominantMatchType names the layer contributing the most weighted
// confidence across the winning signals, or mixed when a second layer
// contributes a non-trivial share of the total.
func (c *Combiner) DominantMatchType(best map[string]FieldSignal) solution.MatchType {
	contrib := make(map[LayerName]float64)
	var total float64
	for attr, sig := range best {
		w := c.weightOf(attr) * sig.Confidence
		contrib[sig.Layer] += w
		total += w
	}
	if total == 0 {
		return solution.MatchUnknown
	}

	var domName LayerName
	domVal := -1.0
	significant := 0
	for name, v := range contrib {
		if v > domVal || (v == domVal && name.Order() < domName.Order()) {
			domName, domVal = name, v
		}
		if v/total >= mixedShare {
			significant++
		}
	}
	if significant >= 2 {
		return solution.MatchMixed
	}
	return matchTypeOf(domName)
}

func matchTypeOf(n LayerName) solution.MatchType {
	switch n {
	case LayerExact:
		return solution.MatchExact
	case LayerHeuristic:
		return solution.MatchHeuristic
	case LayerNLP:
		return solution.MatchNLP
	case LayerLLM:
		return solution.MatchLLM
	default:
		return solution.MatchUnknown
	}
}
