package matching

import (
	"context"
	"strings"

	"openmatch/internal/okh"
	"openmatch/internal/okw"
	"openmatch/internal/resolver"
)

// Rule confidence bands. Exact-grade evidence re-derived here scores 0.9 so
// the exact layer's 1.0 always wins the merge; fallback rules score 0.7.
const (
	heurProcessExact  = 0.9
	heurProcessParent = 0.7
	heurMaterialEqual = 0.9
	heurMaterialSub   = 0.7
	heurEquipScale    = 0.8
	heurCertScale     = 0.8
)

// HeuristicLayer applies rule-based fallbacks where exact checks failed:
// a facility offering a parent process may still handle the specific one,
// whitelisted material substitutions, fuzzy token matching on equipment
// text, and certification subset checks. CPU-bound, no side effects.
type HeuristicLayer struct{}

// NewHeuristicLayer returns the heuristic layer.
func NewHeuristicLayer() *HeuristicLayer { return &HeuristicLayer{} }

func (l *HeuristicLayer) Name() LayerName { return LayerHeuristic }

func (l *HeuristicLayer) Attributes() []string {
	return []string{AttrProcess, AttrMaterial, AttrEquipment, AttrCertification}
}

func (l *HeuristicLayer) Threshold() float64 { return 0.6 }
func (l *HeuristicLayer) Ceiling() float64   { return 0.9 }

func (l *HeuristicLayer) Process(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context) (*LayerResult, error) {
	if ctx.Err() != nil {
		return cancelledResult(), ErrCancelled
	}

	res := NewLayerResult()
	c := &comp.Component

	if len(c.Processes) > 0 {
		l.matchProcessHierarchy(res, c, fac, mctx)
	}
	if len(c.Materials) > 0 {
		l.matchSubstitutions(res, c, fac, mctx)
	}
	if required := stringsConstraint(c, ConstraintEquipment); len(required) > 0 {
		l.matchEquipment(res, required, fac)
	}
	if required := stringsConstraint(c, ConstraintCertifications); len(required) > 0 {
		l.matchCertifications(res, required, fac)
	}

	return res, nil
}

// matchProcessHierarchy credits each required process at 0.9 when the
// facility satisfies it outright and at 0.7 when the facility offers an
// ancestor: a shop listing "machining" plausibly covers "cnc milling" even
// though the exact layer refuses the inference.
func (l *HeuristicLayer) matchProcessHierarchy(res *LayerResult, c *okh.Component, fac *okw.Facility, mctx *Context) {
	required, unknown := mctx.Taxonomy.NormalizeAll(c.Processes)
	offeredRaw := fac.AllProcesses()

	var credit float64
	var used []string
	for _, req := range required {
		best := 0.0
		var bestRaw string
		for _, raw := range offeredRaw {
			off, ok := mctx.Taxonomy.Normalize(raw)
			if !ok {
				continue
			}
			switch {
			case mctx.Taxonomy.Matches(req, off):
				best, bestRaw = heurProcessExact, raw
			case best < heurProcessParent && mctx.Taxonomy.Matches(off, req):
				// Offered is an ancestor of required.
				best, bestRaw = heurProcessParent, raw
			}
			if best == heurProcessExact {
				break
			}
		}
		credit += best
		if bestRaw != "" {
			used = append(used, bestRaw)
		}
	}

	total := len(required) + len(unknown)
	if total == 0 {
		return
	}
	conf := credit / float64(total)
	res.AddField(AttrProcess, FieldSignal{
		Value:      used,
		Confidence: conf,
		Method:     "process_hierarchy_fallback",
		RawSource:  strings.Join(c.Processes, ", "),
	})
	res.Logf("process hierarchy: credit %.2f over %d required at %s", credit, total, fac.ID)
}

// matchSubstitutions credits required materials stocked outright at 0.9 and
// those covered by the substitution whitelist at 0.7.
func (l *HeuristicLayer) matchSubstitutions(res *LayerResult, c *okh.Component, fac *okw.Facility, mctx *Context) {
	offered := make(map[string]bool)
	for _, m := range fac.AllMaterials() {
		offered[normalizeToken(m)] = true
	}

	var credit float64
	var substituted []string
	for _, m := range c.Materials {
		key := normalizeToken(m)
		if offered[key] {
			credit += heurMaterialEqual
			continue
		}
		for _, alt := range mctx.Substitutions[key] {
			if offered[normalizeToken(alt)] {
				credit += heurMaterialSub
				substituted = append(substituted, m+" -> "+alt)
				break
			}
		}
	}

	conf := credit / float64(len(c.Materials))
	res.AddField(AttrMaterial, FieldSignal{
		Value:      substituted,
		Confidence: conf,
		Method:     "material_substitution",
		RawSource:  strings.Join(c.Materials, ", "),
	})
	if len(substituted) > 0 {
		res.Logf("material substitutions at %s: %s", fac.ID, strings.Join(substituted, "; "))
	}
}

// matchEquipment scores each required equipment string by how completely its
// tokens appear in some facility equipment entry (name, process and
// description text pooled).
func (l *HeuristicLayer) matchEquipment(res *LayerResult, required []string, fac *okw.Facility) {
	if len(fac.Equipment) == 0 {
		res.Logf("equipment constraint present but %s lists no equipment", fac.ID)
		return
	}

	entries := make([][]string, len(fac.Equipment))
	for i, e := range fac.Equipment {
		entries[i] = tokenize(e.Name + " " + e.Process + " " + e.Description)
	}

	var sum float64
	var matched []string
	for _, req := range required {
		reqTokens := tokenize(req)
		best := 0.0
		bestIdx := -1
		for i, entry := range entries {
			if score := tokenCoverage(reqTokens, entry); score > best {
				best, bestIdx = score, i
			}
		}
		sum += best
		if bestIdx >= 0 && best > 0 {
			matched = append(matched, fac.Equipment[bestIdx].Name)
		}
	}

	conf := heurEquipScale * sum / float64(len(required))
	res.AddField(AttrEquipment, FieldSignal{
		Value:      matched,
		Confidence: conf,
		Method:     "token_overlap",
		RawSource:  strings.Join(required, ", "),
	})
}

// matchCertifications checks required certifications against those the
// facility holds; a full subset scores 0.8.
func (l *HeuristicLayer) matchCertifications(res *LayerResult, required []string, fac *okw.Facility) {
	held := make(map[string]bool)
	for _, cert := range fac.Certifications {
		held[normalizeToken(cert)] = true
	}

	matched := 0
	for _, req := range required {
		if held[normalizeToken(req)] {
			matched++
		}
	}

	conf := heurCertScale * float64(matched) / float64(len(required))
	res.AddField(AttrCertification, FieldSignal{
		Value:      matched,
		Confidence: conf,
		Method:     "certification_subset",
		RawSource:  strings.Join(required, ", "),
	})
}

// tokenize lowercases and splits on non-alphanumeric runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// tokenCoverage reports the fraction of required tokens present in the
// candidate token set. Asymmetric on purpose: extra candidate tokens such as
// vendor names never hurt.
func tokenCoverage(required, candidate []string) float64 {
	if len(required) == 0 {
		return 0
	}
	set := make(map[string]bool, len(candidate))
	for _, t := range candidate {
		set[t] = true
	}
	hits := 0
	for _, t := range required {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(required))
}
