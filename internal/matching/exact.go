package matching

import (
	"context"
	"fmt"
	"strings"

	"openmatch/internal/okh"
	"openmatch/internal/okw"
	"openmatch/internal/resolver"
)

// ExactLayer performs membership and equality checks: process-set
// intersection through the taxonomy, material token equality, batch-range
// containment, and access-type compatibility. No network, no guessing.
type ExactLayer struct{}

// NewExactLayer returns the exact layer.
func NewExactLayer() *ExactLayer { return &ExactLayer{} }

func (l *ExactLayer) Name() LayerName { return LayerExact }

func (l *ExactLayer) Attributes() []string {
	return []string{AttrProcess, AttrMaterial, AttrBatch, AttrAccess}
}

func (l *ExactLayer) Threshold() float64 { return 0.8 }
func (l *ExactLayer) Ceiling() float64   { return 1.0 }

func (l *ExactLayer) Process(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context) (*LayerResult, error) {
	if ctx.Err() != nil {
		return cancelledResult(), ErrCancelled
	}

	res := NewLayerResult()
	c := &comp.Component

	if len(c.Processes) > 0 {
		l.matchProcesses(res, c, fac, mctx)
	}
	if len(c.Materials) > 0 {
		l.matchMaterials(res, c, fac)
	}
	if c.Quantity > 0 {
		l.matchBatch(res, c, fac)
	}
	if required, ok := accessConstraint(c); ok {
		l.matchAccess(res, required, fac)
	}

	return res, nil
}

// matchProcesses checks that every required process is offered, where
// "offered" means equal or a taxonomy descendant (a facility doing
// "cnc milling" satisfies a requirement for "machining"). Required strings
// that normalize to nothing count against the score; they can never be
// satisfied and the requirement author should hear about it.
func (l *ExactLayer) matchProcesses(res *LayerResult, c *okh.Component, fac *okw.Facility, mctx *Context) {
	required, unknown := mctx.Taxonomy.NormalizeAll(c.Processes)
	if len(unknown) > 0 {
		res.Logf("required processes not in taxonomy: %s", strings.Join(unknown, ", "))
	}

	offeredRaw := fac.AllProcesses()
	satisfied := 0
	var used []string
	for _, req := range required {
		for _, raw := range offeredRaw {
			off, ok := mctx.Taxonomy.Normalize(raw)
			if ok && mctx.Taxonomy.Matches(req, off) {
				satisfied++
				used = append(used, raw)
				break
			}
		}
	}

	total := len(required) + len(unknown)
	if total == 0 {
		return
	}
	conf := float64(satisfied) / float64(total)
	res.AddField(AttrProcess, FieldSignal{
		Value:      used,
		Confidence: conf,
		Method:     "taxonomy_intersection",
		RawSource:  strings.Join(c.Processes, ", "),
	})
	res.Logf("process: %d/%d required satisfied by %s", satisfied, total, fac.ID)
}

// matchMaterials checks required material tokens against the facility's
// stocked materials, case-insensitively.
func (l *ExactLayer) matchMaterials(res *LayerResult, c *okh.Component, fac *okw.Facility) {
	offered := make(map[string]bool)
	for _, m := range fac.AllMaterials() {
		offered[normalizeToken(m)] = true
	}

	matched := 0
	for _, m := range c.Materials {
		if offered[normalizeToken(m)] {
			matched++
		}
	}

	conf := float64(matched) / float64(len(c.Materials))
	res.AddField(AttrMaterial, FieldSignal{
		Value:      matched,
		Confidence: conf,
		Method:     "token_equality",
		RawSource:  strings.Join(c.Materials, ", "),
	})
	res.Logf("material: %d/%d required stocked by %s", matched, len(c.Materials), fac.ID)
}

// matchBatch checks quantity containment in the facility's batch range.
// Containment is binary; a facility that cannot take the batch contributes
// nothing informative and the absence penalty applies at combination.
func (l *ExactLayer) matchBatch(res *LayerResult, c *okh.Component, fac *okw.Facility) {
	conf := 0.0
	if fac.BatchRange.Contains(c.Quantity) {
		conf = 1.0
	}
	res.AddField(AttrBatch, FieldSignal{
		Value:      c.Quantity,
		Confidence: conf,
		Method:     "range_containment",
		RawSource:  fmt.Sprintf("quantity %v vs range [%d, %d]", c.Quantity, fac.BatchRange.Min, fac.BatchRange.Max),
	})
}

// matchAccess checks the facility's access type against a required minimum
// openness.
func (l *ExactLayer) matchAccess(res *LayerResult, required okw.AccessType, fac *okw.Facility) {
	conf := 0.0
	if okw.AccessSatisfies(required, fac.AccessType) {
		conf = 1.0
	}
	res.AddField(AttrAccess, FieldSignal{
		Value:      string(fac.AccessType),
		Confidence: conf,
		Method:     "access_rank",
		RawSource:  fmt.Sprintf("required %s, offered %s", required, fac.AccessType),
	})
}

// normalizeToken lowercases and trims a material or equipment token.
func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// accessConstraint reads the component's access_type constraint, if one is
// set and is a string.
func accessConstraint(c *okh.Component) (okw.AccessType, bool) {
	if s, ok := stringConstraint(c, ConstraintAccessType); ok {
		return okw.AccessType(s), true
	}
	return "", false
}

// stringConstraint type-witnesses a constraint value as a non-empty string.
func stringConstraint(c *okh.Component, key string) (string, bool) {
	v, ok := c.Constraints[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// stringsConstraint type-witnesses a constraint value as a string list.
// A bare string becomes a one-element list; other shapes are ignored.
func stringsConstraint(c *okh.Component, key string) []string {
	v, ok := c.Constraints[key]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
