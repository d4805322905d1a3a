package matching

import (
	"testing"

	"openmatch/internal/okh"
	"openmatch/internal/solution"
)

func TestMergeFields_ThresholdAndTieBreak(t *testing.T) {
	exact := NewExactLayer()
	heur := NewHeuristicLayer()
	best := make(map[string]FieldSignal)

	// Below the exact layer's 0.8 threshold: dropped as uninformative.
	exactRes := NewLayerResult()
	exactRes.AddField(AttrProcess, FieldSignal{Confidence: 0.5, Method: "taxonomy_intersection"})
	exactRes.AddField(AttrMaterial, FieldSignal{Confidence: 1.0, Method: "token_equality"})
	MergeFields(best, exactRes, exact)

	if _, ok := best[AttrProcess]; ok {
		t.Error("sub-threshold process signal survived the merge")
	}
	if best[AttrMaterial].Layer != LayerExact {
		t.Errorf("material signal layer = %s, want exact", best[AttrMaterial].Layer)
	}

	// Heuristic produces a process signal above its own threshold: kept.
	heurRes := NewLayerResult()
	heurRes.AddField(AttrProcess, FieldSignal{Confidence: 0.7, Method: "process_hierarchy_fallback"})
	// Equal confidence on material must NOT displace the earlier layer.
	heurRes.AddField(AttrMaterial, FieldSignal{Confidence: 1.0, Method: "material_substitution"})
	MergeFields(best, heurRes, heur)

	if best[AttrProcess].Layer != LayerHeuristic {
		t.Errorf("process layer = %s, want heuristic", best[AttrProcess].Layer)
	}
	if best[AttrMaterial].Layer != LayerExact {
		t.Errorf("tie on material displaced the earlier layer: got %s", best[AttrMaterial].Layer)
	}
	if best[AttrMaterial].Method != "token_equality" {
		t.Errorf("material method = %q, want the exact layer's", best[AttrMaterial].Method)
	}
}

func TestCombine_AbsencePenalty(t *testing.T) {
	c := NewCombiner(nil, 0.1)

	best := map[string]FieldSignal{
		AttrProcess: {Confidence: 1.0},
	}

	// One attribute present at 1.0, one silent: (1*1.0) / (1 + 0.1).
	got := c.Combine(best, []string{AttrProcess, AttrMaterial})
	want := 1.0 / 1.1
	if !almostEqual(got, want) {
		t.Errorf("Combine = %v, want %v", got, want)
	}

	// All attributes present at 1.0: exactly 1.0.
	best[AttrMaterial] = FieldSignal{Confidence: 1.0}
	if got := c.Combine(best, []string{AttrProcess, AttrMaterial}); !almostEqual(got, 1.0) {
		t.Errorf("Combine = %v, want 1.0", got)
	}

	// No expected attributes: zero.
	if got := c.Combine(best, nil); got != 0 {
		t.Errorf("Combine with no expected attrs = %v, want 0", got)
	}
}

func TestCombine_FieldWeights(t *testing.T) {
	c := NewCombiner(map[string]float64{AttrProcess: 3.0}, 0.1)

	best := map[string]FieldSignal{
		AttrProcess:  {Confidence: 1.0},
		AttrMaterial: {Confidence: 0.5},
	}

	// (3*1.0 + 1*0.5) / (3 + 1)
	got := c.Combine(best, []string{AttrProcess, AttrMaterial})
	want := 3.5 / 4.0
	if !almostEqual(got, want) {
		t.Errorf("Combine = %v, want %v", got, want)
	}
}

func TestExpectedAttributes(t *testing.T) {
	layers := []Layer{NewExactLayer(), NewHeuristicLayer()}

	comp := compMatch(okh.Component{
		ID:        "c1",
		Processes: []string{"cnc milling"},
		Quantity:  10,
	}, 0)

	got := ExpectedAttributes(comp, layers)
	want := []string{AttrBatch, AttrProcess}
	if len(got) != len(want) {
		t.Fatalf("ExpectedAttributes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExpectedAttributes = %v, want %v", got, want)
		}
	}

	// Adding a material requirement widens the set.
	comp.Component.Materials = []string{"abs"}
	got = ExpectedAttributes(comp, layers)
	if len(got) != 3 {
		t.Errorf("ExpectedAttributes = %v, want batch+material+process", got)
	}
}

func TestDominantMatchType(t *testing.T) {
	c := NewCombiner(nil, 0.1)

	tests := []struct {
		name string
		best map[string]FieldSignal
		want solution.MatchType
	}{
		{
			"single layer",
			map[string]FieldSignal{
				AttrProcess: {Confidence: 1.0, Layer: LayerExact},
				AttrBatch:   {Confidence: 1.0, Layer: LayerExact},
			},
			solution.MatchExact,
		},
		{
			"mixed when second layer contributes",
			map[string]FieldSignal{
				AttrProcess:  {Confidence: 1.0, Layer: LayerExact},
				AttrMaterial: {Confidence: 0.7, Layer: LayerHeuristic},
			},
			solution.MatchMixed,
		},
		{
			"dominant despite a sliver from another layer",
			map[string]FieldSignal{
				AttrProcess:  {Confidence: 1.0, Layer: LayerExact},
				AttrBatch:    {Confidence: 1.0, Layer: LayerExact},
				AttrMaterial: {Confidence: 1.0, Layer: LayerExact},
				AttrSemantic: {Confidence: 0.55, Layer: LayerNLP},
			},
			solution.MatchExact,
		},
		{
			"no signals",
			map[string]FieldSignal{},
			solution.MatchUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.DominantMatchType(tt.best); got != tt.want {
				t.Errorf("DominantMatchType = %s, want %s", got, tt.want)
			}
		})
	}
}
