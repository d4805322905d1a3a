package matching

import (
	"context"
	"math"
	"testing"

	"openmatch/internal/okh"
	"openmatch/internal/okw"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestHeuristicLayer_ParentProcessFallback(t *testing.T) {
	layer := NewHeuristicLayer()
	mctx := testContext(t)

	// Requirement is specific, facility offers only the general parent.
	comp := compMatch(okh.Component{ID: "c1", Processes: []string{"cnc milling"}}, 0)
	fac := &okw.Facility{ID: "f1", Processes: []string{"machining"}}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sig, ok := res.Fields[AttrProcess]
	if !ok {
		t.Fatal("no process signal")
	}
	if !almostEqual(sig.Confidence, heurProcessParent) {
		t.Errorf("parent fallback confidence = %v, want %v", sig.Confidence, heurProcessParent)
	}
}

func TestHeuristicLayer_ExactProcessStaysBelowExactLayer(t *testing.T) {
	layer := NewHeuristicLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Processes: []string{"cnc milling"}}, 0)
	fac := &okw.Facility{ID: "f1", Processes: []string{"3-axis milling"}}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Fields[AttrProcess].Confidence; !almostEqual(got, heurProcessExact) {
		t.Errorf("confidence = %v, want %v so the exact layer's 1.0 wins the merge", got, heurProcessExact)
	}
}

func TestHeuristicLayer_MaterialSubstitution(t *testing.T) {
	layer := NewHeuristicLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Materials: []string{"ABS"}}, 0)
	fac := &okw.Facility{ID: "f1", Materials: []string{"PETG"}}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sig, ok := res.Fields[AttrMaterial]
	if !ok {
		t.Fatal("no material signal")
	}
	if !almostEqual(sig.Confidence, heurMaterialSub) {
		t.Errorf("substitution confidence = %v, want %v", sig.Confidence, heurMaterialSub)
	}
	subs, _ := sig.Value.([]string)
	if len(subs) != 1 {
		t.Errorf("expected one recorded substitution, got %v", sig.Value)
	}
}

func TestHeuristicLayer_MaterialNotWhitelisted(t *testing.T) {
	layer := NewHeuristicLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Materials: []string{"titanium"}}, 0)
	fac := &okw.Facility{ID: "f1", Materials: []string{"petg"}}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Fields[AttrMaterial].Confidence; got != 0 {
		t.Errorf("non-whitelisted material scored %v, want 0", got)
	}
}

func TestHeuristicLayer_EquipmentTokenOverlap(t *testing.T) {
	layer := NewHeuristicLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{
		ID:          "c1",
		Constraints: map[string]any{ConstraintEquipment: []any{"3-axis CNC mill"}},
	}, 0)
	fac := &okw.Facility{
		ID: "f1",
		Equipment: []okw.Equipment{
			{Name: "Haas VF-2 CNC Mill", Description: "3-axis vertical machining center"},
			{Name: "band saw"},
		},
	}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sig, ok := res.Fields[AttrEquipment]
	if !ok {
		t.Fatal("no equipment signal")
	}
	// Every requirement token (3, axis, cnc, mill) appears in the first entry.
	if !almostEqual(sig.Confidence, heurEquipScale) {
		t.Errorf("equipment confidence = %v, want %v", sig.Confidence, heurEquipScale)
	}
	names, _ := sig.Value.([]string)
	if len(names) != 1 || names[0] != "Haas VF-2 CNC Mill" {
		t.Errorf("matched equipment = %v", sig.Value)
	}
}

func TestHeuristicLayer_EquipmentNoneListed(t *testing.T) {
	layer := NewHeuristicLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{
		ID:          "c1",
		Constraints: map[string]any{ConstraintEquipment: "laser cutter"},
	}, 0)
	fac := &okw.Facility{ID: "f1"}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := res.Fields[AttrEquipment]; ok {
		t.Error("expected no equipment signal when facility lists no equipment")
	}
}

func TestHeuristicLayer_CertificationSubset(t *testing.T) {
	layer := NewHeuristicLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{
		ID:          "c1",
		Constraints: map[string]any{ConstraintCertifications: []any{"ISO 9001", "AS9100"}},
	}, 0)

	full := &okw.Facility{ID: "f1", Certifications: []string{"iso 9001", "as9100", "iso 14001"}}
	half := &okw.Facility{ID: "f2", Certifications: []string{"ISO 9001"}}

	res, err := layer.Process(context.Background(), comp, full, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Fields[AttrCertification].Confidence; !almostEqual(got, heurCertScale) {
		t.Errorf("full subset = %v, want %v", got, heurCertScale)
	}

	res, err = layer.Process(context.Background(), comp, half, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Fields[AttrCertification].Confidence; !almostEqual(got, heurCertScale/2) {
		t.Errorf("half subset = %v, want %v", got, heurCertScale/2)
	}
}

func TestTokenCoverage(t *testing.T) {
	tests := []struct {
		name      string
		required  string
		candidate string
		want      float64
	}{
		{"full", "cnc mill", "Haas VF-2 CNC Mill 3-axis", 1.0},
		{"half", "laser cutter", "plasma cutter", 0.5},
		{"none", "lathe", "injection molder", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenCoverage(tokenize(tt.required), tokenize(tt.candidate))
			if !almostEqual(got, tt.want) {
				t.Errorf("tokenCoverage = %v, want %v", got, tt.want)
			}
		})
	}
}
