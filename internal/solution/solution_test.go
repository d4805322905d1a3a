package solution

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestDuration_JSON(t *testing.T) {
	type wrap struct {
		T Duration `json:"t,omitempty"`
	}

	out, err := json.Marshal(wrap{T: Duration(90 * time.Minute)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"t":"1h30m0s"}` {
		t.Errorf("marshal = %s", out)
	}

	var w wrap
	if err := json.Unmarshal([]byte(`{"t":"45m"}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.T.Std() != 45*time.Minute {
		t.Errorf("parsed = %v", w.T.Std())
	}

	// numeric nanoseconds also accepted
	if err := json.Unmarshal([]byte(`{"t":1000000000}`), &w); err != nil {
		t.Fatalf("unmarshal ns: %v", err)
	}
	if w.T.Std() != time.Second {
		t.Errorf("parsed ns = %v", w.T.Std())
	}

	// zero omitted
	out, err = json.Marshal(wrap{})
	if err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	if string(out) != `{}` {
		t.Errorf("zero marshal = %s", out)
	}
}

func sampleSolution() *SupplyTreeSolution {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cost := decimal.NewFromFloat(125.50)
	trees := []*SupplyTree{
		{
			ID: "tree-a", ComponentID: "comp-a", ComponentName: "Arm",
			FacilityID: "fac-1", Depth: 1, ProductionStage: StageComponent,
			Confidence: 0.92, MatchType: MatchExact,
			EstimatedCost: &cost, EstimatedTime: Duration(2 * time.Hour),
			ParentTreeID: "tree-r", RequiredBy: []string{"tree-r"},
			CreatedAt: now,
		},
		{
			ID: "tree-r", ComponentID: "comp-r", ComponentName: "Robot",
			FacilityID: "fac-2", Depth: 0, ProductionStage: StageFinal,
			Confidence: 0.8, MatchType: MatchHeuristic,
			ChildTreeIDs: []string{"tree-a"}, DependsOn: []string{"tree-a"},
			CreatedAt: now,
		},
	}
	return &SupplyTreeSolution{
		ID:           "sol-0123456789ab",
		MatchingMode: ModeNested,
		IsNested:     true,
		Score:        0.86,
		AllTrees:     trees,
		RootTreeIDs:  []string{"tree-r"},
		ComponentMapping: map[string][]string{
			"comp-a": {"tree-a"},
			"comp-r": {"tree-r"},
		},
		DependencyGraph: map[string][]string{
			"tree-a": {},
			"tree-r": {"tree-a"},
		},
		ProductionSequence: [][]string{{"tree-a"}, {"tree-r"}},
		Validation:         &ValidationResult{IsValid: true},
		TotalEstimatedCost: &cost,
		CriticalPathTime:   "2h0m0s",
		TTLDays:            30,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpiresAt:          now.AddDate(0, 0, 30),
	}
}

func TestSolution_RoundTrip(t *testing.T) {
	s := sampleSolution()

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back SupplyTreeSolution
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if diff := cmp.Diff(s, &back); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSolution_Accessors(t *testing.T) {
	s := sampleSolution()

	if got := s.TreeByID("tree-a"); got == nil || got.ComponentName != "Arm" {
		t.Errorf("TreeByID(tree-a) = %+v", got)
	}
	if got := s.TreeByID("missing"); got != nil {
		t.Errorf("TreeByID(missing) = %+v", got)
	}

	roots := s.RootTrees()
	if len(roots) != 1 || roots[0].ID != "tree-r" {
		t.Errorf("RootTrees = %+v", roots)
	}

	if got := s.FacilityCount(); got != 2 {
		t.Errorf("FacilityCount = %d", got)
	}
	if got := s.ComponentCount(); got != 2 {
		t.Errorf("ComponentCount = %d", got)
	}
}

func TestMetadataOf(t *testing.T) {
	s := sampleSolution()
	m := MetadataOf(s)

	if m.ID != s.ID || m.TreeCount != 2 || m.FacilityCount != 2 || m.ComponentCount != 2 {
		t.Errorf("unexpected metadata: %+v", m)
	}
	if m.TTLDays != 30 || !m.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("ttl fields: %+v", m)
	}

	now := s.CreatedAt.Add(49 * time.Hour)
	if got := m.AgeDays(now); got != 2 {
		t.Errorf("AgeDays = %d, want 2", got)
	}
}

func TestValidationResult_Add(t *testing.T) {
	v := &ValidationResult{IsValid: true}
	v.AddWarning("cost_missing: tree-a")
	if !v.IsValid || len(v.Warnings) != 1 {
		t.Errorf("warning should not invalidate: %+v", v)
	}
	v.AddError("dangling parent link")
	if v.IsValid || len(v.Errors) != 1 {
		t.Errorf("error must invalidate: %+v", v)
	}
}

func TestSolution_TimestampsMarshalUTC(t *testing.T) {
	s := sampleSolution()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	created, ok := raw["created_at"].(string)
	if !ok || created != "2026-03-01T12:00:00Z" {
		t.Errorf("created_at = %v, want Z-suffixed UTC", raw["created_at"])
	}
}
