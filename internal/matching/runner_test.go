package matching

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/goleak"

	"openmatch/internal/okh"
	"openmatch/internal/okw"
	"openmatch/internal/resolver"
	"openmatch/internal/solution"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner(layers ...Layer) *Runner {
	if len(layers) == 0 {
		layers = []Layer{NewExactLayer(), NewHeuristicLayer()}
	}
	r := NewRunner(layers, NewCombiner(nil, 0.1))
	r.TargetConfidence = 0.9
	return r
}

func TestRunner_SingleFacilityExactMatch(t *testing.T) {
	runner := newTestRunner()
	mctx := testContext(t)

	comp := compMatch(okh.Component{
		ID:        "widget",
		Name:      "Widget",
		Quantity:  10,
		Processes: []string{"cnc milling"},
	}, 0)
	fac := &okw.Facility{ID: "f1", Name: "Acme", Processes: []string{"3-axis milling"}}

	trees, err := runner.Run(context.Background(), comp, []*okw.Facility{fac}, mctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("got %d trees, want 1", len(trees))
	}

	tree := trees[0]
	if tree.Confidence < 0.8 {
		t.Errorf("confidence = %v, want >= 0.8", tree.Confidence)
	}
	if tree.MatchType != solution.MatchExact {
		t.Errorf("match type = %s, want exact", tree.MatchType)
	}
	if tree.ProductionStage != solution.StageFinal {
		t.Errorf("stage = %s, want final for depth 0", tree.ProductionStage)
	}
	if tree.ComponentID != "widget" || tree.FacilityID != "f1" {
		t.Errorf("identity not stamped: %s at %s", tree.ComponentID, tree.FacilityID)
	}
	if tree.ID == "" || tree.CreatedAt.IsZero() {
		t.Error("tree id or created_at missing")
	}
	if len(tree.CapabilitiesUsed) == 0 {
		t.Error("capabilities_used not recorded from the process signal")
	}
}

func TestRunner_DropsFacilityWithoutSignal(t *testing.T) {
	runner := newTestRunner()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Processes: []string{"cnc milling"}}, 0)
	fac := &okw.Facility{ID: "f1", Name: "Woodworks", Processes: []string{"welding"}}

	trees, err := runner.Run(context.Background(), comp, []*okw.Facility{fac}, mctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trees) != 0 {
		t.Errorf("facility with no informative signal produced %d trees", len(trees))
	}
}

func TestRunner_MinConfidenceFloor(t *testing.T) {
	runner := newTestRunner()
	runner.MinConfidence = 0.95
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Quantity: 500, Processes: []string{"cnc milling"}}, 0)

	// f-good covers process and batch: combined 1.0.
	// f-small matches the process but rejects the batch: the batch signal
	// drops to the absence penalty and combined lands near 0.91.
	good := &okw.Facility{ID: "f-good", Processes: []string{"cnc milling"}}
	small := &okw.Facility{ID: "f-small", Processes: []string{"cnc milling"}, BatchRange: okw.BatchRange{Min: 1, Max: 100}}

	trees, err := runner.Run(context.Background(), comp, []*okw.Facility{good, small}, mctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trees) != 1 || trees[0].FacilityID != "f-good" {
		ids := make([]string, len(trees))
		for i, tr := range trees {
			ids[i] = tr.FacilityID
		}
		t.Errorf("facilities kept = %v, want [f-good]", ids)
	}
}

// countingLayer is a deterministic stub that records invocations.
type countingLayer struct {
	name      LayerName
	conf      float64
	threshold float64
	ceiling   float64
	calls     atomic.Int32
}

func (l *countingLayer) Name() LayerName      { return l.name }
func (l *countingLayer) Attributes() []string { return []string{AttrProcess} }
func (l *countingLayer) Threshold() float64   { return l.threshold }
func (l *countingLayer) Ceiling() float64     { return l.ceiling }

func (l *countingLayer) Process(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context) (*LayerResult, error) {
	l.calls.Add(1)
	res := NewLayerResult()
	res.AddField(AttrProcess, FieldSignal{Confidence: l.conf, Method: "stub"})
	return res, nil
}

func TestRunner_EarlyStopAtTarget(t *testing.T) {
	first := &countingLayer{name: LayerExact, conf: 1.0, ceiling: 1.0}
	second := &countingLayer{name: LayerHeuristic, conf: 0.7, ceiling: 0.9}

	runner := NewRunner([]Layer{first, second}, NewCombiner(nil, 0.1))
	runner.TargetConfidence = 0.9
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Processes: []string{"cnc milling"}}, 0)
	fac := &okw.Facility{ID: "f1"}

	trees, err := runner.Run(context.Background(), comp, []*okw.Facility{fac}, mctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("got %d trees, want 1", len(trees))
	}
	if got := second.calls.Load(); got != 0 {
		t.Errorf("second layer ran %d times despite target reached by the first", got)
	}
}

func TestRunner_TargetOneRunsAllLayers(t *testing.T) {
	first := &countingLayer{name: LayerExact, conf: 0.9, ceiling: 1.0}
	second := &countingLayer{name: LayerHeuristic, conf: 0.7, ceiling: 2.0}

	runner := NewRunner([]Layer{first, second}, NewCombiner(nil, 0.1))
	runner.TargetConfidence = 1.0
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Processes: []string{"cnc milling"}}, 0)
	fac := &okw.Facility{ID: "f1"}

	if _, err := runner.Run(context.Background(), comp, []*okw.Facility{fac}, mctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := second.calls.Load(); got != 1 {
		t.Errorf("second layer ran %d times, want 1 (target 1.0 forces the full pipeline)", got)
	}
}

func TestRunner_SortsByFacilityID(t *testing.T) {
	runner := newTestRunner()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Processes: []string{"welding"}}, 1)
	facilities := []*okw.Facility{
		{ID: "f-c", Processes: []string{"welding"}},
		{ID: "f-a", Processes: []string{"welding"}},
		{ID: "f-b", Processes: []string{"welding"}},
	}

	trees, err := runner.Run(context.Background(), comp, facilities, mctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trees) != 3 {
		t.Fatalf("got %d trees, want 3", len(trees))
	}
	for i, want := range []string{"f-a", "f-b", "f-c"} {
		if trees[i].FacilityID != want {
			t.Errorf("trees[%d].FacilityID = %s, want %s", i, trees[i].FacilityID, want)
		}
	}
	for _, tree := range trees {
		if tree.ProductionStage != solution.StageComponent {
			t.Errorf("stage = %s, want component for depth 1", tree.ProductionStage)
		}
	}
}

func TestRunner_CostAndLeadTime(t *testing.T) {
	runner := newTestRunner()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Quantity: 4, Processes: []string{"welding"}}, 0)
	fac := &okw.Facility{
		ID:        "f1",
		Processes: []string{"welding"},
		Metadata: map[string]any{
			MetaCostPerUnit: 2.5,
			MetaLeadTime:    "48h",
		},
	}

	trees, err := runner.Run(context.Background(), comp, []*okw.Facility{fac}, mctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("got %d trees, want 1", len(trees))
	}

	tree := trees[0]
	if tree.EstimatedCost == nil || !tree.EstimatedCost.Equal(decimal.NewFromInt(10)) {
		t.Errorf("estimated cost = %v, want 10", tree.EstimatedCost)
	}
	if tree.EstimatedTime.Std() != 48*time.Hour {
		t.Errorf("estimated time = %v, want 48h", tree.EstimatedTime)
	}
}

// blockingLayer parks until cancellation.
type blockingLayer struct{}

func (l *blockingLayer) Name() LayerName      { return LayerNLP }
func (l *blockingLayer) Attributes() []string { return []string{AttrSemantic} }
func (l *blockingLayer) Threshold() float64   { return 0.5 }
func (l *blockingLayer) Ceiling() float64     { return 0.8 }

func (l *blockingLayer) Process(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context) (*LayerResult, error) {
	<-ctx.Done()
	return cancelledResult(), ErrCancelled
}

func TestRunner_Cancellation(t *testing.T) {
	runner := NewRunner([]Layer{&blockingLayer{}}, NewCombiner(nil, 0.1))
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Name: "part", Description: "d"}, 0)
	facilities := []*okw.Facility{{ID: "f1"}, {ID: "f2"}, {ID: "f3"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx, comp, facilities, mctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != ErrCancelled {
			t.Errorf("Run returned %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
