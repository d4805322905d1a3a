package matching

import (
	"context"
	"testing"

	"openmatch/internal/okh"
	"openmatch/internal/okw"
)

func TestExactLayer_ProcessIntersection(t *testing.T) {
	layer := NewExactLayer()
	mctx := testContext(t)

	tests := []struct {
		name     string
		required []string
		offered  []string
		want     float64
	}{
		{"alias match", []string{"cnc milling"}, []string{"3-axis milling"}, 1.0},
		{"descendant satisfies ancestor", []string{"machining"}, []string{"cnc milling"}, 1.0},
		{"ancestor does not satisfy descendant", []string{"cnc milling"}, []string{"machining"}, 0.0},
		{"partial", []string{"cnc milling", "welding"}, []string{"cnc milling"}, 0.5},
		{"unknown required counts against", []string{"cnc milling", "levitation"}, []string{"cnc milling"}, 0.5},
		{"no offered", []string{"cnc milling"}, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := compMatch(okh.Component{ID: "c1", Name: "part", Processes: tt.required}, 0)
			fac := &okw.Facility{ID: "f1", Processes: tt.offered}

			res, err := layer.Process(context.Background(), comp, fac, mctx)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			sig, ok := res.Fields[AttrProcess]
			if !ok {
				t.Fatal("no process signal")
			}
			if sig.Confidence != tt.want {
				t.Errorf("process confidence = %v, want %v", sig.Confidence, tt.want)
			}
		})
	}
}

func TestExactLayer_Materials(t *testing.T) {
	layer := NewExactLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Materials: []string{"Aluminum 6061", "steel"}}, 0)
	fac := &okw.Facility{
		ID:        "f1",
		Materials: []string{"aluminum 6061"},
		Equipment: []okw.Equipment{{Name: "saw", Materials: []string{"STEEL"}}},
	}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sig := res.Fields[AttrMaterial]
	if sig.Confidence != 1.0 {
		t.Errorf("material confidence = %v, want 1.0 (case-insensitive, equipment materials count)", sig.Confidence)
	}
}

func TestExactLayer_Batch(t *testing.T) {
	layer := NewExactLayer()
	mctx := testContext(t)

	tests := []struct {
		name     string
		quantity float64
		rng      okw.BatchRange
		want     float64
	}{
		{"in range", 50, okw.BatchRange{Min: 10, Max: 100}, 1.0},
		{"below min", 5, okw.BatchRange{Min: 10, Max: 100}, 0.0},
		{"unbounded max", 5000, okw.BatchRange{Min: 10}, 1.0},
		{"unset range accepts anything", 1, okw.BatchRange{}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := compMatch(okh.Component{ID: "c1", Quantity: tt.quantity}, 0)
			fac := &okw.Facility{ID: "f1", BatchRange: tt.rng}

			res, err := layer.Process(context.Background(), comp, fac, mctx)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if got := res.Fields[AttrBatch].Confidence; got != tt.want {
				t.Errorf("batch confidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExactLayer_Access(t *testing.T) {
	layer := NewExactLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{
		ID:          "c1",
		Constraints: map[string]any{ConstraintAccessType: "membership"},
	}, 0)

	open := &okw.Facility{ID: "f1", AccessType: okw.AccessPublic}
	closed := &okw.Facility{ID: "f2", AccessType: okw.AccessRestricted}

	res, err := layer.Process(context.Background(), comp, open, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Fields[AttrAccess].Confidence; got != 1.0 {
		t.Errorf("public facility vs membership requirement = %v, want 1.0", got)
	}

	res, err = layer.Process(context.Background(), comp, closed, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Fields[AttrAccess].Confidence; got != 0.0 {
		t.Errorf("restricted facility vs membership requirement = %v, want 0.0", got)
	}
}

func TestExactLayer_NoRequirementsNoSignals(t *testing.T) {
	layer := NewExactLayer()
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Name: "bare"}, 0)
	fac := &okw.Facility{ID: "f1", Processes: []string{"cnc milling"}}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Fields) != 0 {
		t.Errorf("expected no signals for a component with no requirements, got %v", res.Fields)
	}
}

func TestExactLayer_Cancelled(t *testing.T) {
	layer := NewExactLayer()
	mctx := testContext(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	comp := compMatch(okh.Component{ID: "c1", Processes: []string{"cnc milling"}}, 0)
	res, err := layer.Process(ctx, comp, &okw.Facility{ID: "f1"}, mctx)
	if err != ErrCancelled {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(res.Errors) != 1 || res.Errors[0] != ErrStringCancelled {
		t.Errorf("errors = %v, want [cancelled]", res.Errors)
	}
}
