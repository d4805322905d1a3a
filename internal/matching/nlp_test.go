package matching

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"openmatch/internal/okh"
	"openmatch/internal/okw"
)

// fakeEngine returns canned vectors keyed by substring, counting calls.
type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	vectors map[string][]float32
	delay   time.Duration
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	for sub, vec := range f.vectors {
		if strings.Contains(text, sub) {
			return vec, nil
		}
	}
	return []float32{1, 0}, nil
}

func (f *fakeEngine) Dimensions() int { return 2 }
func (f *fakeEngine) Name() string    { return "fake" }

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNLPLayer_Similarity(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{
		"bracket": {1, 0},
		"shop":    {0.8, 0.6},
	}}
	layer := NewNLPLayer(engine, 0)
	mctx := testContext(t)

	comp := compMatch(okh.Component{
		ID:          "c1",
		Name:        "bracket",
		Description: "precision aluminum bracket",
	}, 0)
	fac := &okw.Facility{ID: "f1", Name: "shop", Description: "general machine shop"}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sig, ok := res.Fields[AttrSemantic]
	if !ok {
		t.Fatal("no semantic signal")
	}
	// cosine({1,0},{0.8,0.6}) = 0.8, scaled by 0.8.
	if !almostEqual(sig.Confidence, 0.64) {
		t.Errorf("semantic confidence = %v, want 0.64", sig.Confidence)
	}
}

func TestNLPLayer_CacheDedup(t *testing.T) {
	engine := &fakeEngine{}
	layer := NewNLPLayer(engine, 0)
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Name: "part", Description: "a part"}, 0)
	fac := &okw.Facility{ID: "f1", Name: "shop", Description: "a shop"}

	for i := 0; i < 3; i++ {
		if _, err := layer.Process(context.Background(), comp, fac, mctx); err != nil {
			t.Fatalf("Process #%d: %v", i, err)
		}
	}
	// One embed per unique text across all three invocations.
	if got := engine.callCount(); got != 2 {
		t.Errorf("engine calls = %d, want 2 (requirement + facility, cached after)", got)
	}
}

func TestNLPLayer_Timeout(t *testing.T) {
	engine := &fakeEngine{delay: 200 * time.Millisecond}
	layer := NewNLPLayer(engine, 10*time.Millisecond)
	mctx := testContext(t)

	comp := compMatch(okh.Component{ID: "c1", Name: "part", Description: "a part"}, 0)
	fac := &okw.Facility{ID: "f1", Name: "shop", Description: "a shop"}

	res, err := layer.Process(context.Background(), comp, fac, mctx)
	if err != nil {
		t.Fatalf("a layer timeout must not be an error, got %v", err)
	}
	if len(res.Fields) != 0 {
		t.Errorf("timed-out layer produced fields: %v", res.Fields)
	}
	if len(res.Errors) != 1 || res.Errors[0] != ErrStringTimeout {
		t.Errorf("errors = %v, want [timeout]", res.Errors)
	}
}

func TestNLPLayer_Cancelled(t *testing.T) {
	engine := &fakeEngine{}
	layer := NewNLPLayer(engine, 0)
	mctx := testContext(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	comp := compMatch(okh.Component{ID: "c1", Name: "part", Description: "a part"}, 0)
	res, err := layer.Process(ctx, comp, &okw.Facility{ID: "f1", Name: "shop"}, mctx)
	if err != ErrCancelled {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(res.Errors) != 1 || res.Errors[0] != ErrStringCancelled {
		t.Errorf("errors = %v, want [cancelled]", res.Errors)
	}
}

func TestNLPLayer_NoDescriptionNoSignal(t *testing.T) {
	engine := &fakeEngine{}
	layer := NewNLPLayer(engine, 0)
	mctx := testContext(t)

	// No free text anywhere: the semantic attribute is not expected.
	comp := compMatch(okh.Component{ID: "c1", Name: "part", Processes: []string{"welding"}}, 0)
	res, err := layer.Process(context.Background(), comp, &okw.Facility{ID: "f1", Name: "shop"}, mctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Fields) != 0 {
		t.Errorf("expected no fields, got %v", res.Fields)
	}
	if got := engine.callCount(); got != 0 {
		t.Errorf("engine called %d times for a component without text", got)
	}
}

func TestTruncateText_RuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short ascii untouched", "bracket", 120, "bracket"},
		{"ascii cut", "abcdef", 3, "abc..."},
		{"exact length untouched", "abc", 3, "abc"},
		{"multibyte cut mid-rune", "größe", 4, "grö..."},
		{"cjk cut mid-rune", "鋼板ブラケット", 4, "鋼..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateText(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncateText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateText(%q, %d) produced invalid UTF-8: %q", tt.in, tt.n, got)
			}
		})
	}
}

func TestAttributeExpected_SemanticFollowsManifestDescription(t *testing.T) {
	comp := compMatch(okh.Component{ID: "c1", Name: "part"}, 1)
	if attributeExpected(AttrSemantic, comp) {
		t.Error("semantic expected without any description")
	}
	comp.ResolvedManifest = &okh.Manifest{ID: "m1", Description: "a referenced design"}
	if !attributeExpected(AttrSemantic, comp) {
		t.Error("semantic not expected despite resolved manifest description")
	}
}
