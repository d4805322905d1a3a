package matching

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"openmatch/internal/embedding"
	"openmatch/internal/logging"
	"openmatch/internal/okw"
	"openmatch/internal/resolver"
)

// nlpScale maps cosine similarity into the layer's confidence band.
const nlpScale = 0.8

// DefaultNLPTimeout bounds one pair's embedding work.
const DefaultNLPTimeout = 5 * time.Second

// NLPLayer scores semantic similarity between requirement free text and
// facility capability text via an embedding engine. Vectors are memoised for
// the layer's lifetime keyed by text hash, so a run embeds each unique text
// once no matter how many facilities it is compared against. Build a fresh
// layer per match run.
type NLPLayer struct {
	engine  embedding.Engine
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]*vecEntry
}

// vecEntry is one memoised embedding; ready closes when vec and err are set.
type vecEntry struct {
	ready chan struct{}
	vec   []float32
	err   error
}

// NewNLPLayer builds the NLP layer around an embedding engine. A zero
// timeout means DefaultNLPTimeout.
func NewNLPLayer(engine embedding.Engine, timeout time.Duration) *NLPLayer {
	if timeout <= 0 {
		timeout = DefaultNLPTimeout
	}
	return &NLPLayer{
		engine:  engine,
		timeout: timeout,
		cache:   make(map[string]*vecEntry),
	}
}

func (l *NLPLayer) Name() LayerName      { return LayerNLP }
func (l *NLPLayer) Attributes() []string { return []string{AttrSemantic} }
func (l *NLPLayer) Threshold() float64   { return 0.5 }
func (l *NLPLayer) Ceiling() float64     { return 0.8 }

func (l *NLPLayer) Process(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context) (*LayerResult, error) {
	if ctx.Err() != nil {
		return cancelledResult(), ErrCancelled
	}

	reqText := semanticRequirementText(comp)
	if reqText == "" {
		return NewLayerResult(), nil
	}
	facText := facilityCapabilityText(fac)
	if facText == "" {
		res := NewLayerResult()
		res.Logf("facility %s has no capability text", fac.ID)
		return res, nil
	}

	tctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	reqVec, err := l.embed(tctx, reqText)
	if err != nil {
		return l.embedFailure(ctx, comp, err)
	}
	facVec, err := l.embed(tctx, facText)
	if err != nil {
		return l.embedFailure(ctx, comp, err)
	}

	cos, err := embedding.CosineSimilarity(reqVec, facVec)
	if err != nil {
		res := NewLayerResult()
		res.AddError(err.Error())
		return res, nil
	}

	conf := nlpScale * cos
	if conf < 0 {
		conf = 0
	}

	res := NewLayerResult()
	res.AddField(AttrSemantic, FieldSignal{
		Value:      cos,
		Confidence: conf,
		Method:     "embedding_cosine",
		RawSource:  truncateText(reqText, 120),
	})
	res.Logf("semantic: cosine %.3f against %s", cos, fac.ID)
	return res, nil
}

// embed returns the memoised vector for a text, computing it at most once.
// A context failure is not cached so a later caller with time left retries.
func (l *NLPLayer) embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	l.mu.Lock()
	if e, ok := l.cache[key]; ok {
		l.mu.Unlock()
		select {
		case <-e.ready:
			return e.vec, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := &vecEntry{ready: make(chan struct{})}
	l.cache[key] = e
	l.mu.Unlock()

	start := time.Now()
	e.vec, e.err = l.engine.Embed(ctx, text)
	logging.Audit().EmbedCall(l.engine.Name(), 1, time.Since(start).Milliseconds(), e.err == nil, errString(e.err))

	if e.err != nil && (errors.Is(e.err, context.Canceled) || errors.Is(e.err, context.DeadlineExceeded)) {
		l.mu.Lock()
		delete(l.cache, key)
		l.mu.Unlock()
	}
	close(e.ready)
	return e.vec, e.err
}

// embedFailure classifies an embed error: run cancellation aborts the pair,
// a layer deadline yields a timeout result and the pipeline continues, and
// anything else is recorded as a plain layer error.
func (l *NLPLayer) embedFailure(ctx context.Context, comp *resolver.ComponentMatch, err error) (*LayerResult, error) {
	if ctx.Err() != nil {
		return cancelledResult(), ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logging.Audit().LayerTimeout(string(LayerNLP), comp.Component.ID, l.timeout.Milliseconds())
		return timeoutResult(), nil
	}
	res := NewLayerResult()
	res.AddError(err.Error())
	return res, nil
}

// semanticRequirementText gathers the free text describing a component.
// Empty when the component carries no description, in which case the
// semantic attribute is not expected and the layer produces nothing.
func semanticRequirementText(comp *resolver.ComponentMatch) string {
	c := &comp.Component
	desc := c.Description
	if desc == "" && comp.ResolvedManifest != nil {
		desc = comp.ResolvedManifest.Description
	}
	if desc == "" {
		return ""
	}

	parts := []string{c.Name, desc}
	if len(c.Processes) > 0 {
		parts = append(parts, "processes: "+strings.Join(c.Processes, ", "))
	}
	if len(c.Materials) > 0 {
		parts = append(parts, "materials: "+strings.Join(c.Materials, ", "))
	}
	return strings.Join(parts, ". ")
}

// facilityCapabilityText gathers a facility's capability blurb.
func facilityCapabilityText(fac *okw.Facility) string {
	var parts []string
	if fac.Name != "" {
		parts = append(parts, fac.Name)
	}
	if fac.Description != "" {
		parts = append(parts, fac.Description)
	}
	if ps := fac.AllProcesses(); len(ps) > 0 {
		parts = append(parts, "processes: "+strings.Join(ps, ", "))
	}
	for _, e := range fac.Equipment {
		text := e.Name
		if e.Description != "" {
			text += ": " + e.Description
		}
		parts = append(parts, text)
	}
	if ms := fac.AllMaterials(); len(ms) > 0 {
		parts = append(parts, "materials: "+strings.Join(ms, ", "))
	}
	return strings.Join(parts, ". ")
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// truncateText cuts s to at most n bytes on a rune boundary.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
