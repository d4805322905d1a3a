package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"openmatch/internal/llm"
	"openmatch/internal/logging"
	"openmatch/internal/okw"
	"openmatch/internal/resolver"
)

// DefaultLLMTimeout bounds one pair's LLM assessment.
const DefaultLLMTimeout = 30 * time.Second

// llmCeiling caps what a language model may claim; it never reaches the
// certainty of an exact check.
const llmCeiling = 0.9

const llmSystemPrompt = `You assess manufacturing capability. Given a component's requirements and a facility's capabilities, judge whether the facility can produce the component. Consider processes, materials, equipment and tolerances. Be conservative: when evidence is missing, lower your confidence rather than guessing.`

const llmSchemaHint = `{"match": boolean, "confidence": number between 0 and 1, "reasoning": string (one or two sentences)}`

// LLMLayer asks a language model for a holistic judgement on pairs the
// structured layers could not settle. Costs money and a network round trip
// per pair, so it is disabled unless explicitly enabled.
type LLMLayer struct {
	client  llm.Client
	timeout time.Duration
}

// NewLLMLayer builds the LLM layer. A zero timeout means DefaultLLMTimeout.
func NewLLMLayer(client llm.Client, timeout time.Duration) *LLMLayer {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLMLayer{client: client, timeout: timeout}
}

func (l *LLMLayer) Name() LayerName      { return LayerLLM }
func (l *LLMLayer) Attributes() []string { return []string{AttrAssessment} }
func (l *LLMLayer) Threshold() float64   { return 0.3 }
func (l *LLMLayer) Ceiling() float64     { return llmCeiling }

func (l *LLMLayer) Process(ctx context.Context, comp *resolver.ComponentMatch, fac *okw.Facility, mctx *Context) (*LayerResult, error) {
	if ctx.Err() != nil {
		return cancelledResult(), ErrCancelled
	}

	tctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var verdict struct {
		Match      bool    `json:"match"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	prompt := l.buildPrompt(comp, fac)
	err := llm.CompleteJSON(tctx, l.client, llmSystemPrompt, prompt, llmSchemaHint, &verdict)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult(), ErrCancelled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			logging.Audit().LayerTimeout(string(LayerLLM), comp.Component.ID, l.timeout.Milliseconds())
			return timeoutResult(), nil
		}
		res := NewLayerResult()
		res.AddError(err.Error())
		return res, nil
	}

	res := NewLayerResult()
	if !verdict.Match {
		res.Logf("llm judged no match for %s at %s: %s", comp.Component.ID, fac.ID, verdict.Reasoning)
		return res, nil
	}

	conf := verdict.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > llmCeiling {
		conf = llmCeiling
	}
	res.AddField(AttrAssessment, FieldSignal{
		Value:      verdict.Reasoning,
		Confidence: conf,
		Method:     "llm_assessment",
		RawSource:  l.modelName(),
	})
	return res, nil
}

// modelName reports the backing model when the client exposes one.
func (l *LLMLayer) modelName() string {
	if m, ok := l.client.(interface{ GetModel() string }); ok {
		return m.GetModel()
	}
	return "llm"
}

// buildPrompt renders the pair as compact text the model can reason over.
func (l *LLMLayer) buildPrompt(comp *resolver.ComponentMatch, fac *okw.Facility) string {
	var sb strings.Builder

	c := &comp.Component
	sb.WriteString("COMPONENT\n")
	fmt.Fprintf(&sb, "name: %s\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(&sb, "description: %s\n", c.Description)
	}
	if len(c.Processes) > 0 {
		fmt.Fprintf(&sb, "required processes: %s\n", strings.Join(c.Processes, ", "))
	}
	if len(c.Materials) > 0 {
		fmt.Fprintf(&sb, "required materials: %s\n", strings.Join(c.Materials, ", "))
	}
	if c.Quantity > 0 {
		fmt.Fprintf(&sb, "quantity: %v %s\n", c.Quantity, c.Unit)
	}
	for key, val := range c.Constraints {
		fmt.Fprintf(&sb, "constraint %s: %v\n", key, val)
	}

	sb.WriteString("\nFACILITY\n")
	fmt.Fprintf(&sb, "name: %s\n", fac.Name)
	if fac.Description != "" {
		fmt.Fprintf(&sb, "description: %s\n", fac.Description)
	}
	if ps := fac.AllProcesses(); len(ps) > 0 {
		fmt.Fprintf(&sb, "processes: %s\n", strings.Join(ps, ", "))
	}
	if ms := fac.AllMaterials(); len(ms) > 0 {
		fmt.Fprintf(&sb, "materials: %s\n", strings.Join(ms, ", "))
	}
	for _, e := range fac.Equipment {
		fmt.Fprintf(&sb, "equipment: %s %s\n", e.Name, e.Description)
	}
	if len(fac.Certifications) > 0 {
		fmt.Fprintf(&sb, "certifications: %s\n", strings.Join(fac.Certifications, ", "))
	}

	sb.WriteString("\nCan this facility produce this component?")
	return sb.String()
}
