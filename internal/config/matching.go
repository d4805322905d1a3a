package config

import "fmt"

// MatchingConfig configures the layer pipeline and confidence combination.
type MatchingConfig struct {
	// MinConfidence drops per-facility matches below this after combination.
	MinConfidence float64 `yaml:"min_confidence"`

	// TargetConfidence stops the layer pipeline early once reached.
	TargetConfidence float64 `yaml:"target_confidence"`

	// EnabledLayers selects which layers run, in pipeline order.
	// Valid names: exact, heuristic, nlp, llm. LLM is excluded by default.
	EnabledLayers []string `yaml:"enabled_layers"`

	// FieldWeights weigh per-attribute confidences when combining.
	// Attributes not listed get weight 1.0.
	FieldWeights map[string]float64 `yaml:"field_weights"`

	// AbsencePenaltyWeight is the weight given to attributes no layer
	// produced a signal for. Absence is not neutral.
	AbsencePenaltyWeight float64 `yaml:"absence_penalty_weight"`

	// MaxWorkers caps the per-run worker pool. 0 means
	// min(facility_count, 2*NumCPU).
	MaxWorkers int `yaml:"max_workers"`

	// ScoreAggregation selects how per-tree confidences roll up into the
	// solution score in nested mode: "mean" or "weighted" (by quantity).
	ScoreAggregation string `yaml:"score_aggregation"`

	// Substitutions is the material substitution whitelist used by the
	// heuristic layer: required material -> acceptable alternatives.
	Substitutions map[string][]string `yaml:"substitutions"`
}

// DefaultMatchingConfig returns the default matching configuration.
func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		MinConfidence:        0.0,
		TargetConfidence:     0.9,
		EnabledLayers:        []string{"exact", "heuristic", "nlp"},
		AbsencePenaltyWeight: 0.1,
		MaxWorkers:           0,
		ScoreAggregation:     "mean",
		Substitutions: map[string][]string{
			"abs":      {"petg", "asa"},
			"aluminum": {"aluminum 6061", "aluminum 7075"},
		},
	}
}

// Validate checks matching option ranges.
func (m *MatchingConfig) Validate() error {
	if m.MinConfidence < 0 || m.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1], got %v", m.MinConfidence)
	}
	if m.TargetConfidence < 0 || m.TargetConfidence > 1 {
		return fmt.Errorf("target_confidence must be in [0,1], got %v", m.TargetConfidence)
	}
	switch m.ScoreAggregation {
	case "", "mean", "weighted":
	default:
		return fmt.Errorf("score_aggregation must be mean or weighted, got %q", m.ScoreAggregation)
	}
	for _, layer := range m.EnabledLayers {
		switch layer {
		case "exact", "heuristic", "nlp", "llm":
		default:
			return fmt.Errorf("unknown layer %q in enabled_layers", layer)
		}
	}
	return nil
}

// ResolverConfig configures BOM explosion.
type ResolverConfig struct {
	// MaxDepth bounds explosion depth. 0 = single-level matching.
	MaxDepth int `yaml:"max_depth"`

	// AutoDetectDepth lifts MaxDepth=0 to the nested default when the
	// manifest has sub-components.
	AutoDetectDepth bool `yaml:"auto_detect_depth"`

	// OnReferenceError controls behaviour when a component reference
	// cannot be resolved: "fail" aborts the run, "leaf" keeps the
	// component as a leaf and records a warning.
	OnReferenceError string `yaml:"on_reference_error"`
}

// DefaultResolverConfig returns the default resolver configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		MaxDepth:         0,
		AutoDetectDepth:  true,
		OnReferenceError: "fail",
	}
}
