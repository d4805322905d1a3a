package orchestrator

import (
	"context"
	"fmt"
	"time"

	"openmatch/internal/config"
	"openmatch/internal/embedding"
	"openmatch/internal/llm"
	"openmatch/internal/logging"
	"openmatch/internal/matching"
	"openmatch/internal/okh"
	"openmatch/internal/resolver"
	"openmatch/internal/store"
	"openmatch/internal/taxonomy"
)

// healthProbeTimeout bounds the boot-time availability probe of a local
// embedding backend.
const healthProbeTimeout = 3 * time.Second

// BuildLayers constructs every matching layer the configuration supports.
// Exact and heuristic always run locally. NLP needs an embedding backend;
// when that backend cannot be built or does not answer a health probe the
// layer is left out and the reason returned as a note, so a missing local
// model never breaks deterministic matching. LLM is opt-in and fails loudly
// when enabled but misconfigured.
func BuildLayers(cfg *config.Config) (map[matching.LayerName]matching.Layer, []string, error) {
	layers := map[matching.LayerName]matching.Layer{
		matching.LayerExact:     matching.NewExactLayer(),
		matching.LayerHeuristic: matching.NewHeuristicLayer(),
	}
	var notes []string

	provider := cfg.NLP.Provider
	if provider == "" {
		provider = "ollama"
	}
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       provider,
		OllamaEndpoint: cfg.NLP.OllamaEndpoint,
		OllamaModel:    cfg.NLP.OllamaModel,
		GenAIAPIKey:    cfg.NLP.APIKey,
		GenAIModel:     cfg.NLP.GenAIModel,
		TaskType:       "SEMANTIC_SIMILARITY",
	})
	if err == nil {
		err = probeEngine(engine)
	}
	if err != nil {
		notes = append(notes, fmt.Sprintf("nlp layer unavailable: %v", err))
	} else {
		layers[matching.LayerNLP] = matching.NewNLPLayer(engine, cfg.NLP.GetTimeout())
	}

	if cfg.LLM.Enabled {
		client, err := llm.NewClientFromConfig(cfg.LLM)
		if err != nil {
			return nil, nil, fmt.Errorf("llm layer: %w", err)
		}
		layers[matching.LayerLLM] = matching.NewLLMLayer(client, cfg.LLM.GetTimeout())
	}
	return layers, notes, nil
}

// probeEngine pings backends that advertise availability checks, so a
// stopped local model server surfaces once at boot instead of failing every
// pair at match time.
func probeEngine(engine embedding.Engine) error {
	hc, ok := engine.(embedding.HealthChecker)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
	defer cancel()
	return hc.HealthCheck(ctx)
}

// OpenSolutionStore builds the configured persistence backend. The caller
// owns Close on the returned object store.
func OpenSolutionStore(cfg config.StoreConfig) (*store.SolutionStore, store.ObjectStore, error) {
	var (
		objects store.ObjectStore
		err     error
	)
	switch cfg.Backend {
	case "", "fs":
		objects, err = store.NewFSStore(cfg.Path)
	case "sqlite":
		objects, err = store.NewSQLiteStore(cfg.DatabasePath)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q (use fs or sqlite)", cfg.Backend)
	}
	if err != nil {
		return nil, nil, err
	}
	return store.NewSolutionStore(objects), objects, nil
}

// NewTaxonomyRegistry builds the process taxonomy registry, merging a user
// table over the built-in one when the configuration names a file.
func NewTaxonomyRegistry(cfg config.TaxonomyConfig) (*taxonomy.Registry, error) {
	if cfg.TablePath != "" {
		return taxonomy.NewRegistryFromFile(cfg.TablePath)
	}
	return taxonomy.NewRegistry()
}

// FromConfig wires a coordinator entirely from configuration. Manifest and
// blob loaders stay caller-supplied because they are rooted wherever the
// run's input files live. The returned coordinator owns the store handle;
// Close releases it.
func FromConfig(cfg *config.Config, manifests okh.Loader, blobs resolver.BlobLoader) (*Coordinator, error) {
	layers, notes, err := BuildLayers(cfg)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		logging.Boot("%s", n)
	}

	registry, err := NewTaxonomyRegistry(cfg.Taxonomy)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: %w", err)
	}

	solutions, objects, err := OpenSolutionStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	coord, err := New(Deps{
		Manifests:     manifests,
		Blobs:         blobs,
		Layers:        layers,
		Combiner:      matching.NewCombiner(cfg.Matching.FieldWeights, cfg.Matching.AbsencePenaltyWeight),
		Taxonomy:      registry,
		Substitutions: cfg.Matching.Substitutions,
		Solutions:     solutions,
	})
	if err != nil {
		objects.Close()
		return nil, err
	}
	coord.ownedStore = objects
	return coord, nil
}
