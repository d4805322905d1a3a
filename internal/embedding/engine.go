// Package embedding turns requirement and capability text into vectors for
// the semantic matching layer. Two backends are supported: a local Ollama
// server and Google GenAI.
package embedding

import (
	"context"
	"fmt"
	"math"

	"openmatch/internal/logging"
)

// Engine produces a vector for a piece of text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the width of the vectors this engine produces.
	Dimensions() int

	// Name identifies the backend and model, e.g. "ollama:nomic-embed-text".
	Name() string
}

// HealthChecker is implemented by engines that can verify their backend is
// reachable before the matcher starts sending text through them.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config selects and parameterizes an embedding backend.
type Config struct {
	Provider string `json:"provider"` // "ollama" or "genai"

	OllamaEndpoint string `json:"ollama_endpoint"`
	OllamaModel    string `json:"ollama_model"`

	GenAIAPIKey string `json:"genai_api_key"`
	GenAIModel  string `json:"genai_model"`
	TaskType    string `json:"task_type"`
}

// NewEngine builds the engine named by cfg.Provider.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("Creating embedding engine: provider=%s", cfg.Provider)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
	if err != nil {
		logging.EmbeddingError("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine ready: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors, in
// [-1, 1]. A zero-magnitude vector yields 0 rather than an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}

	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
