package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all openmatch configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Matching pipeline configuration
	Matching MatchingConfig `yaml:"matching"`

	// BOM resolution configuration
	Resolver ResolverConfig `yaml:"resolver"`

	// Process taxonomy configuration
	Taxonomy TaxonomyConfig `yaml:"taxonomy"`

	// NLP layer embedding backend
	NLP NLPConfig `yaml:"nlp"`

	// LLM layer configuration
	LLM LLMConfig `yaml:"llm"`

	// Solution store configuration
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "openmatch",
		Version: "0.9.0",

		Matching: DefaultMatchingConfig(),
		Resolver: DefaultResolverConfig(),

		Taxonomy: TaxonomyConfig{
			Domain:    "manufacturing",
			TablePath: "",
			HotReload: false,
		},

		NLP: NLPConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "nomic-embed-text",
			GenAIModel:     "text-embedding-004",
			Timeout:        "5s",
		},

		LLM: LLMConfig{
			Enabled:  false,
			Provider: "zai",
			Model:    "glm-4.6",
			Timeout:  "30s",
		},

		Store: StoreConfig{
			Backend:        "fs",
			Path:           "data/solutions",
			DatabasePath:   "data/openmatch.db",
			DefaultTTLDays: 30,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file. API keys are cleared before
// writing so credentials stay in the environment.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	clone := *c
	clone.LLM.APIKey = ""
	clone.NLP.APIKey = ""

	data, err := yaml.Marshal(&clone)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// FindWorkspaceRoot walks up from the current directory looking for an
// .openmatch directory or a go.mod, and falls back to the current directory
// when neither is found.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".openmatch")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "zai"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}

	// GenAI embedding key
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.NLP.APIKey = key
	}

	// Embedding endpoint/model overrides
	if endpoint := os.Getenv("OLLAMA_ENDPOINT"); endpoint != "" {
		c.NLP.OllamaEndpoint = endpoint
	}

	// Store locations
	if path := os.Getenv("OPENMATCH_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if path := os.Getenv("OPENMATCH_DB"); path != "" {
		c.Store.DatabasePath = path
	}

	// Taxonomy table
	if path := os.Getenv("OPENMATCH_TAXONOMY"); path != "" {
		c.Taxonomy.TablePath = path
	}
}

// ValidStoreBackends lists all supported store backends.
var ValidStoreBackends = []string{"fs", "sqlite"}

// ValidLLMProviders lists all supported LLM providers.
var ValidLLMProviders = []string{"zai", "anthropic"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		return err
	}

	validBackend := false
	for _, b := range ValidStoreBackends {
		if c.Store.Backend == b {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid store backend: %s (valid: %v)", c.Store.Backend, ValidStoreBackends)
	}

	if c.LLM.Enabled {
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM layer enabled but no API key configured (set ANTHROPIC_API_KEY or ZAI_API_KEY)")
		}
		validProvider := false
		for _, p := range ValidLLMProviders {
			if c.LLM.Provider == p {
				validProvider = true
				break
			}
		}
		if !validProvider {
			return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidLLMProviders)
		}
	}

	return nil
}
