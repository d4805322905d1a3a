package config

import "time"

// LLMConfig configures the LLM matching layer.
type LLMConfig struct {
	// Enabled gates the LLM layer entirely. The layer costs money and
	// network round-trips, so it is opt-in.
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // zai, anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// GetTimeout returns the LLM layer timeout as a duration.
func (l *LLMConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// NLPConfig configures the embedding backend for the NLP layer.
type NLPConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIModel     string `yaml:"genai_model"`
	APIKey         string `yaml:"api_key"`
	Timeout        string `yaml:"timeout"`
}

// GetTimeout returns the NLP layer timeout as a duration.
func (n *NLPConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}
