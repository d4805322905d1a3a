package llm

import (
	"fmt"

	"openmatch/internal/config"
)

// NewClientFromConfig creates an LLM client from the llm config block.
func NewClientFromConfig(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm provider %s: no API key configured", cfg.Provider)
	}

	switch cfg.Provider {
	case "zai", "":
		zc := DefaultZAIConfig(cfg.APIKey)
		if cfg.Model != "" {
			zc.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			zc.BaseURL = cfg.BaseURL
		}
		if t := cfg.GetTimeout(); t > 0 {
			zc.Timeout = 4 * t // HTTP timeout above the layer timeout; the layer cancels first
		}
		return NewZAIClientWithConfig(zc), nil

	case "anthropic":
		ac := DefaultAnthropicConfig(cfg.APIKey)
		if cfg.Model != "" {
			ac.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			ac.BaseURL = cfg.BaseURL
		}
		if t := cfg.GetTimeout(); t > 0 {
			ac.Timeout = 4 * t
		}
		return NewAnthropicClientWithConfig(ac), nil

	default:
		return nil, fmt.Errorf("unknown llm provider: %s (valid: zai, anthropic)", cfg.Provider)
	}
}
