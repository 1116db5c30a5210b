package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))
	if config.Model == "" {
		config.Model = model.DefaultModels[provider]
	}

	switch provider {
	case "groq":
		if config.BaseURL == "" {
			config.BaseURL = groqBaseURL
		}
		return newOpenAICompatible("groq", config)

	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "gemini":
		return NewGeminiProvider(config)

	default:
		return nil, fmt.Errorf("%w: %q (supported: groq, openai, anthropic, ollama, gemini)", ErrUnknownProvider, config.Provider)
	}
}
