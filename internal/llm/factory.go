package llm

import (
	"context"
	"fmt"
	"os"

	"volition/internal/config"
)

// NewClient builds the configured provider client. The API key is read from
// the environment variable named in the config, never stored in the file.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)

	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}), nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}), nil
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:    apiKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	}
	return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
}
