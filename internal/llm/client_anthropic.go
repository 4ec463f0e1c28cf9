package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"volition/internal/logging"
)

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger
}

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.anthropic.com/v1",
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 4096,
		Timeout:   45 * time.Second,
	}
}

// NewAnthropicClient creates a client with custom config.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		httpClient: &http.Client{
			Timeout: cfg.Timeout + 5*time.Second,
		},
		log: logging.Get(logging.CategoryLLM),
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one message exchange and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Completion, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	return timedCall(ctx, "anthropic completion", c.timeout, func(ctx context.Context) (*Completion, error) {
		maxTokens := c.maxTokens
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		system := systemPrompt
		if opts.JSONMode {
			system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
		}

		reqBody := anthropicRequest{
			Model:       c.model,
			MaxTokens:   maxTokens,
			System:      system,
			Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
			Temperature: opts.Temperature,
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
		}

		var text strings.Builder
		for _, content := range parsed.Content {
			if content.Type == "text" {
				text.WriteString(content.Text)
			}
		}
		out := strings.TrimSpace(text.String())
		if out == "" {
			return nil, ErrEmptyCompletion
		}

		c.log.Debug("anthropic completion: %d in / %d out tokens", parsed.Usage.InputTokens, parsed.Usage.OutputTokens)
		return &Completion{
			Content:          out,
			Model:            parsed.Model,
			LatencyMs:        time.Since(start).Milliseconds(),
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
		}, nil
	})
}
