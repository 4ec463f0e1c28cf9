package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"volition/internal/logging"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	log       *logging.Logger
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		log:       logging.Get(logging.CategoryLLM),
	}, nil
}

// Complete sends one message exchange and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Completion, error) {
	return timedCall(ctx, "gemini completion", c.timeout, func(ctx context.Context) (*Completion, error) {
		maxTokens := c.maxTokens
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}

		genCfg := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(opts.Temperature)),
			MaxOutputTokens: int32(maxTokens),
		}
		if systemPrompt != "" {
			genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
		}
		if opts.JSONMode {
			genCfg.ResponseMIMEType = "application/json"
		}

		start := time.Now()
		result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), genCfg)
		if err != nil {
			return nil, fmt.Errorf("Gemini generate failed: %w", err)
		}

		out := strings.TrimSpace(result.Text())
		if out == "" {
			return nil, ErrEmptyCompletion
		}

		comp := &Completion{
			Content:   out,
			Model:     c.model,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if result.UsageMetadata != nil {
			comp.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
			comp.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
		}
		c.log.Debug("gemini completion: %d in / %d out tokens", comp.PromptTokens, comp.CompletionTokens)
		return comp, nil
	})
}
