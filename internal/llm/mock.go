package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// MockClient is a func-field test double for the Client interface. Shared
// across package tests so every engine component can be driven without a
// provider.
type MockClient struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Completion, error)

	mu sync.Mutex
	// Calls records every (system, user) prompt pair, newest last. Callers
	// that complete concurrently are recorded in arrival order.
	Calls []MockCall
}

// MockCall is one recorded Complete invocation.
type MockCall struct {
	System string
	User   string
	Opts   Options
}

// Complete records the call and delegates to CompleteFunc. A nil func yields
// an empty JSON object.
func (m *MockClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Completion, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{System: systemPrompt, User: userPrompt, Opts: opts})
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, systemPrompt, userPrompt, opts)
	}
	return &Completion{Content: "{}", Model: "mock"}, nil
}

// RespondJSON builds a MockClient that always returns v marshaled as JSON.
func RespondJSON(v any) *MockClient {
	data, _ := json.Marshal(v)
	return &MockClient{
		CompleteFunc: func(context.Context, string, string, Options) (*Completion, error) {
			return &Completion{Content: string(data), Model: "mock"}, nil
		},
	}
}
