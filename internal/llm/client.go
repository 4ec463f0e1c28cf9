// Package llm wraps the model providers behind a single completion
// interface. Model output is untrusted input: callers must validate every
// response before acting on it, exactly as they would user input.
package llm

import (
	"context"
	"errors"
	"time"

	"volition/internal/desire"
	"volition/internal/logging"
)

// Options tune a single completion call.
type Options struct {
	Temperature float64
	JSONMode    bool
	MaxTokens   int
}

// Completion is the structured result of a model call.
type Completion struct {
	Content          string
	Model            string
	LatencyMs        int64
	PromptTokens     int
	CompletionTokens int
}

// Client is the minimal interface the engine uses to call an LLM.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Completion, error)
}

// ErrEmptyCompletion indicates the provider returned no content. This is an
// ordinary failure mode, never a crash.
var ErrEmptyCompletion = errors.New("model returned empty completion")

// timedCall runs fn under a deadline and converts deadline expiry into the
// engine's typed timeout error so callers can tell it from semantic failure.
func timedCall(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) (*Completion, error)) (*Completion, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	comp, err := fn(cctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded)) {
		return nil, &desire.TimeoutError{Op: op, Elapsed: time.Since(start)}
	}
	return comp, err
}

// Audited wraps a client so every call emits one audit record.
type Audited struct {
	inner Client
	audit *logging.AuditLogger
}

// NewAudited wraps client with audit logging.
func NewAudited(client Client, audit *logging.AuditLogger) *Audited {
	return &Audited{inner: client, audit: audit}
}

// Complete forwards to the wrapped client and records the call.
func (a *Audited) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Completion, error) {
	start := time.Now()
	comp, err := a.inner.Complete(ctx, systemPrompt, userPrompt, opts)
	durMs := time.Since(start).Milliseconds()

	if err != nil {
		a.audit.LLMCallDone("", 0, durMs, false, err.Error())
		return nil, err
	}
	a.audit.LLMCallDone(comp.Model, comp.PromptTokens+comp.CompletionTokens, durMs, true, "")
	return comp, nil
}
