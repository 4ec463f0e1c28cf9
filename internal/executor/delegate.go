package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"volition/internal/desire"
	"volition/internal/llm"
	"volition/internal/logging"
)

const delegateSystemPrompt = `You are the execution arm of an autonomous goal pursuit engine. You are given
one step of an approved plan. Carry out the step using only reasoning and the
information provided, then report honestly.

Respond with a single JSON object:
{
  "success": true or false,
  "result": "what was produced or concluded",
  "reasoning": "how you got there",
  "error": "present only when success is false"
}

Report failure when the step cannot be completed from the given information.
Never claim success you cannot substantiate in the result field.`

const delegateReadOnlySuffix = `

This is a read-only verification pass. Do not propose actions or side
effects; only inspect and report on the evidence in the prompt.`

// DelegateExecutor hands a whole step to a single model turn. Used for steps
// with no registered skill, where the work is analysis or synthesis rather
// than a mechanical operation.
type DelegateExecutor struct {
	client  llm.Client
	timeout time.Duration
	log     *logging.Logger
}

// NewDelegateExecutor builds the LLM-backed executor with a per-step timeout.
func NewDelegateExecutor(client llm.Client, timeout time.Duration) *DelegateExecutor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &DelegateExecutor{
		client:  client,
		timeout: timeout,
		log:     logging.Get(logging.CategoryExecutor),
	}
}

type delegateResponse struct {
	Success   bool   `json:"success"`
	Result    string `json:"result"`
	Reasoning string `json:"reasoning"`
	Error     string `json:"error"`
}

// Invoke runs one model turn for the step and parses the structured verdict.
// Malformed output counts as step failure: an executor that cannot report in
// contract form cannot be trusted to have done the work.
func (e *DelegateExecutor) Invoke(ctx context.Context, req Request, opts Options) (*Result, error) {
	system := delegateSystemPrompt
	if opts.ReadOnly {
		system += delegateReadOnlySuffix
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nStep: %s\n", req.Goal, req.Action)
	if req.Skill != "" {
		fmt.Fprintf(&b, "Suggested capability: %s\n", req.Skill)
	}
	if len(req.Inputs) > 0 {
		fmt.Fprintf(&b, "Inputs: %v\n", req.Inputs)
	}
	if len(req.Context) > 0 {
		b.WriteString("\nResults of prior steps:\n")
		for i, c := range req.Context {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	comp, err := e.client.Complete(cctx, system, b.String(), llm.Options{JSONMode: true, Temperature: 0.2})
	if err != nil {
		if desire.IsTimeout(err) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, &desire.TimeoutError{Op: "delegate step", Elapsed: time.Since(start)}
		}
		return nil, err
	}

	var resp delegateResponse
	if err := llm.DecodeJSON(comp.Content, &resp); err != nil {
		e.log.Warn("Invoke: unparseable delegate response: %v", err)
		return &Result{Success: false, Error: fmt.Sprintf("malformed executor response: %v", err)}, nil
	}

	out := &Result{
		Success:   resp.Success,
		Result:    resp.Result,
		Reasoning: resp.Reasoning,
		Error:     resp.Error,
	}
	if !out.Success && out.Error == "" {
		out.Error = "step reported failure without detail"
	}
	return out, nil
}
