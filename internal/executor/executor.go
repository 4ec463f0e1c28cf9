// Package executor provides the step execution backends. A backend takes one
// plan step and produces a structured result; it never mutates desire state.
// The lifecycle manager owns ordering, stop-on-failure, and status changes.
package executor

import (
	"context"

	"volition/internal/desire"
)

// Request describes one step to execute.
type Request struct {
	// Goal is the plan goal the step serves, given to delegating backends
	// for context.
	Goal string

	// Action is the human-readable step description.
	Action string

	// Skill names the registered skill to invoke. Empty means the backend
	// must interpret the action itself (delegate backend only).
	Skill string

	// Inputs are the declared skill inputs.
	Inputs map[string]any

	// Context carries prior step results for multi-step plans.
	Context []string
}

// Options control how a single invocation runs.
type Options struct {
	// Trust is the autonomy tier the invocation runs under.
	Trust desire.TrustLevel

	// AutoApprove bypasses the approval queue. Set only when a human
	// already approved the whole plan.
	AutoApprove bool

	// ReadOnly restricts the invocation to side-effect-free skills.
	// Verification always sets this.
	ReadOnly bool
}

// Result is the structured outcome of one step.
type Result struct {
	Success   bool   `json:"success"`
	Result    string `json:"result,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Error     string `json:"error,omitempty"`

	// Pending is set when the step is parked awaiting human approval
	// rather than having run.
	Pending    bool   `json:"pending,omitempty"`
	ApprovalID string `json:"approval_id,omitempty"`
}

// Executor runs one step. Implementations: SkillExecutor (registry-backed)
// and DelegateExecutor (single LLM turn).
type Executor interface {
	Invoke(ctx context.Context, req Request, opts Options) (*Result, error)
}
