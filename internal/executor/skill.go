package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"volition/internal/desire"
	"volition/internal/logging"
	"volition/internal/skill"
)

// SkillExecutor runs steps through the skill registry. Each invocation gets
// its own short deadline; skills are expected to be quick, deterministic
// operations.
type SkillExecutor struct {
	registry *skill.Registry
	timeout  time.Duration
	log      *logging.Logger
}

// NewSkillExecutor wraps a registry with a per-step timeout.
func NewSkillExecutor(registry *skill.Registry, timeout time.Duration) *SkillExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SkillExecutor{
		registry: registry,
		timeout:  timeout,
		log:      logging.Get(logging.CategoryExecutor),
	}
}

// Invoke validates the step against the registry and runs the skill. A step
// without a skill name cannot run on this backend.
func (e *SkillExecutor) Invoke(ctx context.Context, req Request, opts Options) (*Result, error) {
	if req.Skill == "" {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("step %q names no skill; skill backend cannot interpret free-form actions", req.Action),
		}, nil
	}

	if opts.ReadOnly {
		m, ok := e.registry.Get(req.Skill)
		if !ok {
			return &Result{Success: false, Error: fmt.Sprintf("skill %s not registered", req.Skill)}, nil
		}
		if !m.ReadOnly {
			return &Result{Success: false, Error: fmt.Sprintf("skill %s has side effects and is not allowed in read-only mode", req.Skill)}, nil
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.registry.Invoke(stepCtx, req.Skill, req.Inputs, opts.Trust, opts.AutoApprove)
	if err != nil {
		if stepCtx.Err() == context.DeadlineExceeded {
			return nil, &desire.TimeoutError{Op: "skill " + req.Skill, Elapsed: time.Since(start)}
		}
		// Validation and trust failures are step failures, not engine errors.
		var verr *desire.SkillValidationError
		if errors.As(err, &verr) {
			e.log.Warn("Invoke: %s rejected: %v", req.Skill, verr)
			return &Result{Success: false, Error: verr.Error()}, nil
		}
		return nil, err
	}

	switch res.Status {
	case skill.ResultPendingApproval:
		return &Result{Pending: true, ApprovalID: res.ApprovalID, Reasoning: "queued for approval"}, nil
	case skill.ResultError:
		if stepCtx.Err() == context.DeadlineExceeded {
			return nil, &desire.TimeoutError{Op: "skill " + req.Skill, Elapsed: time.Since(start)}
		}
		return &Result{Success: false, Error: res.Error}, nil
	}

	return &Result{Success: true, Result: renderOutput(res.Output)}, nil
}

// renderOutput flattens a skill's structured output into the string form the
// step record stores.
func renderOutput(output any) string {
	if output == nil {
		return ""
	}
	if s, ok := output.(string); ok {
		return s
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprint(output)
	}
	return string(data)
}
