package skill

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"volition/internal/desire"
	"volition/internal/logging"
)

// Handler executes a skill given validated inputs.
type Handler func(ctx context.Context, inputs map[string]any) (any, error)

// ResultStatus classifies an invocation result.
type ResultStatus string

const (
	ResultOK              ResultStatus = "ok"
	ResultPendingApproval ResultStatus = "pending_approval"
	ResultError           ResultStatus = "error"
)

// Result is the structured outcome of an invocation.
type Result struct {
	Status     ResultStatus `json:"status"`
	Output     any          `json:"output,omitempty"`
	Error      string       `json:"error,omitempty"`
	ApprovalID string       `json:"approval_id,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

type registered struct {
	manifest Manifest
	handler  Handler
}

// Registry holds skill manifests and their handlers. Registration happens
// once at startup; reads are concurrent-safe after that.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*registered
	queue  *ApprovalQueue
	audit  *logging.AuditLogger
	log    *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(audit *logging.AuditLogger) *Registry {
	return &Registry{
		skills: make(map[string]*registered),
		queue:  NewApprovalQueue(),
		audit:  audit,
		log:    logging.Get(logging.CategorySkill),
	}
}

// Register adds a skill. Registering the same id twice is an idempotent
// no-op with a diagnostic, not an error.
func (r *Registry) Register(m Manifest, h Handler) error {
	if err := m.validate(); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("skill %s: nil handler", m.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[m.ID]; exists {
		r.log.Debug("Register: skill %s already registered, ignoring", m.ID)
		return nil
	}
	r.skills[m.ID] = &registered{manifest: m, handler: h}
	r.audit.Log(logging.AuditEvent{
		Event:   logging.AuditSkillRegister,
		Target:  m.ID,
		Success: true,
		Details: map[string]any{"risk": string(m.Risk), "min_trust": string(m.MinTrustLevel)},
	})
	r.log.Info("Register: skill %s (risk=%s min_trust=%s)", m.ID, m.Risk, m.MinTrustLevel)
	return nil
}

// Get returns a manifest by id.
func (r *Registry) Get(id string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.skills[id]
	if !ok {
		return Manifest{}, false
	}
	return reg.manifest, true
}

// ListAvailable returns manifests whose minimum trust level is satisfied by
// the given trust level, sorted by id for stable output.
func (r *Registry) ListAvailable(trust desire.TrustLevel) []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Manifest, 0, len(r.skills))
	for _, reg := range r.skills {
		if trust.AtLeast(reg.manifest.MinTrustLevel) {
			out = append(out, reg.manifest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Approvals exposes the pending approval queue.
func (r *Registry) Approvals() *ApprovalQueue {
	return r.queue
}

// Invoke validates inputs against the manifest and runs the skill. When the
// manifest requires approval and autoApprove is false, the invocation is
// queued and a PendingApproval result is returned instead of executing.
func (r *Registry) Invoke(ctx context.Context, skillID string, inputs map[string]any, trust desire.TrustLevel, autoApprove bool) (*Result, error) {
	r.mu.RLock()
	reg, ok := r.skills[skillID]
	r.mu.RUnlock()
	if !ok {
		return nil, &desire.SkillValidationError{Skill: skillID, Reason: "skill not registered"}
	}
	m := reg.manifest

	if !trust.AtLeast(m.MinTrustLevel) {
		err := &desire.SkillValidationError{
			Skill:  skillID,
			Reason: fmt.Sprintf("trust level %s below required %s", trust, m.MinTrustLevel),
		}
		r.audit.SkillInvoke(skillID, string(trust), 0, false, err.Error())
		return nil, err
	}

	validated, err := r.validateInputs(m, inputs)
	if err != nil {
		r.audit.SkillInvoke(skillID, string(trust), 0, false, err.Error())
		return nil, err
	}

	if m.RequiresApproval && !autoApprove {
		item := r.queue.Enqueue(skillID, validated)
		r.audit.Log(logging.AuditEvent{
			Event:   logging.AuditSkillPending,
			Actor:   string(trust),
			Target:  skillID,
			Success: true,
			Details: map[string]any{"approval_id": item.ID},
		})
		r.log.Info("Invoke: skill %s queued for approval (id=%s)", skillID, item.ID)
		return &Result{Status: ResultPendingApproval, ApprovalID: item.ID}, nil
	}

	return r.run(ctx, reg, validated, string(trust))
}

// run executes a validated invocation.
func (r *Registry) run(ctx context.Context, reg *registered, inputs map[string]any, actor string) (*Result, error) {
	start := time.Now()
	output, err := reg.handler(ctx, inputs)
	durMs := time.Since(start).Milliseconds()

	if err != nil {
		r.audit.SkillInvoke(reg.manifest.ID, actor, durMs, false, err.Error())
		return &Result{Status: ResultError, Error: err.Error(), DurationMs: durMs}, nil
	}
	r.audit.SkillInvoke(reg.manifest.ID, actor, durMs, true, "")
	return &Result{Status: ResultOK, Output: output, DurationMs: durMs}, nil
}

// validateInputs checks required fields, types, per-field validators, and
// the path/command gates. It returns a copy with resolved absolute paths so
// handlers never see the raw, possibly-relative arguments.
func (r *Registry) validateInputs(m Manifest, inputs map[string]any) (map[string]any, error) {
	validated := make(map[string]any, len(inputs))
	for k, v := range inputs {
		validated[k] = v
	}

	for _, f := range m.Inputs {
		v, present := validated[f.Name]
		if !present {
			if f.Required {
				return nil, &desire.SkillValidationError{Skill: m.ID, Field: f.Name, Reason: "required input missing"}
			}
			continue
		}

		switch f.Type {
		case "string", "path", "command":
			s, ok := v.(string)
			if !ok {
				return nil, &desire.SkillValidationError{Skill: m.ID, Field: f.Name, Reason: "expected string"}
			}
			if f.Type == "path" {
				resolved, err := resolveWithin(m.AllowedDirectories, s)
				if err != nil {
					return nil, &desire.SkillValidationError{Skill: m.ID, Field: f.Name, Reason: err.Error()}
				}
				validated[f.Name] = resolved
			}
			if f.Type == "command" && !commandAllowed(m.CommandWhitelist, s) {
				return nil, &desire.SkillValidationError{Skill: m.ID, Field: f.Name, Reason: "command not whitelisted"}
			}
		case "number":
			switch v.(type) {
			case float64, float32, int, int64:
			default:
				return nil, &desire.SkillValidationError{Skill: m.ID, Field: f.Name, Reason: "expected number"}
			}
		case "bool":
			if _, ok := v.(bool); !ok {
				return nil, &desire.SkillValidationError{Skill: m.ID, Field: f.Name, Reason: "expected bool"}
			}
		}

		if f.Validator != nil {
			if err := f.Validator(validated[f.Name]); err != nil {
				return nil, &desire.SkillValidationError{Skill: m.ID, Field: f.Name, Reason: err.Error()}
			}
		}
	}
	return validated, nil
}

// RunApproved executes a previously queued invocation after it was approved.
// The queue guarantees single-decision semantics; this only runs items that
// transitioned to approved.
func (r *Registry) RunApproved(ctx context.Context, approvalID string) (*Result, error) {
	item, err := r.queue.Take(approvalID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	reg, ok := r.skills[item.SkillID]
	r.mu.RUnlock()
	if !ok {
		return nil, &desire.SkillValidationError{Skill: item.SkillID, Reason: "skill not registered"}
	}
	return r.run(ctx, reg, item.Inputs, "approval:"+approvalID)
}
