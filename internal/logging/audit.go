// Audit logging: every state transition and skill invocation emits one
// structured record to an append-only JSON-lines file. Audit writes are
// fire-and-forget; a failed write surfaces as a warning and never fails the
// operation that produced the event.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names the event family of an audit record.
type AuditEventType string

const (
	// Desire lifecycle events
	AuditTransition AuditEventType = "status_transition"
	AuditReset      AuditEventType = "status_reset"
	AuditReinforce  AuditEventType = "strength_reinforce"
	AuditDecay      AuditEventType = "strength_decay"

	// Planning and review events
	AuditPlanGenerated AuditEventType = "plan_generated"
	AuditPlanRevised   AuditEventType = "plan_revised"
	AuditReviewDone    AuditEventType = "review_done"
	AuditOutcomeDone   AuditEventType = "outcome_done"

	// Execution events
	AuditStepExecute AuditEventType = "step_execute"
	AuditStepResult  AuditEventType = "step_result"
	AuditExecAborted AuditEventType = "execution_aborted"

	// Skill events
	AuditSkillRegister AuditEventType = "skill_register"
	AuditSkillInvoke   AuditEventType = "skill_invoke"
	AuditSkillPending  AuditEventType = "skill_pending_approval"
	AuditSkillDenied   AuditEventType = "skill_denied"

	// LLM events
	AuditLLMCall  AuditEventType = "llm_call"
	AuditLLMError AuditEventType = "llm_error"

	// Error events
	AuditErrorEvent AuditEventType = "error"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"` // Unix milliseconds
	Event      AuditEventType `json:"event"`
	Category   string         `json:"cat,omitempty"`
	Severity   string         `json:"sev"` // info | warn | error
	Actor      string         `json:"actor,omitempty"`
	DesireID   string         `json:"desire,omitempty"`
	Target     string         `json:"target,omitempty"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Message    string         `json:"msg,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// AuditLogger appends structured events to a single audit file.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	warn *Logger
}

// NewAuditLogger opens (or creates) the audit log under the workspace.
func NewAuditLogger(workspace string) (*AuditLogger, error) {
	dir := filepath.Join(workspace, ".volition")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	path := filepath.Join(dir, "audit.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &AuditLogger{file: file, warn: Get(CategoryBoot)}, nil
}

// NewDiscardAuditLogger returns an audit logger that drops every event.
// Used in tests and when auditing is disabled.
func NewDiscardAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// Close closes the underlying file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Log appends one event. Failures are reported as warnings only.
func (a *AuditLogger) Log(event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.Severity == "" {
		if event.Success {
			event.Severity = "info"
		} else {
			event.Severity = "error"
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		a.warn.Warn("audit marshal failed: %v", err)
		return
	}
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		a.warn.Warn("audit write failed: %v", err)
	}
}

// Transition records a successful status change.
func (a *AuditLogger) Transition(desireID, from, to, actor string) {
	a.Log(AuditEvent{
		Event:    AuditTransition,
		Category: string(CategoryLifecycle),
		Actor:    actor,
		DesireID: desireID,
		Success:  true,
		Message:  fmt.Sprintf("%s -> %s", from, to),
		Details:  map[string]any{"from": from, "to": to},
	})
}

// SkillInvoke records a skill invocation attempt.
func (a *AuditLogger) SkillInvoke(skillID, actor string, durMs int64, success bool, errMsg string) {
	event := AuditSkillInvoke
	if !success {
		event = AuditSkillDenied
	}
	a.Log(AuditEvent{
		Event:      event,
		Category:   string(CategorySkill),
		Actor:      actor,
		Target:     skillID,
		Success:    success,
		DurationMs: durMs,
		Error:      errMsg,
	})
}

// LLMCallDone records one model call.
func (a *AuditLogger) LLMCallDone(model string, tokens int, durMs int64, success bool, errMsg string) {
	event := AuditLLMCall
	if !success {
		event = AuditLLMError
	}
	a.Log(AuditEvent{
		Event:      event,
		Category:   string(CategoryLLM),
		Target:     model,
		Success:    success,
		DurationMs: durMs,
		Error:      errMsg,
		Details:    map[string]any{"tokens": tokens},
	})
}

// Error records a failure with its originating category.
func (a *AuditLogger) Error(category Category, desireID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.Log(AuditEvent{
		Event:    AuditErrorEvent,
		Category: string(category),
		DesireID: desireID,
		Success:  false,
		Error:    msg,
	})
}
