// Package lifecycle drives desires through their state machine: activation,
// planning, review, execution, and outcome review. The Manager owns all
// status transitions; no other component writes desire state.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/executor"
	"volition/internal/logging"
	"volition/internal/planner"
	"volition/internal/review"
	"volition/internal/skill"
	"volition/internal/store"
)

// Event is one progress notification emitted by the engine. Delivery is
// best-effort: when the subscriber falls behind, events are dropped rather
// than blocking the pipeline.
type Event struct {
	At       time.Time     `json:"at"`
	DesireID string        `json:"desire_id"`
	Stage    string        `json:"stage"`
	From     desire.Status `json:"from,omitempty"`
	To       desire.Status `json:"to,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Manager orchestrates the desire lifecycle.
type Manager struct {
	store    *store.Store
	planner  *planner.Planner
	reviewer *review.Reviewer
	verifier *review.Verifier
	outcome  *review.OutcomeReviewer
	exec     executor.Executor
	registry *skill.Registry
	cfg      config.Config
	trust    desire.TrustLevel

	locks    *lockTable
	progress chan Event
	audit    *logging.AuditLogger
	log      *logging.Logger
}

// Deps bundles the Manager's collaborators.
type Deps struct {
	Store    *store.Store
	Planner  *planner.Planner
	Reviewer *review.Reviewer
	Verifier *review.Verifier
	Outcome  *review.OutcomeReviewer
	Executor executor.Executor
	Registry *skill.Registry
	Audit    *logging.AuditLogger
}

// NewManager wires the engine together.
func NewManager(cfg config.Config, deps Deps) *Manager {
	trust := desire.TrustLevel(cfg.Engine.DefaultTrustLevel)
	if trust.Rank() == 0 && trust != desire.TrustObserve {
		trust = desire.TrustSupervisedAuto
	}
	buffer := cfg.Engine.ProgressBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Manager{
		store:    deps.Store,
		planner:  deps.Planner,
		reviewer: deps.Reviewer,
		verifier: deps.Verifier,
		outcome:  deps.Outcome,
		exec:     deps.Executor,
		registry: deps.Registry,
		cfg:      cfg,
		trust:    trust,
		locks:    newLockTable(),
		progress: make(chan Event, buffer),
		audit:    deps.Audit,
		log:      logging.Get(logging.CategoryLifecycle),
	}
}

// Progress returns the event stream. One subscriber; events drop when the
// buffer is full.
func (m *Manager) Progress() <-chan Event {
	return m.progress
}

func (m *Manager) emit(e Event) {
	e.At = time.Now().UTC()
	select {
	case m.progress <- e:
	default:
	}
}

// Add creates a new desire in the pending bucket.
func (m *Manager) Add(title, description, reason string, source desire.Source, strength float64) (*desire.Desire, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("desire title is required")
	}
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("strength must be in [0,1], got %v", strength)
	}

	now := time.Now().UTC()
	d := &desire.Desire{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(title),
		Description: description,
		Reason:      reason,
		Source:      source,
		Strength:    strength,
		Status:      desire.StatusNascent,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metrics:     desire.DesireMetrics{PeakStrength: strength},
	}
	entry := d.AppendScratchpad("created", "user", "", desire.StatusNascent,
		map[string]any{"source": string(source), "strength": strength})

	// New desires surface in pending immediately; nascent is only the
	// creation instant.
	d.Status = desire.StatusPending
	moved := d.AppendScratchpad("transition", "engine", desire.StatusNascent, desire.StatusPending, nil)

	if err := m.store.Put(d); err != nil {
		return nil, err
	}
	_ = m.store.AppendScratchpad(d.ID, entry)
	_ = m.store.AppendScratchpad(d.ID, moved)
	m.audit.Transition(d.ID, string(desire.StatusNascent), string(desire.StatusPending), "engine")
	m.emit(Event{DesireID: d.ID, Stage: "created", To: desire.StatusPending, Message: d.Title})
	m.log.Info("Add: %s %q source=%s strength=%.2f", d.ID, d.Title, source, strength)
	return d, nil
}

// Get loads one desire.
func (m *Manager) Get(id string) (*desire.Desire, error) {
	return m.store.Get(id)
}

// List returns all desires, or one status bucket when status is non-empty.
func (m *Manager) List(status desire.Status) ([]*desire.Desire, error) {
	if status == "" {
		return m.store.ListAll()
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return m.store.ListByStatus(status)
}

// transition applies one allow-listed status change and persists it with a
// conditional move. The caller must hold the desire's lock.
func (m *Manager) transition(d *desire.Desire, to desire.Status, actor, reason string) error {
	from := d.Status
	if !desire.CanTransition(from, to) {
		return &desire.InvalidTransitionError{DesireID: d.ID, From: from, To: to}
	}

	d.Status = to
	d.StatusReason = reason
	d.UpdatedAt = time.Now().UTC()
	entry := d.AppendScratchpad("transition", actor, from, to, payloadFor(reason))

	if err := m.store.Move(d, from); err != nil {
		// Roll the in-memory copy back; the store is authoritative.
		d.Status = from
		return err
	}
	_ = m.store.AppendScratchpad(d.ID, entry)
	m.audit.Transition(d.ID, string(from), string(to), actor)
	m.emit(Event{DesireID: d.ID, Stage: "transition", From: from, To: to, Message: reason})
	m.log.Info("transition: %s %s -> %s (%s)", d.ID, from, to, actor)
	return nil
}

// recordFailure appends an error entry to the scratchpad without changing
// status, so failed stage attempts stay reconstructable from the trail.
func (m *Manager) recordFailure(id, stage string, cause error) {
	err := m.withLock(id, func(d *desire.Desire) error {
		entry := d.AppendScratchpad("error", "engine", "", "",
			map[string]any{"stage": stage, "error": cause.Error()})
		if err := m.store.Save(d); err != nil {
			return err
		}
		return m.store.AppendScratchpad(d.ID, entry)
	})
	if err != nil {
		m.log.Warn("recordFailure: %s: %v", id, err)
	}
}

func payloadFor(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}

// withLock runs fn while holding the desire's lock, loading a fresh copy
// from the store first.
func (m *Manager) withLock(id string, fn func(d *desire.Desire) error) error {
	if err := m.locks.acquire(id, m.cfg.Engine.LockWait); err != nil {
		return err
	}
	defer m.locks.release(id)

	d, err := m.store.Get(id)
	if err != nil {
		return err
	}
	return fn(d)
}

// Approve moves a desire waiting on a human decision into approved.
func (m *Manager) Approve(id, actor string) error {
	return m.withLock(id, func(d *desire.Desire) error {
		if d.Status != desire.StatusAwaitingApproval {
			return &desire.InvalidTransitionError{DesireID: id, From: d.Status, To: desire.StatusApproved}
		}
		return m.transition(d, desire.StatusApproved, actor, "approved by user")
	})
}

// Reject terminates a desire that has not started executing.
func (m *Manager) Reject(id, actor, reason string) error {
	return m.withLock(id, func(d *desire.Desire) error {
		if reason == "" {
			reason = "rejected by user"
		}
		return m.transition(d, desire.StatusRejected, actor, reason)
	})
}

// ReviseWithCritique records the user's critique and sends the desire back
// to planning. A desire with no plan yet goes back to pending instead.
func (m *Manager) ReviseWithCritique(id, actor, critique string) error {
	if strings.TrimSpace(critique) == "" {
		return fmt.Errorf("critique is required")
	}
	return m.withLock(id, func(d *desire.Desire) error {
		d.Critique = critique
		target := desire.StatusPlanning
		if d.Plan == nil {
			target = desire.StatusPending
		}
		if err := m.transition(d, target, actor, "revision requested"); err != nil {
			return err
		}
		return nil
	})
}

// Reinforce boosts the desire's strength, clamped to 1.
func (m *Manager) Reinforce(id string, boost float64) error {
	if boost <= 0 {
		return fmt.Errorf("boost must be positive")
	}
	return m.withLock(id, func(d *desire.Desire) error {
		if d.Status.IsTerminal() {
			return fmt.Errorf("cannot reinforce desire in terminal status %s", d.Status)
		}
		before := d.Strength
		d.Strength = min(1, d.Strength+boost)
		d.Metrics.ReinforcementCount++
		if d.Strength > d.Metrics.PeakStrength {
			d.Metrics.PeakStrength = d.Strength
		}
		d.UpdatedAt = time.Now().UTC()

		if err := m.store.Save(d); err != nil {
			return err
		}
		m.audit.Log(logging.AuditEvent{
			Event:    logging.AuditReinforce,
			Category: string(logging.CategoryStrength),
			DesireID: d.ID,
			Success:  true,
			Details:  map[string]any{"before": before, "after": d.Strength},
		})
		return nil
	})
}

// Reset force-moves an executing desire to a safe pre-execution status. By
// default only desires stuck past the configured threshold can be reset;
// force overrides that. The generation bump makes any in-flight execution's
// writeback stale.
func (m *Manager) Reset(id string, target desire.Status, actor string, force bool) error {
	if !desire.IsResetTarget(target) {
		return fmt.Errorf("invalid reset target %q (must be one of %v)", target, desire.ResetTargets)
	}
	return m.withLock(id, func(d *desire.Desire) error {
		if d.Status != desire.StatusExecuting {
			return &desire.InvalidTransitionError{DesireID: id, From: d.Status, To: target}
		}

		stuckFor := time.Since(d.UpdatedAt)
		if !force && stuckFor < m.cfg.Engine.StuckAfter {
			return fmt.Errorf("desire %s has only been executing for %s (threshold %s); use force to reset anyway",
				id, stuckFor.Round(time.Second), m.cfg.Engine.StuckAfter)
		}

		d.Generation++
		if d.Execution != nil && d.Execution.Status == desire.ExecInProgress {
			d.Execution.Status = desire.ExecAborted
			d.Execution.AbortReason = fmt.Sprintf("reset by %s after %d minutes", actor, int(stuckFor.Minutes()))
			d.Execution.FinishedAt = time.Now().UTC()
			m.audit.Log(logging.AuditEvent{
				Event:    logging.AuditExecAborted,
				Category: string(logging.CategoryLifecycle),
				DesireID: d.ID,
				Success:  true,
				Message:  d.Execution.AbortReason,
			})
		}

		reason := fmt.Sprintf("reset to %s after executing %d minutes", target, int(stuckFor.Minutes()))
		if err := m.transition(d, target, actor, reason); err != nil {
			return err
		}
		m.audit.Log(logging.AuditEvent{
			Event:    logging.AuditReset,
			Category: string(logging.CategoryLifecycle),
			Actor:    actor,
			DesireID: d.ID,
			Success:  true,
			Details:  map[string]any{"target": string(target), "generation": d.Generation},
		})
		return nil
	})
}

// PendingSkillApprovals persists the in-memory approval queue and returns
// every undecided item, oldest first. Persisting on read keeps the table
// current without threading the store into the registry.
func (m *Manager) PendingSkillApprovals() ([]store.ApprovalRecord, error) {
	if m.registry == nil {
		return nil, nil
	}
	for _, item := range m.registry.Approvals().Pending() {
		if err := m.store.SaveApproval(store.ApprovalRecord{Item: item}); err != nil {
			m.log.Warn("PendingSkillApprovals: persist %s failed: %v", item.ID, err)
		}
	}
	return m.store.PendingApprovals()
}

// ApproveSkill decides a pending skill approval and, when approved, runs it.
func (m *Manager) ApproveSkill(ctx context.Context, approvalID string, approved bool) (*skill.Result, error) {
	if m.registry == nil {
		return nil, fmt.Errorf("no skill registry configured")
	}
	if err := m.registry.Approvals().Decide(approvalID, approved); err != nil {
		return nil, err
	}
	if rec, err := m.store.GetApproval(approvalID); err == nil {
		if approved {
			rec.Item.State = skill.ApprovalApproved
		} else {
			rec.Item.State = skill.ApprovalDenied
		}
		rec.Item.DecidedAt = time.Now().UTC()
		if err := m.store.SaveApproval(*rec); err != nil {
			m.log.Warn("ApproveSkill: persist decision for %s failed: %v", approvalID, err)
		}
	}
	if !approved {
		return nil, nil
	}
	return m.registry.RunApproved(ctx, approvalID)
}
