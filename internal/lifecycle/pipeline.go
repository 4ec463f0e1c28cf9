package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"volition/internal/desire"
	"volition/internal/executor"
	"volition/internal/logging"
)

// Advance runs at most one pipeline stage for the desire. Stages that wait
// on a human (awaiting_approval) or on an in-flight execution are no-ops.
func (m *Manager) Advance(ctx context.Context, id string) error {
	d, err := m.store.Get(id)
	if err != nil {
		return err
	}

	switch d.Status {
	case desire.StatusPending:
		return m.stageActivate(id)
	case desire.StatusEvaluating:
		return m.stageEvaluate(id)
	case desire.StatusPlanning:
		return m.stagePlan(ctx, id)
	case desire.StatusReviewing:
		return m.stageReview(ctx, id)
	case desire.StatusApproved:
		return m.stageExecute(ctx, id)
	case desire.StatusExecuting:
		if time.Since(d.UpdatedAt) > m.cfg.Engine.StuckAfter {
			m.log.Warn("Advance: %s executing for %s, may be stuck", id, time.Since(d.UpdatedAt).Round(time.Second))
			m.emit(Event{DesireID: id, Stage: "stuck", To: desire.StatusExecuting,
				Message: fmt.Sprintf("executing for %d minutes", int(time.Since(d.UpdatedAt).Minutes()))})
		}
		return nil
	case desire.StatusAwaitingReview:
		return m.stageOutcome(ctx, id)
	default:
		return nil
	}
}

// AdvanceTo applies one caller-requested status change after validating it
// against the transition allow-list. Unlike the stage dispatcher this does
// not run any stage work; it only moves the desire.
func (m *Manager) AdvanceTo(id string, target desire.Status, actor string) error {
	if !target.IsValid() {
		return fmt.Errorf("unknown status %q", target)
	}
	return m.withLock(id, func(d *desire.Desire) error {
		return m.transition(d, target, actor, fmt.Sprintf("moved to %s by %s", target, actor))
	})
}

// runStage runs one named pipeline stage on demand. The desire must already
// be in the status that stage consumes.
func (m *Manager) runStage(ctx context.Context, id string, want desire.Status, stage func(context.Context, string) error) error {
	d, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if d.Status != want {
		return &desire.InvalidTransitionError{DesireID: id, From: d.Status, To: want}
	}
	return stage(ctx, id)
}

// GeneratePlan runs the planning stage immediately for a desire in planning.
func (m *Manager) GeneratePlan(ctx context.Context, id string) error {
	return m.runStage(ctx, id, desire.StatusPlanning, m.stagePlan)
}

// RunReview runs the alignment/safety review immediately for a desire in
// reviewing.
func (m *Manager) RunReview(ctx context.Context, id string) error {
	return m.runStage(ctx, id, desire.StatusReviewing, m.stageReview)
}

// Execute starts plan execution immediately for an approved desire.
func (m *Manager) Execute(ctx context.Context, id string) error {
	return m.runStage(ctx, id, desire.StatusApproved, m.stageExecute)
}

// OutcomeReview runs verification and outcome review immediately for a
// desire in awaiting_review.
func (m *Manager) OutcomeReview(ctx context.Context, id string) error {
	return m.runStage(ctx, id, desire.StatusAwaitingReview, m.stageOutcome)
}

// stageActivate promotes a pending desire whose weighted strength clears the
// activation threshold.
func (m *Manager) stageActivate(id string) error {
	return m.withLock(id, func(d *desire.Desire) error {
		if d.Status != desire.StatusPending || !m.activationReady(d) {
			return nil
		}
		now := time.Now().UTC()
		d.ActivatedAt = &now
		d.Metrics.IdleSeconds += int64(now.Sub(d.UpdatedAt).Seconds())
		return m.transition(d, desire.StatusEvaluating, "engine",
			fmt.Sprintf("effective strength %.2f cleared threshold %.2f",
				d.EffectiveStrength(), m.cfg.Strength.ActivationThreshold))
	})
}

// stageEvaluate confirms an activated desire still clears the threshold and
// hands it to planning. Strength can decay between ticks; a desire that
// slipped back under goes back to pending.
func (m *Manager) stageEvaluate(id string) error {
	return m.withLock(id, func(d *desire.Desire) error {
		if d.Status != desire.StatusEvaluating {
			return nil
		}
		if !m.activationReady(d) {
			return m.transition(d, desire.StatusPending, "engine",
				"strength fell below threshold during evaluation")
		}
		return m.transition(d, desire.StatusPlanning, "engine", "")
	})
}

// stagePlan generates the next plan version. The model call runs without the
// desire lock; the writeback re-checks status and generation so a reset
// during planning discards the result.
func (m *Manager) stagePlan(ctx context.Context, id string) error {
	d, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if d.Status != desire.StatusPlanning {
		return nil
	}
	gen := d.Generation

	plan, err := m.planner.GeneratePlan(ctx, d)
	if err != nil {
		m.audit.Error(logging.CategoryPlanner, id, err)
		m.recordFailure(id, "planning", err)
		m.log.Warn("stagePlan: %s: %v; staying in planning", id, err)
		return err
	}

	return m.withLock(id, func(fresh *desire.Desire) error {
		if fresh.Generation != gen {
			return desire.ErrStaleGeneration
		}
		if fresh.Status != desire.StatusPlanning {
			return nil
		}
		fresh.ArchivePlan()
		fresh.Plan = plan
		fresh.Critique = ""
		return m.transition(fresh, desire.StatusReviewing, "engine",
			fmt.Sprintf("plan v%d with %d steps", plan.Version, len(plan.Steps)))
	})
}

// stageReview scores the plan and applies the verdict: approve runs
// autonomously, revise waits for a human, reject terminates.
func (m *Manager) stageReview(ctx context.Context, id string) error {
	d, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if d.Status != desire.StatusReviewing || d.Plan == nil {
		return nil
	}
	gen := d.Generation

	rev := m.reviewer.ReviewPlan(ctx, d, d.Plan)

	return m.withLock(id, func(fresh *desire.Desire) error {
		if fresh.Generation != gen {
			return desire.ErrStaleGeneration
		}
		if fresh.Status != desire.StatusReviewing {
			return nil
		}
		fresh.Review = rev

		switch rev.Verdict {
		case desire.VerdictApprove:
			return m.transition(fresh, desire.StatusApproved, "reviewer",
				fmt.Sprintf("alignment %.2f, safety %.2f", rev.AlignmentScore, rev.SafetyScore))
		case desire.VerdictRevise:
			return m.transition(fresh, desire.StatusAwaitingApproval, "reviewer",
				strings.Join(rev.Concerns, "; "))
		default:
			reason := "rejected by reviewer"
			if len(rev.Concerns) > 0 {
				reason = strings.Join(rev.Concerns, "; ")
			} else if rev.Error != "" {
				reason = rev.Error
			}
			return m.transition(fresh, desire.StatusRejected, "reviewer", reason)
		}
	})
}

// stageExecute walks the approved plan's steps in order, stopping at the
// first failure. The walk happens without the desire lock; the writeback
// discards results whose generation went stale.
func (m *Manager) stageExecute(ctx context.Context, id string) error {
	var plan *desire.Plan
	var gen uint64

	err := m.withLock(id, func(d *desire.Desire) error {
		if d.Status != desire.StatusApproved {
			return nil
		}
		if d.Plan == nil || len(d.Plan.Steps) == 0 {
			return m.transition(d, desire.StatusPlanning, "engine", "approved without a usable plan")
		}
		d.Execution = &desire.Execution{
			ID:          uuid.NewString(),
			PlanID:      d.Plan.ID,
			PlanVersion: d.Plan.Version,
			Status:      desire.ExecInProgress,
			StartedAt:   time.Now().UTC(),
		}
		d.Metrics.Attempts++
		if err := m.transition(d, desire.StatusExecuting, "engine", ""); err != nil {
			return err
		}
		plan = d.Plan
		gen = d.Generation
		return nil
	})
	if err != nil || plan == nil {
		return err
	}

	execution := m.walkSteps(ctx, id, plan)

	err = m.withLock(id, func(fresh *desire.Desire) error {
		if fresh.Generation != gen {
			m.audit.Log(logging.AuditEvent{
				Event:    logging.AuditExecAborted,
				Category: string(logging.CategoryExecutor),
				DesireID: id,
				Success:  false,
				Message:  "execution result discarded after reset",
			})
			return desire.ErrStaleGeneration
		}
		if fresh.Status != desire.StatusExecuting {
			return nil
		}

		if fresh.Execution != nil {
			execution.ID = fresh.Execution.ID
		}
		fresh.Execution = execution
		fresh.Metrics.ActiveSeconds += int64(execution.FinishedAt.Sub(execution.StartedAt).Seconds())
		return m.transition(fresh, desire.StatusAwaitingReview, "engine",
			fmt.Sprintf("%d/%d steps completed", execution.StepsCompleted, len(plan.Steps)))
	})
	return err
}

// walkSteps runs the plan steps strictly in order. Every result is recorded;
// the first failure stops the walk.
func (m *Manager) walkSteps(ctx context.Context, id string, plan *desire.Plan) *desire.Execution {
	execution := &desire.Execution{
		PlanID:      plan.ID,
		PlanVersion: plan.Version,
		Status:      desire.ExecInProgress,
		StartedAt:   time.Now().UTC(),
	}

	var priorResults []string
	for _, step := range plan.Steps {
		m.audit.Log(logging.AuditEvent{
			Event:    logging.AuditStepExecute,
			Category: string(logging.CategoryExecutor),
			DesireID: id,
			Success:  true,
			Details:  map[string]any{"order": step.Order, "action": step.Action, "skill": step.Skill},
		})

		res, err := m.exec.Invoke(ctx, executor.Request{
			Goal:    plan.Goal,
			Action:  step.Action,
			Skill:   step.Skill,
			Inputs:  step.Inputs,
			Context: priorResults,
		}, executor.Options{
			Trust: m.trust,
			// The plan already passed review and approval; step-level
			// approval gates apply only to ad hoc invocations.
			AutoApprove: true,
		})

		sr := desire.StepResult{Order: step.Order, CompletedAt: time.Now().UTC()}
		switch {
		case err != nil:
			sr.Success = false
			sr.Error = err.Error()
		case res.Pending:
			sr.Success = false
			sr.Error = "step parked awaiting approval " + res.ApprovalID
		default:
			sr.Success = res.Success
			sr.Result = res.Result
			sr.Error = res.Error
		}
		execution.StepResults = append(execution.StepResults, sr)

		m.audit.Log(logging.AuditEvent{
			Event:    logging.AuditStepResult,
			Category: string(logging.CategoryExecutor),
			DesireID: id,
			Success:  sr.Success,
			Error:    sr.Error,
			Details:  map[string]any{"order": step.Order},
		})
		m.emit(Event{DesireID: id, Stage: "step", To: desire.StatusExecuting,
			Message: fmt.Sprintf("step %d/%d success=%t", step.Order, len(plan.Steps), sr.Success)})

		if !sr.Success {
			execution.Status = desire.ExecFailed
			execution.Error = sr.Error
			execution.FinishedAt = time.Now().UTC()
			return execution
		}
		execution.StepsCompleted++
		priorResults = append(priorResults, sr.Result)
	}

	execution.Status = desire.ExecCompleted
	execution.FinishedAt = time.Now().UTC()
	return execution
}

// stageOutcome verifies the finished execution independently and applies the
// outcome verdict. The model calls run without the lock; the writeback
// re-checks generation and status.
func (m *Manager) stageOutcome(ctx context.Context, id string) error {
	d, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if d.Status != desire.StatusAwaitingReview || d.Execution == nil {
		return nil
	}
	gen := d.Generation

	verification := m.verifier.Verify(ctx, d)
	d.Verification = verification
	outcome := m.outcome.ReviewOutcome(ctx, d)

	return m.withLock(id, func(fresh *desire.Desire) error {
		if fresh.Generation != gen {
			return desire.ErrStaleGeneration
		}
		if fresh.Status != desire.StatusAwaitingReview {
			return nil
		}

		fresh.Verification = verification
		fresh.Outcome = outcome
		if outcome.AdjustedStrength != nil {
			fresh.Strength = *outcome.AdjustedStrength
		}
		if outcome.Verdict == desire.OutcomeCompleted {
			fresh.Metrics.Successes++
		}
		updateAvgScore(&fresh.Metrics, outcome.SuccessScore)

		next, ok := outcome.Verdict.NextStatus()
		if !ok {
			next = desire.StatusAwaitingApproval
		}
		reason := fmt.Sprintf("outcome %s (score %.2f)", outcome.Verdict, outcome.SuccessScore)
		if err := m.transition(fresh, next, "outcome-reviewer", reason); err != nil {
			return err
		}
		if outcome.NotifyUser && outcome.UserMessage != "" {
			m.emit(Event{DesireID: id, Stage: "notify", To: next, Message: outcome.UserMessage})
		}
		return nil
	})
}

func updateAvgScore(metrics *desire.DesireMetrics, score float64) {
	n := float64(metrics.Attempts)
	if n <= 0 {
		metrics.AvgSuccessScore = score
		return
	}
	metrics.AvgSuccessScore = (metrics.AvgSuccessScore*(n-1) + score) / n
}

// Tick advances every active desire by at most one stage, bounded by the
// worker limit. Per-desire failures are logged and do not stop the tick.
func (m *Manager) Tick(ctx context.Context) {
	active, err := m.store.ListActive()
	if err != nil {
		m.log.Error("Tick: list failed: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	workers := m.cfg.Engine.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, d := range active {
		id := d.ID
		g.Go(func() error {
			err := m.Advance(gctx, id)
			switch {
			case err == nil:
			case errors.Is(err, desire.ErrDesireBusy), errors.Is(err, desire.ErrStaleGeneration):
				m.log.Debug("Tick: %s: %v", id, err)
			default:
				m.log.Warn("Tick: %s: %v", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Run drives the engine loops until the context is cancelled: the pipeline
// tick, strength decay, and retention pruning.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info("Run: engine started (tick=%s decay=%s)", m.cfg.Engine.TickInterval, m.cfg.Strength.DecayInterval)

	tick := time.NewTicker(m.cfg.Engine.TickInterval)
	defer tick.Stop()
	decay := time.NewTicker(m.cfg.Strength.DecayInterval)
	defer decay.Stop()
	retention := time.NewTicker(m.cfg.Engine.RetentionInterval)
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Run: engine stopped")
			return ctx.Err()
		case <-tick.C:
			m.Tick(ctx)
		case now := <-decay.C:
			if err := m.Decay(now); err != nil {
				m.log.Error("Run: decay failed: %v", err)
			}
		case <-retention.C:
			if n, err := m.store.PruneTerminal(m.cfg.Engine.RetentionWindow); err != nil {
				m.log.Error("Run: prune failed: %v", err)
			} else if n > 0 {
				m.emit(Event{Stage: "prune", Message: fmt.Sprintf("removed %d terminal desires", n)})
			}
			if _, err := m.store.PruneApprovals(m.cfg.Engine.RetentionWindow); err != nil {
				m.log.Error("Run: approval prune failed: %v", err)
			}
		}
	}
}
