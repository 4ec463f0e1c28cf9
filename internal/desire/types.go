// Package desire provides the shared data model for the goal pursuit engine.
// This package exists to break import cycles between lifecycle, planner,
// review, and skill. Types here are foundational data structures with no
// complex dependencies.
package desire

import (
	"time"
)

// =============================================================================
// SOURCES
// =============================================================================

// Source identifies where a desire originated. Each source carries a fixed
// weight used when comparing activation strength against the threshold.
type Source string

const (
	SourcePersonaGoal    Source = "persona-goal"
	SourceUrgentTask     Source = "urgent-task"
	SourceTask           Source = "task"
	SourceMemoryPattern  Source = "memory-pattern"
	SourceCuriosity      Source = "curiosity"
	SourceReflection     Source = "reflection"
	SourceDream          Source = "dream"
	SourceToolSuggestion Source = "tool-suggestion"
)

var sourceWeights = map[Source]float64{
	SourcePersonaGoal:    1.00,
	SourceUrgentTask:     0.95,
	SourceTask:           0.80,
	SourceMemoryPattern:  0.60,
	SourceCuriosity:      0.40,
	SourceReflection:     0.55,
	SourceDream:          0.45,
	SourceToolSuggestion: 0.50,
}

// Weight returns the fixed source weight in [0,1]. Unknown sources get a
// neutral 0.5 rather than zero so a typo can never silently kill a desire.
func (s Source) Weight() float64 {
	if w, ok := sourceWeights[s]; ok {
		return w
	}
	return 0.5
}

// =============================================================================
// RISK AND TRUST
// =============================================================================

// RiskLevel orders the declared risk of a step, plan, or skill.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskNone:     0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Rank returns the position of r in the total order none < low < medium <
// high < critical. Unknown values rank as medium.
func (r RiskLevel) Rank() int {
	if n, ok := riskRank[r]; ok {
		return n
	}
	return riskRank[RiskMedium]
}

// MaxRisk returns the higher of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// ParseRisk normalizes a free-text risk value, defaulting to medium.
func ParseRisk(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskNone, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s)
	}
	return RiskMedium
}

// TrustLevel is a totally ordered autonomy tier gating skill execution.
type TrustLevel string

const (
	TrustObserve        TrustLevel = "observe"
	TrustSuggest        TrustLevel = "suggest"
	TrustSupervisedAuto TrustLevel = "supervised_auto"
	TrustBoundedAuto    TrustLevel = "bounded_auto"
	TrustAdaptiveAuto   TrustLevel = "adaptive_auto"
)

var trustRank = map[TrustLevel]int{
	TrustObserve:        0,
	TrustSuggest:        1,
	TrustSupervisedAuto: 2,
	TrustBoundedAuto:    3,
	TrustAdaptiveAuto:   4,
}

// Rank returns the position of t in the total order observe < suggest <
// supervised_auto < bounded_auto < adaptive_auto.
func (t TrustLevel) Rank() int {
	if n, ok := trustRank[t]; ok {
		return n
	}
	return 0
}

// AtLeast reports whether t grants at least the autonomy of min.
func (t TrustLevel) AtLeast(min TrustLevel) bool {
	return t.Rank() >= min.Rank()
}

// RequiredTrust maps a plan's estimated risk to the trust tier needed to run
// it without delegation to a human.
func RequiredTrust(risk RiskLevel) TrustLevel {
	switch risk {
	case RiskNone, RiskLow:
		return TrustSuggest
	case RiskMedium:
		return TrustSupervisedAuto
	default:
		return TrustBoundedAuto
	}
}

// =============================================================================
// PLAN
// =============================================================================

// Step is a single ordered action within a plan.
type Step struct {
	Order            int            `json:"order"`
	Action           string         `json:"action"`
	Skill            string         `json:"skill,omitempty"`
	Inputs           map[string]any `json:"inputs,omitempty"`
	ExpectedOutcome  string         `json:"expected_outcome,omitempty"`
	Risk             RiskLevel      `json:"risk"`
	RequiresApproval bool           `json:"requires_approval"`
}

// Plan is an ordered, versioned list of steps proposed to satisfy a desire.
type Plan struct {
	ID                 string     `json:"id"`
	DesireID           string     `json:"desire_id"`
	Version            int        `json:"version"`
	Goal               string     `json:"goal"`
	Steps              []Step     `json:"steps"`
	EstimatedRisk      RiskLevel  `json:"estimated_risk"`
	RequiredTrustLevel TrustLevel `json:"required_trust_level"`
	BasedOnCritique    string     `json:"based_on_critique,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// =============================================================================
// REVIEW
// =============================================================================

// ReviewVerdict is the categorical output of a plan review.
type ReviewVerdict string

const (
	VerdictApprove ReviewVerdict = "approve"
	VerdictReject  ReviewVerdict = "reject"
	VerdictRevise  ReviewVerdict = "revise"
)

// Review is the alignment/safety assessment of a plan.
type Review struct {
	AlignmentScore float64       `json:"alignment_score"`
	SafetyScore    float64       `json:"safety_score"`
	Concerns       []string      `json:"concerns,omitempty"`
	Mitigations    []string      `json:"mitigations,omitempty"`
	Reasoning      string        `json:"reasoning,omitempty"`
	Verdict        ReviewVerdict `json:"verdict"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// =============================================================================
// EXECUTION
// =============================================================================

// ExecutionStatus tracks the mechanical state of a plan run.
type ExecutionStatus string

const (
	ExecInProgress ExecutionStatus = "in_progress"
	ExecCompleted  ExecutionStatus = "completed"
	ExecFailed     ExecutionStatus = "failed"
	ExecAborted    ExecutionStatus = "aborted"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	Order       int       `json:"order"`
	Success     bool      `json:"success"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Execution is the run record of walking a plan's steps.
type Execution struct {
	ID             string          `json:"id"`
	PlanID         string          `json:"plan_id"`
	PlanVersion    int             `json:"plan_version"`
	Status         ExecutionStatus `json:"status"`
	StepsCompleted int             `json:"steps_completed"`
	StepResults    []StepResult    `json:"step_results"`
	Error          string          `json:"error,omitempty"`
	AbortReason    string          `json:"abort_reason,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// =============================================================================
// VERIFICATION AND OUTCOME
// =============================================================================

// Verification is the independent check of whether the claimed outcome
// actually happened. It never trusts the execution's own success flag.
type Verification struct {
	Strategy     string    `json:"strategy"`
	Verified     bool      `json:"verified"`
	Evidence     []string  `json:"evidence,omitempty"`
	Errors       []string  `json:"errors,omitempty"`
	Inconclusive bool      `json:"inconclusive,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// OutcomeVerdict is the categorical result of outcome review.
type OutcomeVerdict string

const (
	OutcomeCompleted OutcomeVerdict = "completed"
	OutcomeContinue  OutcomeVerdict = "continue"
	OutcomeRetry     OutcomeVerdict = "retry"
	OutcomeEscalate  OutcomeVerdict = "escalate"
	OutcomeAbandon   OutcomeVerdict = "abandon"
)

// NextStatus returns the fixed status mapping for an outcome verdict.
func (v OutcomeVerdict) NextStatus() (Status, bool) {
	switch v {
	case OutcomeCompleted:
		return StatusCompleted, true
	case OutcomeContinue, OutcomeRetry:
		return StatusPlanning, true
	case OutcomeEscalate:
		return StatusAwaitingApproval, true
	case OutcomeAbandon:
		return StatusAbandoned, true
	}
	return "", false
}

// OutcomeReview is the post-execution verdict combining the execution record
// with independent verification evidence.
type OutcomeReview struct {
	Verdict                OutcomeVerdict `json:"verdict"`
	SuccessScore           float64        `json:"success_score"`
	LessonsLearned         []string       `json:"lessons_learned,omitempty"`
	NextAttemptSuggestions []string       `json:"next_attempt_suggestions,omitempty"`
	AdjustedStrength       *float64       `json:"adjusted_strength,omitempty"`
	NotifyUser             bool           `json:"notify_user"`
	UserMessage            string         `json:"user_message,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
}

// =============================================================================
// DESIRE
// =============================================================================

// DesireMetrics aggregates pursuit statistics across attempts.
type DesireMetrics struct {
	Attempts           int     `json:"attempts"`
	Successes          int     `json:"successes"`
	AvgSuccessScore    float64 `json:"avg_success_score"`
	ReinforcementCount int     `json:"reinforcement_count"`
	PeakStrength       float64 `json:"peak_strength"`
	ActiveSeconds      int64   `json:"active_seconds"`
	IdleSeconds        int64   `json:"idle_seconds"`
}

// ScratchpadEntry is one immutable lifecycle log record. The scratchpad is
// append-only and is the desire's sole audit trail.
type ScratchpadEntry struct {
	Seq        int64          `json:"seq"`
	At         time.Time      `json:"at"`
	Event      string         `json:"event"`
	FromStatus Status         `json:"from_status,omitempty"`
	ToStatus   Status         `json:"to_status,omitempty"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Desire is a candidate autonomous intention moving through planning,
// execution, and verification.
type Desire struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Source      Source `json:"source"`

	Strength     float64    `json:"strength"`
	Status       Status     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`

	Plan         *Plan          `json:"plan,omitempty"`
	PlanHistory  []*Plan        `json:"plan_history,omitempty"`
	Review       *Review        `json:"review,omitempty"`
	Execution    *Execution     `json:"execution,omitempty"`
	Verification *Verification  `json:"verification,omitempty"`
	Outcome      *OutcomeReview `json:"outcome,omitempty"`

	Metrics    DesireMetrics     `json:"metrics"`
	Scratchpad []ScratchpadEntry `json:"scratchpad,omitempty"`

	// Critique holds the most recent user critique, consumed by the next
	// planning pass.
	Critique string `json:"critique,omitempty"`

	// DecayTick is the last strength-engine tick applied to this desire.
	// Guards against double-decay under overlapping scheduler runs.
	DecayTick int64 `json:"decay_tick"`

	// Generation increments on every forced reset. In-flight backend results
	// carrying a stale generation are discarded instead of written back.
	Generation uint64 `json:"generation"`
}

// EffectiveStrength is strength weighted by the desire's source. Activation
// threshold comparisons always use this, never raw strength.
func (d *Desire) EffectiveStrength() float64 {
	return d.Strength * d.Source.Weight()
}

// NextPlanVersion returns the version the next generated plan should carry.
func (d *Desire) NextPlanVersion() int {
	v := 0
	if d.Plan != nil && d.Plan.Version > v {
		v = d.Plan.Version
	}
	for _, p := range d.PlanHistory {
		if p.Version > v {
			v = p.Version
		}
	}
	return v + 1
}

// ArchivePlan moves the current plan into history. A plan is archived at
// most once; the history keeps chronological order.
func (d *Desire) ArchivePlan() {
	if d.Plan == nil {
		return
	}
	d.PlanHistory = append(d.PlanHistory, d.Plan)
	d.Plan = nil
}

// AppendScratchpad appends one immutable log entry and returns it. Sequence
// numbers are strictly increasing per desire.
func (d *Desire) AppendScratchpad(event, actor string, from, to Status, payload map[string]any) ScratchpadEntry {
	entry := ScratchpadEntry{
		Seq:        int64(len(d.Scratchpad)) + 1,
		At:         time.Now().UTC(),
		Event:      event,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Payload:    payload,
	}
	d.Scratchpad = append(d.Scratchpad, entry)
	return entry
}
