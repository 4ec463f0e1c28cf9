// Package planner turns an activated desire into an ordered plan of steps
// via one model call per attempt. Plans are versioned; revisions carry the
// critique that prompted them.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/llm"
	"volition/internal/logging"
	"volition/internal/skill"
)

const plannerSystemPrompt = `You are the planning component of an autonomous goal pursuit engine. Given a
desire, produce the smallest ordered plan of concrete steps that would
satisfy it.

Rules:
- Prefer the provided skills; set "skill" to a listed id and fill "inputs"
  per its declared fields. Leave "skill" empty only for pure reasoning steps.
- Rate each step's risk honestly: none, low, medium, high, or critical.
- Steps run strictly in order and execution stops at the first failure, so
  order prerequisites first.

Respond with a single JSON object:
{
  "goal": "one sentence restating what success looks like",
  "steps": [
    {
      "action": "what to do",
      "skill": "skill id or empty",
      "inputs": {},
      "expected_outcome": "observable result",
      "risk": "none|low|medium|high|critical",
      "requires_approval": false
    }
  ]
}`

// SkillCatalog supplies the manifests the planner may reference. Usually
// Registry.ListAvailable bound to the engine's trust level.
type SkillCatalog func() []skill.Manifest

// Planner generates and revises plans.
type Planner struct {
	client  llm.Client
	cfg     config.PlannerConfig
	catalog SkillCatalog
	log     *logging.Logger
	audit   *logging.AuditLogger
}

// New builds a planner. catalog may be nil when no skills are registered.
func New(client llm.Client, cfg config.PlannerConfig, catalog SkillCatalog, audit *logging.AuditLogger) *Planner {
	return &Planner{
		client:  client,
		cfg:     cfg,
		catalog: catalog,
		log:     logging.Get(logging.CategoryPlanner),
		audit:   audit,
	}
}

type planResponse struct {
	Goal  string `json:"goal"`
	Steps []struct {
		Action          string         `json:"action"`
		Skill           string         `json:"skill"`
		Inputs          map[string]any `json:"inputs"`
		ExpectedOutcome string         `json:"expected_outcome"`
		Risk            string         `json:"risk"`
		// Pointer so an explicit false is distinguishable from absent.
		RequiresApproval *bool `json:"requires_approval"`
	} `json:"steps"`
}

// GeneratePlan produces the next plan version for the desire. When the
// desire carries a critique and a prior plan, the prompt includes both and
// the result is marked as a revision. An empty step list is re-requested a
// bounded number of times before ErrEmptyPlan.
func (p *Planner) GeneratePlan(ctx context.Context, d *desire.Desire) (*desire.Plan, error) {
	userPrompt := p.buildPrompt(d)

	attempts := 1 + p.cfg.EmptyPlanRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		comp, err := p.client.Complete(cctx, plannerSystemPrompt, userPrompt, llm.Options{
			JSONMode:    true,
			Temperature: p.cfg.Temperature,
		})
		cancel()
		if err != nil {
			return nil, err
		}

		var resp planResponse
		if err := llm.DecodeJSON(comp.Content, &resp); err != nil {
			return nil, &desire.PlanParseError{Raw: comp.Content, Err: err}
		}

		if len(resp.Steps) == 0 {
			p.log.Warn("GeneratePlan: empty plan for %s (attempt %d/%d)", d.ID, attempt+1, attempts)
			lastErr = desire.ErrEmptyPlan
			continue
		}

		plan := p.assemble(d, resp)
		event := logging.AuditPlanGenerated
		if plan.BasedOnCritique != "" {
			event = logging.AuditPlanRevised
		}
		p.audit.Log(logging.AuditEvent{
			Event:    event,
			Category: string(logging.CategoryPlanner),
			DesireID: d.ID,
			Target:   plan.ID,
			Success:  true,
			Details:  map[string]any{"version": plan.Version, "steps": len(plan.Steps), "risk": string(plan.EstimatedRisk)},
		})
		p.log.Info("GeneratePlan: %s v%d with %d steps (risk=%s)", d.ID, plan.Version, len(plan.Steps), plan.EstimatedRisk)
		return plan, nil
	}
	return nil, lastErr
}

func (p *Planner) buildPrompt(d *desire.Desire) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Desire: %s\n", d.Title)
	if d.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
	}
	if d.Reason != "" {
		fmt.Fprintf(&b, "Why it matters: %s\n", d.Reason)
	}
	fmt.Fprintf(&b, "Source: %s (strength %.2f)\n", d.Source, d.Strength)

	if p.catalog != nil {
		if manifests := p.catalog(); len(manifests) > 0 {
			b.WriteString("\nAvailable skills:\n")
			for _, m := range manifests {
				data, _ := json.Marshal(struct {
					ID          string           `json:"id"`
					Description string           `json:"description,omitempty"`
					Inputs      []skill.FieldSpec `json:"inputs,omitempty"`
					Risk        desire.RiskLevel `json:"risk"`
				}{m.ID, m.Description, m.Inputs, m.Risk})
				b.WriteString(string(data))
				b.WriteByte('\n')
			}
		}
	}

	if d.Critique != "" && d.Plan != nil {
		prior, _ := json.Marshal(d.Plan)
		fmt.Fprintf(&b, "\nA previous plan was rejected. Revise it.\nPrevious plan: %s\nCritique: %s\n", prior, d.Critique)
	} else if d.Review != nil && d.Review.Verdict == desire.VerdictRevise && d.Plan != nil {
		prior, _ := json.Marshal(d.Plan)
		fmt.Fprintf(&b, "\nA previous plan needs revision.\nPrevious plan: %s\nReviewer concerns: %s\n",
			prior, strings.Join(d.Review.Concerns, "; "))
	}
	return b.String()
}

// assemble normalizes the raw response into a Plan: orders are reassigned
// from position, risk defaults to medium, and medium-or-higher steps are
// flagged for approval unless the model set requires_approval explicitly.
func (p *Planner) assemble(d *desire.Desire, resp planResponse) *desire.Plan {
	version := d.NextPlanVersion()
	id := uuid.NewString()
	if version > 1 {
		id = fmt.Sprintf("%s-v%d", id, version)
	}

	goal := strings.TrimSpace(resp.Goal)
	if goal == "" {
		goal = d.Title
	}

	plan := &desire.Plan{
		ID:        id,
		DesireID:  d.ID,
		Version:   version,
		Goal:      goal,
		CreatedAt: time.Now().UTC(),
	}
	if d.Critique != "" {
		plan.BasedOnCritique = d.Critique
	}

	estimated := desire.RiskNone
	for i, s := range resp.Steps {
		risk := desire.ParseRisk(s.Risk)
		requiresApproval := risk.Rank() >= desire.RiskMedium.Rank()
		if s.RequiresApproval != nil {
			requiresApproval = *s.RequiresApproval
		}
		step := desire.Step{
			Order:            i + 1,
			Action:           strings.TrimSpace(s.Action),
			Skill:            strings.TrimSpace(s.Skill),
			Inputs:           s.Inputs,
			ExpectedOutcome:  s.ExpectedOutcome,
			Risk:             risk,
			RequiresApproval: requiresApproval,
		}
		plan.Steps = append(plan.Steps, step)
		estimated = desire.MaxRisk(estimated, risk)
	}
	plan.EstimatedRisk = estimated
	plan.RequiredTrustLevel = desire.RequiredTrust(estimated)
	return plan
}
