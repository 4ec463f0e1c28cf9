// Package review implements the two risk gates around execution: the plan
// review (alignment and safety scoring before anything runs) and the outcome
// review (independent verification after the run, which never trusts the
// executor's own success claims).
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/llm"
	"volition/internal/logging"
)

const alignmentSystemPrompt = `You are the alignment reviewer of an autonomous goal pursuit engine. Judge
whether the plan genuinely serves the stated desire and the operator's
interests, not whether it is safe to run.

Respond with a single JSON object:
{
  "score": 0.0 to 1.0,
  "concerns": ["specific misalignments, empty if none"],
  "reasoning": "one short paragraph"
}`

const safetySystemPrompt = `You are the safety reviewer of an autonomous goal pursuit engine. Judge the
blast radius of the plan: irreversible actions, data exposure, scope creep,
and steps whose declared risk understates what they do. Ignore whether the
plan is useful.

Respond with a single JSON object:
{
  "score": 0.0 to 1.0,
  "concerns": ["specific hazards, empty if none"],
  "mitigations": ["cheap changes that would reduce the risk, empty if none"],
  "reasoning": "one short paragraph"
}`

// Reviewer scores plans on two independent axes before execution.
type Reviewer struct {
	client llm.Client
	cfg    config.ReviewConfig
	log    *logging.Logger
	audit  *logging.AuditLogger
}

// NewReviewer builds the plan reviewer.
func NewReviewer(client llm.Client, cfg config.ReviewConfig, audit *logging.AuditLogger) *Reviewer {
	return &Reviewer{
		client: client,
		cfg:    cfg,
		log:    logging.Get(logging.CategoryReview),
		audit:  audit,
	}
}

type scoreResponse struct {
	Score       float64  `json:"score"`
	Concerns    []string `json:"concerns"`
	Mitigations []string `json:"mitigations"`
	Reasoning   string   `json:"reasoning"`
}

// ReviewPlan runs the alignment and safety calls concurrently and derives
// the verdict. A failed or unparseable call degrades to a reject verdict
// with the error recorded; it never fails open.
func (r *Reviewer) ReviewPlan(ctx context.Context, d *desire.Desire, plan *desire.Plan) *desire.Review {
	prompt := reviewPrompt(d, plan)

	var alignment, safety scoreResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.score(gctx, alignmentSystemPrompt, prompt, &alignment)
	})
	g.Go(func() error {
		return r.score(gctx, safetySystemPrompt, prompt, &safety)
	})

	review := &desire.Review{CreatedAt: time.Now().UTC()}
	if err := g.Wait(); err != nil {
		r.log.Error("ReviewPlan: %s: %v", d.ID, err)
		review.Verdict = desire.VerdictReject
		review.Error = fmt.Errorf("%w: %v", desire.ErrReviewFailure, err).Error()
		review.Reasoning = "review could not be completed; rejecting rather than approving unreviewed work"
		r.auditReview(d.ID, plan.ID, review)
		return review
	}

	review.AlignmentScore = clamp01(alignment.Score)
	review.SafetyScore = clamp01(safety.Score)
	review.Concerns = append(alignment.Concerns, safety.Concerns...)
	review.Mitigations = safety.Mitigations
	review.Reasoning = strings.TrimSpace(alignment.Reasoning + "\n" + safety.Reasoning)
	review.Verdict = DeriveVerdict(review.AlignmentScore, review.SafetyScore, r.cfg)

	r.auditReview(d.ID, plan.ID, review)
	r.log.Info("ReviewPlan: %s plan %s alignment=%.2f safety=%.2f verdict=%s",
		d.ID, plan.ID, review.AlignmentScore, review.SafetyScore, review.Verdict)
	return review
}

func (r *Reviewer) score(ctx context.Context, system, prompt string, out *scoreResponse) error {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	comp, err := r.client.Complete(cctx, system, prompt, llm.Options{JSONMode: true})
	if err != nil {
		return err
	}
	return llm.DecodeJSON(comp.Content, out)
}

func (r *Reviewer) auditReview(desireID, planID string, review *desire.Review) {
	r.audit.Log(logging.AuditEvent{
		Event:    logging.AuditReviewDone,
		Category: string(logging.CategoryReview),
		DesireID: desireID,
		Target:   planID,
		Success:  review.Error == "",
		Error:    review.Error,
		Details: map[string]any{
			"alignment": review.AlignmentScore,
			"safety":    review.SafetyScore,
			"verdict":   string(review.Verdict),
		},
	})
}

// DeriveVerdict maps the two scores to a verdict. Pure function over the
// score space:
//
//	reject  when alignment < alignment threshold or safety < safety threshold
//	approve when both clear the auto-approve threshold
//	revise  otherwise
func DeriveVerdict(alignment, safety float64, cfg config.ReviewConfig) desire.ReviewVerdict {
	if alignment < cfg.AlignmentThreshold || safety < cfg.SafetyThreshold {
		return desire.VerdictReject
	}
	if alignment >= cfg.AutoApproveThreshold && safety >= cfg.AutoApproveThreshold {
		return desire.VerdictApprove
	}
	return desire.VerdictRevise
}

func reviewPrompt(d *desire.Desire, plan *desire.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Desire: %s\n", d.Title)
	if d.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
	}
	fmt.Fprintf(&b, "Source: %s\n\n", d.Source)

	data, _ := json.Marshal(plan)
	fmt.Fprintf(&b, "Plan under review:\n%s\n", data)
	return b.String()
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
