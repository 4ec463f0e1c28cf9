package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/llm"
	"volition/internal/logging"
)

const outcomeSystemPrompt = `You are the outcome reviewer of an autonomous goal pursuit engine. An
execution finished and was independently verified. Decide what happens to
the desire next.

Verdicts:
- "completed": the goal is genuinely achieved, confirmed by verification
- "continue": real progress was made; plan the next increment
- "retry": the attempt failed or cannot be confirmed; plan again
- "escalate": a human must look at this before anything else runs
- "abandon": the desire is not worth pursuing further

Respond with a single JSON object:
{
  "verdict": "completed|continue|retry|escalate|abandon",
  "success_score": 0.0 to 1.0,
  "lessons_learned": [],
  "next_attempt_suggestions": [],
  "adjusted_strength": optional 0.0 to 1.0,
  "notify_user": true or false,
  "user_message": "present when notify_user is true"
}

Verification is the ground truth. When it failed or was inconclusive, the
verdict cannot be "completed" no matter what the executor claimed.`

// OutcomeReviewer produces the post-execution verdict.
type OutcomeReviewer struct {
	client llm.Client
	cfg    config.ReviewConfig
	log    *logging.Logger
	audit  *logging.AuditLogger
}

// NewOutcomeReviewer builds the outcome reviewer.
func NewOutcomeReviewer(client llm.Client, cfg config.ReviewConfig, audit *logging.AuditLogger) *OutcomeReviewer {
	return &OutcomeReviewer{
		client: client,
		cfg:    cfg,
		log:    logging.Get(logging.CategoryVerify),
		audit:  audit,
	}
}

type outcomeResponse struct {
	Verdict                string   `json:"verdict"`
	SuccessScore           float64  `json:"success_score"`
	LessonsLearned         []string `json:"lessons_learned"`
	NextAttemptSuggestions []string `json:"next_attempt_suggestions"`
	AdjustedStrength       *float64 `json:"adjusted_strength"`
	NotifyUser             bool     `json:"notify_user"`
	UserMessage            string   `json:"user_message"`
}

// ReviewOutcome judges the finished execution. The model proposes a verdict;
// the verification guard then enforces that unconfirmed success can never
// become a completed verdict. A failed review degrades to escalate so a
// human sees the run rather than it silently retrying forever.
func (o *OutcomeReviewer) ReviewOutcome(ctx context.Context, d *desire.Desire) *desire.OutcomeReview {
	outcome := &desire.OutcomeReview{CreatedAt: time.Now().UTC()}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	comp, err := o.client.Complete(cctx, outcomeSystemPrompt, o.buildPrompt(d), llm.Options{JSONMode: true})
	if err != nil {
		o.log.Error("ReviewOutcome: %s: %v", d.ID, err)
		outcome.Verdict = desire.OutcomeEscalate
		outcome.NotifyUser = true
		outcome.UserMessage = fmt.Sprintf("outcome review failed for %q: %v", d.Title, err)
		o.auditOutcome(d.ID, outcome, err)
		return outcome
	}

	var resp outcomeResponse
	if err := llm.DecodeJSON(comp.Content, &resp); err != nil {
		o.log.Error("ReviewOutcome: %s: unparseable response: %v", d.ID, err)
		outcome.Verdict = desire.OutcomeEscalate
		outcome.NotifyUser = true
		outcome.UserMessage = fmt.Sprintf("outcome review for %q returned unusable output", d.Title)
		o.auditOutcome(d.ID, outcome, err)
		return outcome
	}

	outcome.Verdict = parseOutcomeVerdict(resp.Verdict)
	outcome.SuccessScore = clamp01(resp.SuccessScore)
	outcome.LessonsLearned = resp.LessonsLearned
	outcome.NextAttemptSuggestions = resp.NextAttemptSuggestions
	outcome.NotifyUser = resp.NotifyUser
	outcome.UserMessage = resp.UserMessage
	if resp.AdjustedStrength != nil {
		s := clamp01(*resp.AdjustedStrength)
		outcome.AdjustedStrength = &s
	}

	outcome.Verdict = guardVerdict(outcome.Verdict, d.Verification)
	o.auditOutcome(d.ID, outcome, nil)
	o.log.Info("ReviewOutcome: %s verdict=%s score=%.2f", d.ID, outcome.Verdict, outcome.SuccessScore)
	return outcome
}

// guardVerdict enforces the verification invariant: a completed verdict
// requires confirmed evidence. Everything else passes through.
func guardVerdict(verdict desire.OutcomeVerdict, verification *desire.Verification) desire.OutcomeVerdict {
	if verdict != desire.OutcomeCompleted {
		return verdict
	}
	if verification == nil {
		return desire.OutcomeRetry
	}
	if verification.Inconclusive {
		return desire.OutcomeRetry
	}
	if !verification.Verified || len(verification.Evidence) == 0 {
		return desire.OutcomeRetry
	}
	return verdict
}

func parseOutcomeVerdict(s string) desire.OutcomeVerdict {
	switch desire.OutcomeVerdict(strings.ToLower(strings.TrimSpace(s))) {
	case desire.OutcomeCompleted:
		return desire.OutcomeCompleted
	case desire.OutcomeContinue:
		return desire.OutcomeContinue
	case desire.OutcomeRetry:
		return desire.OutcomeRetry
	case desire.OutcomeEscalate:
		return desire.OutcomeEscalate
	case desire.OutcomeAbandon:
		return desire.OutcomeAbandon
	}
	// An unrecognized verdict goes to a human, never to completed.
	return desire.OutcomeEscalate
}

func (o *OutcomeReviewer) buildPrompt(d *desire.Desire) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Desire: %s\n", d.Title)
	if d.Plan != nil {
		fmt.Fprintf(&b, "Goal: %s\n", d.Plan.Goal)
	}
	fmt.Fprintf(&b, "Attempts so far: %d (successes: %d)\n", d.Metrics.Attempts, d.Metrics.Successes)

	if d.Execution != nil {
		data, _ := json.Marshal(d.Execution)
		fmt.Fprintf(&b, "\nExecution record:\n%s\n", data)
	}
	if d.Verification != nil {
		data, _ := json.Marshal(d.Verification)
		fmt.Fprintf(&b, "\nIndependent verification:\n%s\n", data)
	} else {
		b.WriteString("\nIndependent verification: none performed\n")
	}
	return b.String()
}

func (o *OutcomeReviewer) auditOutcome(desireID string, outcome *desire.OutcomeReview, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	o.audit.Log(logging.AuditEvent{
		Event:    logging.AuditOutcomeDone,
		Category: string(logging.CategoryVerify),
		DesireID: desireID,
		Success:  err == nil,
		Error:    errMsg,
		Details: map[string]any{
			"verdict": string(outcome.Verdict),
			"score":   outcome.SuccessScore,
		},
	})
}
