package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volition/internal/desire"
	"volition/internal/llm"
	"volition/internal/logging"
)

func outcomeFixture(verified bool, evidence []string, inconclusive bool) *desire.Desire {
	d := executedDesire()
	d.Verification = &desire.Verification{
		Strategy:     StrategyInvestigate,
		Verified:     verified,
		Evidence:     evidence,
		Inconclusive: inconclusive,
	}
	return d
}

func newOutcomeReviewer(client llm.Client) *OutcomeReviewer {
	return NewOutcomeReviewer(client, testReviewConfig(), logging.NewDiscardAuditLogger())
}

func TestReviewOutcomeCompleted(t *testing.T) {
	client := llm.RespondJSON(map[string]any{
		"verdict": "completed", "success_score": 0.9,
		"lessons_learned": []string{"small plans finish"},
	})
	o := newOutcomeReviewer(client)

	outcome := o.ReviewOutcome(context.Background(), outcomeFixture(true, []string{"file exists"}, false))
	assert.Equal(t, desire.OutcomeCompleted, outcome.Verdict)
	assert.InDelta(t, 0.9, outcome.SuccessScore, 0.001)
}

func TestReviewOutcomeCompletedDemotedWithoutVerification(t *testing.T) {
	client := llm.RespondJSON(map[string]any{"verdict": "completed", "success_score": 1.0})
	o := newOutcomeReviewer(client)

	// Executor claims success but verification found nothing.
	outcome := o.ReviewOutcome(context.Background(), outcomeFixture(false, nil, false))
	assert.Equal(t, desire.OutcomeRetry, outcome.Verdict)

	// Verified flag without evidence is equally insufficient.
	outcome = o.ReviewOutcome(context.Background(), outcomeFixture(true, nil, false))
	assert.Equal(t, desire.OutcomeRetry, outcome.Verdict)

	// Inconclusive verification can never complete.
	outcome = o.ReviewOutcome(context.Background(), outcomeFixture(true, []string{"e"}, true))
	assert.Equal(t, desire.OutcomeRetry, outcome.Verdict)

	// No verification record at all.
	d := executedDesire()
	outcome = o.ReviewOutcome(context.Background(), d)
	assert.Equal(t, desire.OutcomeRetry, outcome.Verdict)
}

func TestReviewOutcomeNonCompletedVerdictsPassThrough(t *testing.T) {
	for _, verdict := range []string{"continue", "retry", "escalate", "abandon"} {
		client := llm.RespondJSON(map[string]any{"verdict": verdict, "success_score": 0.4})
		o := newOutcomeReviewer(client)

		outcome := o.ReviewOutcome(context.Background(), outcomeFixture(false, nil, true))
		assert.Equal(t, desire.OutcomeVerdict(verdict), outcome.Verdict)
	}
}

func TestReviewOutcomeUnknownVerdictEscalates(t *testing.T) {
	client := llm.RespondJSON(map[string]any{"verdict": "victory", "success_score": 1.0})
	o := newOutcomeReviewer(client)

	outcome := o.ReviewOutcome(context.Background(), outcomeFixture(true, []string{"e"}, false))
	assert.Equal(t, desire.OutcomeEscalate, outcome.Verdict)
}

func TestReviewOutcomeFailureEscalates(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(context.Context, string, string, llm.Options) (*llm.Completion, error) {
			return nil, errors.New("api unavailable")
		},
	}
	o := newOutcomeReviewer(client)

	outcome := o.ReviewOutcome(context.Background(), outcomeFixture(true, []string{"e"}, false))
	assert.Equal(t, desire.OutcomeEscalate, outcome.Verdict)
	assert.True(t, outcome.NotifyUser)
}

func TestReviewOutcomeAdjustedStrengthClamped(t *testing.T) {
	client := llm.RespondJSON(map[string]any{
		"verdict": "continue", "success_score": 0.6, "adjusted_strength": 1.8,
	})
	o := newOutcomeReviewer(client)

	outcome := o.ReviewOutcome(context.Background(), outcomeFixture(true, []string{"e"}, false))
	require.NotNil(t, outcome.AdjustedStrength)
	assert.Equal(t, 1.0, *outcome.AdjustedStrength)
}

func TestOutcomeVerdictStatusMapping(t *testing.T) {
	cases := map[desire.OutcomeVerdict]desire.Status{
		desire.OutcomeCompleted: desire.StatusCompleted,
		desire.OutcomeContinue:  desire.StatusPlanning,
		desire.OutcomeRetry:     desire.StatusPlanning,
		desire.OutcomeEscalate:  desire.StatusAwaitingApproval,
		desire.OutcomeAbandon:   desire.StatusAbandoned,
	}
	for verdict, want := range cases {
		got, ok := verdict.NextStatus()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := desire.OutcomeVerdict("victory").NextStatus()
	assert.False(t, ok)
}
