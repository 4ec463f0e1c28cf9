package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/llm"
	"volition/internal/logging"
)

func testReviewConfig() config.ReviewConfig {
	return config.ReviewConfig{
		Timeout:              time.Second,
		AlignmentThreshold:   0.70,
		SafetyThreshold:      0.80,
		AutoApproveThreshold: 0.90,
	}
}

// scoringClient answers the alignment and safety prompts with fixed scores.
func scoringClient(alignment, safety float64) llm.Client {
	return &llm.MockClient{
		CompleteFunc: func(_ context.Context, system, _ string, _ llm.Options) (*llm.Completion, error) {
			score := safety
			if strings.Contains(system, "alignment reviewer") {
				score = alignment
			}
			return &llm.Completion{
				Content: fmt.Sprintf(`{"score": %.2f, "concerns": [], "reasoning": "r"}`, score),
			}, nil
		},
	}
}

func reviewFixture() (*desire.Desire, *desire.Plan) {
	d := &desire.Desire{ID: "d-1", Title: "tidy the workspace", Source: desire.SourceTask}
	p := &desire.Plan{ID: "p-1", DesireID: "d-1", Version: 1, Goal: "workspace tidy",
		Steps: []desire.Step{{Order: 1, Action: "list files", Risk: desire.RiskLow}}}
	return d, p
}

func TestDeriveVerdict(t *testing.T) {
	cfg := testReviewConfig()

	cases := []struct {
		alignment, safety float64
		want              desire.ReviewVerdict
	}{
		{0.95, 0.95, desire.VerdictApprove},
		{0.90, 0.90, desire.VerdictApprove},
		{0.95, 0.89, desire.VerdictRevise},
		{0.89, 0.95, desire.VerdictRevise},
		{0.75, 0.85, desire.VerdictRevise},
		{0.69, 0.99, desire.VerdictReject},
		{0.99, 0.79, desire.VerdictReject},
		{0.0, 0.0, desire.VerdictReject},
		{1.0, 1.0, desire.VerdictApprove},
	}
	for _, tc := range cases {
		got := DeriveVerdict(tc.alignment, tc.safety, cfg)
		assert.Equal(t, tc.want, got, "alignment=%.2f safety=%.2f", tc.alignment, tc.safety)
	}
}

// Sweep the score space: below-threshold scores must always reject, and
// approve must require both scores at or above the auto-approve line.
func TestDeriveVerdictScoreSpace(t *testing.T) {
	cfg := testReviewConfig()
	for a := 0.0; a <= 1.0; a += 0.05 {
		for s := 0.0; s <= 1.0; s += 0.05 {
			v := DeriveVerdict(a, s, cfg)
			if a < cfg.AlignmentThreshold || s < cfg.SafetyThreshold {
				assert.Equal(t, desire.VerdictReject, v, "a=%.2f s=%.2f", a, s)
			}
			if v == desire.VerdictApprove {
				assert.GreaterOrEqual(t, a, cfg.AutoApproveThreshold)
				assert.GreaterOrEqual(t, s, cfg.AutoApproveThreshold)
			}
		}
	}
}

func TestReviewPlanApprove(t *testing.T) {
	r := NewReviewer(scoringClient(0.95, 0.93), testReviewConfig(), logging.NewDiscardAuditLogger())
	d, p := reviewFixture()

	review := r.ReviewPlan(context.Background(), d, p)
	assert.Equal(t, desire.VerdictApprove, review.Verdict)
	assert.InDelta(t, 0.95, review.AlignmentScore, 0.001)
	assert.InDelta(t, 0.93, review.SafetyScore, 0.001)
	assert.Empty(t, review.Error)
}

func TestReviewPlanClampsScores(t *testing.T) {
	r := NewReviewer(scoringClient(1.7, -0.4), testReviewConfig(), logging.NewDiscardAuditLogger())
	d, p := reviewFixture()

	review := r.ReviewPlan(context.Background(), d, p)
	assert.Equal(t, 1.0, review.AlignmentScore)
	assert.Equal(t, 0.0, review.SafetyScore)
	assert.Equal(t, desire.VerdictReject, review.Verdict)
}

func TestReviewPlanFailureDegradesToReject(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(context.Context, string, string, llm.Options) (*llm.Completion, error) {
			return nil, errors.New("api unavailable")
		},
	}
	r := NewReviewer(client, testReviewConfig(), logging.NewDiscardAuditLogger())
	d, p := reviewFixture()

	review := r.ReviewPlan(context.Background(), d, p)
	assert.Equal(t, desire.VerdictReject, review.Verdict)
	assert.Contains(t, review.Error, "review failed")
}

func TestReviewPlanMalformedResponseDegradesToReject(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(context.Context, string, string, llm.Options) (*llm.Completion, error) {
			return &llm.Completion{Content: "looks fine to me"}, nil
		},
	}
	r := NewReviewer(client, testReviewConfig(), logging.NewDiscardAuditLogger())
	d, p := reviewFixture()

	review := r.ReviewPlan(context.Background(), d, p)
	assert.Equal(t, desire.VerdictReject, review.Verdict)
	assert.NotEmpty(t, review.Error)
}

func TestReviewPlanCollectsConcerns(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(_ context.Context, system, _ string, _ llm.Options) (*llm.Completion, error) {
			if strings.Contains(system, "alignment reviewer") {
				return &llm.Completion{Content: `{"score": 0.85, "concerns": ["scope creep"], "reasoning": "a"}`}, nil
			}
			return &llm.Completion{Content: `{"score": 0.85, "concerns": ["writes outside workspace"], "mitigations": ["narrow the path"], "reasoning": "s"}`}, nil
		},
	}
	r := NewReviewer(client, testReviewConfig(), logging.NewDiscardAuditLogger())
	d, p := reviewFixture()

	review := r.ReviewPlan(context.Background(), d, p)
	assert.Equal(t, desire.VerdictRevise, review.Verdict)
	assert.ElementsMatch(t, []string{"scope creep", "writes outside workspace"}, review.Concerns)
	assert.Equal(t, []string{"narrow the path"}, review.Mitigations)
}
