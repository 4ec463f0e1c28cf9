package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/llm"
	"volition/internal/logging"
	"volition/internal/skill"
)

func testConfig() config.PlannerConfig {
	return config.PlannerConfig{
		Timeout:          time.Second,
		EmptyPlanRetries: 2,
		Temperature:      0.2,
	}
}

func newPlanner(client llm.Client) *Planner {
	return New(client, testConfig(), nil, logging.NewDiscardAuditLogger())
}

func sampleDesire() *desire.Desire {
	return &desire.Desire{
		ID:       "d-1",
		Title:    "organize the notes directory",
		Source:   desire.SourceTask,
		Strength: 0.9,
		Status:   desire.StatusPlanning,
	}
}

func TestGeneratePlanNormalizesSteps(t *testing.T) {
	client := llm.RespondJSON(map[string]any{
		"goal": "notes are organized",
		"steps": []map[string]any{
			{"action": "list current notes", "skill": "file_read", "risk": "low"},
			{"action": "rewrite index", "risk": "medium"},
			{"action": "verify index", "risk": "totally-made-up"},
		},
	})

	p := newPlanner(client)
	plan, err := p.GeneratePlan(context.Background(), sampleDesire())
	require.NoError(t, err)

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{plan.Steps[0].Order, plan.Steps[1].Order, plan.Steps[2].Order})
	assert.Equal(t, desire.RiskLow, plan.Steps[0].Risk)
	assert.False(t, plan.Steps[0].RequiresApproval)
	assert.True(t, plan.Steps[1].RequiresApproval)

	// Unknown risk strings normalize to medium.
	assert.Equal(t, desire.RiskMedium, plan.Steps[2].Risk)
	assert.True(t, plan.Steps[2].RequiresApproval)

	assert.Equal(t, desire.RiskMedium, plan.EstimatedRisk)
	assert.Equal(t, desire.TrustSupervisedAuto, plan.RequiredTrustLevel)
	assert.Equal(t, 1, plan.Version)
	assert.Equal(t, "d-1", plan.DesireID)
	assert.Equal(t, "notes are organized", plan.Goal)
}

func TestGeneratePlanHonorsApprovalOverride(t *testing.T) {
	client := llm.RespondJSON(map[string]any{
		"goal": "notes are organized",
		"steps": []map[string]any{
			{"action": "rewrite index", "risk": "medium", "requires_approval": false},
			{"action": "read a note", "risk": "low", "requires_approval": true},
			{"action": "verify index", "risk": "high"},
		},
	})

	plan, err := newPlanner(client).GeneratePlan(context.Background(), sampleDesire())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)

	// Explicit overrides win in both directions; absent falls back to risk.
	assert.False(t, plan.Steps[0].RequiresApproval)
	assert.True(t, plan.Steps[1].RequiresApproval)
	assert.True(t, plan.Steps[2].RequiresApproval)
}

func TestGeneratePlanEmptyGoalFallsBackToTitle(t *testing.T) {
	client := llm.RespondJSON(map[string]any{
		"steps": []map[string]any{{"action": "do it", "risk": "low"}},
	})
	plan, err := newPlanner(client).GeneratePlan(context.Background(), sampleDesire())
	require.NoError(t, err)
	assert.Equal(t, "organize the notes directory", plan.Goal)
}

func TestGeneratePlanEmptyStepsRetriesThenFails(t *testing.T) {
	client := llm.RespondJSON(map[string]any{"goal": "nothing to do", "steps": []any{}})
	p := newPlanner(client)

	_, err := p.GeneratePlan(context.Background(), sampleDesire())
	require.ErrorIs(t, err, desire.ErrEmptyPlan)
	assert.Len(t, client.Calls, 3, "one attempt plus two retries")
}

func TestGeneratePlanEmptyThenRecovers(t *testing.T) {
	responses := []string{
		`{"goal":"g","steps":[]}`,
		`{"goal":"g","steps":[{"action":"do it","risk":"low"}]}`,
	}
	i := 0
	client := &llm.MockClient{
		CompleteFunc: func(context.Context, string, string, llm.Options) (*llm.Completion, error) {
			resp := responses[i]
			i++
			return &llm.Completion{Content: resp, Model: "mock"}, nil
		},
	}

	plan, err := newPlanner(client).GeneratePlan(context.Background(), sampleDesire())
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)
}

func TestGeneratePlanMalformedResponse(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(context.Context, string, string, llm.Options) (*llm.Completion, error) {
			return &llm.Completion{Content: "sure, here is a plan: step one..."}, nil
		},
	}

	_, err := newPlanner(client).GeneratePlan(context.Background(), sampleDesire())
	var perr *desire.PlanParseError
	require.ErrorAs(t, err, &perr)
}

func TestGeneratePlanRevisionCarriesCritique(t *testing.T) {
	d := sampleDesire()
	d.Plan = &desire.Plan{ID: "p-1", DesireID: d.ID, Version: 1, Goal: "old goal",
		Steps: []desire.Step{{Order: 1, Action: "old step", Risk: desire.RiskLow}}}
	d.Critique = "do not touch the archive folder"

	client := llm.RespondJSON(map[string]any{
		"goal":  "organized without touching archive",
		"steps": []map[string]any{{"action": "reorganize, skipping archive", "risk": "low"}},
	})

	plan, err := newPlanner(client).GeneratePlan(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Version)
	assert.Equal(t, "do not touch the archive folder", plan.BasedOnCritique)
	assert.Contains(t, plan.ID, "-v2")

	require.Len(t, client.Calls, 1)
	assert.Contains(t, client.Calls[0].User, "Critique: do not touch the archive folder")
	assert.Contains(t, client.Calls[0].User, "old step")
}

func TestGeneratePlanIncludesSkillCatalog(t *testing.T) {
	catalog := func() []skill.Manifest {
		return []skill.Manifest{{ID: "file_read", Description: "read a file", Risk: desire.RiskLow}}
	}
	client := llm.RespondJSON(map[string]any{
		"steps": []map[string]any{{"action": "read it", "skill": "file_read", "risk": "low"}},
	})
	p := New(client, testConfig(), catalog, logging.NewDiscardAuditLogger())

	_, err := p.GeneratePlan(context.Background(), sampleDesire())
	require.NoError(t, err)
	require.Len(t, client.Calls, 1)
	assert.Contains(t, client.Calls[0].User, "file_read")
}

func TestGeneratePlanVersionAfterHistory(t *testing.T) {
	d := sampleDesire()
	d.PlanHistory = []*desire.Plan{{Version: 1}, {Version: 2}}
	d.Plan = &desire.Plan{Version: 3}

	client := llm.RespondJSON(map[string]any{
		"steps": []map[string]any{{"action": "try again", "risk": "low"}},
	})
	plan, err := newPlanner(client).GeneratePlan(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Version)
}
