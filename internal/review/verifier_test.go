package review

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volition/internal/desire"
	"volition/internal/executor"
	"volition/internal/llm"
	"volition/internal/logging"
	"volition/internal/skill"
)

func verifierFixture(t *testing.T, ws string) executor.Executor {
	t.Helper()
	r := skill.NewRegistry(logging.NewDiscardAuditLogger())
	require.NoError(t, skill.RegisterBuiltins(r, skill.BuiltinDeps{Workspace: ws}))
	return executor.NewSkillExecutor(r, time.Second)
}

func executedDesire(paths ...string) *desire.Desire {
	steps := []desire.Step{}
	results := []desire.StepResult{}
	for i, p := range paths {
		steps = append(steps, desire.Step{
			Order: i + 1, Action: "write file", Skill: "note_write",
			Inputs: map[string]any{"path": p},
		})
		results = append(results, desire.StepResult{Order: i + 1, Success: true, Result: "wrote " + p})
	}
	if len(steps) == 0 {
		steps = []desire.Step{{Order: 1, Action: "reason about things"}}
		results = []desire.StepResult{{Order: 1, Success: true, Result: "reasoned"}}
	}
	return &desire.Desire{
		ID:     "d-1",
		Title:  "produce artifacts",
		Plan:   &desire.Plan{ID: "p-1", Goal: "artifacts exist", Steps: steps},
		Execution: &desire.Execution{
			ID: "e-1", PlanID: "p-1", Status: desire.ExecCompleted,
			StepsCompleted: len(results), StepResults: results,
		},
	}
}

func TestVerifyFileExistence(t *testing.T) {
	ws := t.TempDir()
	present := filepath.Join(ws, "out.txt")
	require.NoError(t, os.WriteFile(present, []byte("data"), 0o644))

	v := NewVerifier(verifierFixture(t, ws), nil, VerifierOptions{})
	result := v.Verify(context.Background(), executedDesire(present))

	assert.Equal(t, StrategyFileExistence, result.Strategy)
	assert.True(t, result.Verified)
	assert.NotEmpty(t, result.Evidence)
	assert.False(t, result.Inconclusive)
}

func TestVerifyFileMissing(t *testing.T) {
	ws := t.TempDir()
	missing := filepath.Join(ws, "never-written.txt")

	v := NewVerifier(verifierFixture(t, ws), nil, VerifierOptions{})
	// The executor claimed success; the missing file exposes the lie.
	result := v.Verify(context.Background(), executedDesire(missing))

	assert.Equal(t, StrategyFileExistence, result.Strategy)
	assert.False(t, result.Verified)
	assert.NotEmpty(t, result.Errors)
}

func TestVerifyMixedFiles(t *testing.T) {
	ws := t.TempDir()
	present := filepath.Join(ws, "a.txt")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))
	missing := filepath.Join(ws, "b.txt")

	v := NewVerifier(verifierFixture(t, ws), nil, VerifierOptions{})
	result := v.Verify(context.Background(), executedDesire(present, missing))

	assert.False(t, result.Verified, "all claimed files must exist")
	assert.NotEmpty(t, result.Evidence)
	assert.NotEmpty(t, result.Errors)
}

func TestVerifyInvestigate(t *testing.T) {
	client := llm.RespondJSON(map[string]any{
		"verified": true,
		"evidence": []string{"step output names the produced summary"},
	})
	v := NewVerifier(nil, client, VerifierOptions{})
	result := v.Verify(context.Background(), executedDesire())

	assert.Equal(t, StrategyInvestigate, result.Strategy)
	assert.True(t, result.Verified)
}

func TestVerifyInvestigateVerifiedWithoutEvidenceDowngraded(t *testing.T) {
	client := llm.RespondJSON(map[string]any{"verified": true, "evidence": []string{}})
	v := NewVerifier(nil, client, VerifierOptions{})
	result := v.Verify(context.Background(), executedDesire())

	assert.False(t, result.Verified, "verified without evidence is a contradiction")
}

func TestVerifyInvestigateInconclusive(t *testing.T) {
	client := llm.RespondJSON(map[string]any{
		"verified": false, "inconclusive": true, "evidence": []string{},
		"notes": "no observable artifacts to check",
	})
	v := NewVerifier(nil, client, VerifierOptions{})
	result := v.Verify(context.Background(), executedDesire())

	assert.True(t, result.Inconclusive)
	assert.False(t, result.Verified)
}

func TestVerifyNoBackends(t *testing.T) {
	v := NewVerifier(nil, nil, VerifierOptions{})
	result := v.Verify(context.Background(), executedDesire())

	assert.True(t, result.Inconclusive)
	assert.False(t, result.Verified)
	assert.NotEmpty(t, result.Errors)
}

func TestVerifyMissingExecution(t *testing.T) {
	v := NewVerifier(nil, nil, VerifierOptions{})
	result := v.Verify(context.Background(), &desire.Desire{ID: "d-1"})

	assert.True(t, result.Inconclusive)
	assert.False(t, result.Verified)
}

func TestVerifyTaskListEvidence(t *testing.T) {
	ws := t.TempDir()
	r := skill.NewRegistry(logging.NewDiscardAuditLogger())
	require.NoError(t, skill.RegisterBuiltins(r, skill.BuiltinDeps{
		Workspace: ws,
		Tasks: func(context.Context) (any, error) {
			return []map[string]any{{"id": "d-1", "status": "awaiting_review"}}, nil
		},
	}))
	exec := executor.NewSkillExecutor(r, time.Second)

	client := &llm.MockClient{
		CompleteFunc: func(_ context.Context, _, user string, _ llm.Options) (*llm.Completion, error) {
			assert.Contains(t, user, "task snapshot")
			return &llm.Completion{Content: `{"verified": false, "inconclusive": true, "evidence": []}`}, nil
		},
	}
	v := NewVerifier(exec, client, VerifierOptions{TaskListAvailable: true})
	result := v.Verify(context.Background(), executedDesire())

	assert.Equal(t, StrategyTaskList, result.Strategy)
	require.Len(t, client.Calls, 1)
}
