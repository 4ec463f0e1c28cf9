package skill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volition/internal/desire"
	"volition/internal/logging"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(logging.NewDiscardAuditLogger())
}

func echoHandler(_ context.Context, inputs map[string]any) (any, error) {
	return inputs, nil
}

func TestRegisterDuplicateIsNoOp(t *testing.T) {
	r := newTestRegistry(t)

	m := Manifest{ID: "echo", Category: "test"}
	require.NoError(t, r.Register(m, echoHandler))

	// Second registration with a different risk must not replace the first.
	m2 := Manifest{ID: "echo", Category: "test", Risk: desire.RiskCritical}
	require.NoError(t, r.Register(m2, echoHandler))

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, desire.RiskMedium, got.Risk)
}

func TestRegisterValidatesManifest(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Register(Manifest{}, echoHandler)
	assert.Error(t, err, "empty id must be rejected")

	err = r.Register(Manifest{
		ID:     "bad_path",
		Inputs: []FieldSpec{{Name: "path", Type: "path", Required: true}},
	}, echoHandler)
	assert.Error(t, err, "path input without allowed_directories must be rejected")

	err = r.Register(Manifest{
		ID:     "bad_cmd",
		Inputs: []FieldSpec{{Name: "command", Type: "command", Required: true}},
	}, echoHandler)
	assert.Error(t, err, "command input without command_whitelist must be rejected")
}

func TestListAvailableFiltersByTrust(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Register(Manifest{ID: "observe_ok", MinTrustLevel: desire.TrustObserve}, echoHandler))
	require.NoError(t, r.Register(Manifest{ID: "needs_bounded", MinTrustLevel: desire.TrustBoundedAuto}, echoHandler))

	names := func(ms []Manifest) []string {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}

	assert.Equal(t, []string{"observe_ok"}, names(r.ListAvailable(desire.TrustObserve)))
	assert.Equal(t, []string{"observe_ok"}, names(r.ListAvailable(desire.TrustSuggest)))
	assert.Equal(t, []string{"needs_bounded", "observe_ok"}, names(r.ListAvailable(desire.TrustBoundedAuto)))
}

func TestInvokeTrustGate(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{ID: "guarded", MinTrustLevel: desire.TrustBoundedAuto}, echoHandler))

	_, err := r.Invoke(context.Background(), "guarded", nil, desire.TrustSuggest, false)
	var verr *desire.SkillValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "guarded", verr.Skill)

	res, err := r.Invoke(context.Background(), "guarded", nil, desire.TrustBoundedAuto, false)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Status)
}

func TestInvokeUnknownSkill(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Invoke(context.Background(), "nope", nil, desire.TrustAdaptiveAuto, false)
	var verr *desire.SkillValidationError
	require.ErrorAs(t, err, &verr)
}

func TestInvokeValidatesInputs(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{
		ID: "typed",
		Inputs: []FieldSpec{
			{Name: "name", Type: "string", Required: true},
			{Name: "count", Type: "number"},
			{Name: "flag", Type: "bool"},
		},
	}, echoHandler))

	_, err := r.Invoke(context.Background(), "typed", map[string]any{}, desire.TrustSuggest, false)
	assert.Error(t, err, "missing required field")

	_, err = r.Invoke(context.Background(), "typed", map[string]any{"name": 42}, desire.TrustSuggest, false)
	assert.Error(t, err, "wrong type for string field")

	_, err = r.Invoke(context.Background(), "typed", map[string]any{"name": "x", "count": "many"}, desire.TrustSuggest, false)
	assert.Error(t, err, "wrong type for number field")

	res, err := r.Invoke(context.Background(), "typed", map[string]any{"name": "x", "count": 3.0, "flag": true}, desire.TrustSuggest, false)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Status)
}

func TestInvokeFieldValidator(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{
		ID: "bounded",
		Inputs: []FieldSpec{{
			Name: "n", Type: "number", Required: true,
			Validator: func(v any) error {
				if f, ok := v.(float64); ok && f > 10 {
					return fmt.Errorf("n must be at most 10")
				}
				return nil
			},
		}},
	}, echoHandler))

	_, err := r.Invoke(context.Background(), "bounded", map[string]any{"n": 11.0}, desire.TrustSuggest, false)
	var verr *desire.SkillValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "n", verr.Field)
}

func TestInvokePathEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{
		ID:                 "reader",
		Inputs:             []FieldSpec{{Name: "path", Type: "path", Required: true}},
		AllowedDirectories: []string{dir},
	}, echoHandler))

	_, err := r.Invoke(context.Background(), "reader",
		map[string]any{"path": filepath.Join(dir, "..", "secrets")}, desire.TrustSuggest, false)
	assert.Error(t, err, "dot-dot escape must be rejected")

	_, err = r.Invoke(context.Background(), "reader",
		map[string]any{"path": "/etc/passwd"}, desire.TrustSuggest, false)
	assert.Error(t, err, "absolute path outside the allow-list must be rejected")

	inside := filepath.Join(dir, "sub", "file.txt")
	res, err := r.Invoke(context.Background(), "reader",
		map[string]any{"path": inside}, desire.TrustSuggest, false)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Status)
}

func TestInvokePathSymlinkEscapeRejected(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(allowed, "link")
	require.NoError(t, os.Symlink(outside, link))

	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{
		ID:                 "reader",
		Inputs:             []FieldSpec{{Name: "path", Type: "path", Required: true}},
		AllowedDirectories: []string{allowed},
	}, echoHandler))

	_, err := r.Invoke(context.Background(), "reader",
		map[string]any{"path": filepath.Join(link, "x.txt")}, desire.TrustSuggest, false)
	assert.Error(t, err, "symlink pointing outside the allow-list must be rejected")
}

func TestInvokeCommandWhitelist(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{
		ID:               "runner",
		Inputs:           []FieldSpec{{Name: "command", Type: "command", Required: true}},
		CommandWhitelist: []string{"git", "ls"},
	}, echoHandler))

	for _, bad := range []string{"rm -rf /", "gitx status", "", "/usr/bin/git status"} {
		_, err := r.Invoke(context.Background(), "runner",
			map[string]any{"command": bad}, desire.TrustSuggest, false)
		assert.Error(t, err, "command %q must be rejected", bad)
	}

	res, err := r.Invoke(context.Background(), "runner",
		map[string]any{"command": "git status --short"}, desire.TrustSuggest, false)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Status)
}

func TestInvokeHandlerErrorIsResultNotError(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{ID: "boom"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("handler exploded")
	}))

	res, err := r.Invoke(context.Background(), "boom", nil, desire.TrustSuggest, false)
	require.NoError(t, err)
	assert.Equal(t, ResultError, res.Status)
	assert.Contains(t, res.Error, "handler exploded")
}

func TestApprovalFlow(t *testing.T) {
	r := newTestRegistry(t)
	ran := false
	require.NoError(t, r.Register(Manifest{ID: "gated", RequiresApproval: true},
		func(context.Context, map[string]any) (any, error) {
			ran = true
			return "done", nil
		}))

	res, err := r.Invoke(context.Background(), "gated", nil, desire.TrustSuggest, false)
	require.NoError(t, err)
	assert.Equal(t, ResultPendingApproval, res.Status)
	assert.NotEmpty(t, res.ApprovalID)
	assert.False(t, ran, "handler must not run before approval")

	// Cannot take before a decision.
	_, err = r.RunApproved(context.Background(), res.ApprovalID)
	assert.ErrorIs(t, err, ErrNotApproved)

	require.NoError(t, r.Approvals().Decide(res.ApprovalID, true))
	assert.ErrorIs(t, r.Approvals().Decide(res.ApprovalID, false), ErrAlreadyDecided)

	out, err := r.RunApproved(context.Background(), res.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, out.Status)
	assert.True(t, ran)

	// Taking a second time fails: the item was consumed.
	_, err = r.RunApproved(context.Background(), res.ApprovalID)
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}

func TestApprovalDenied(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{ID: "gated", RequiresApproval: true}, echoHandler))

	res, err := r.Invoke(context.Background(), "gated", nil, desire.TrustSuggest, false)
	require.NoError(t, err)

	require.NoError(t, r.Approvals().Decide(res.ApprovalID, false))
	_, err = r.RunApproved(context.Background(), res.ApprovalID)
	assert.ErrorIs(t, err, ErrNotApproved)
	assert.Empty(t, r.Approvals().Pending())
}

func TestAutoApproveBypassesQueue(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Manifest{ID: "gated", RequiresApproval: true}, echoHandler))

	res, err := r.Invoke(context.Background(), "gated", nil, desire.TrustSuggest, true)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Status)
	assert.Empty(t, r.Approvals().Pending())
}
