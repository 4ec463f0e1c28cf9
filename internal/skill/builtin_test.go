package skill

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volition/internal/desire"
)

func TestBuiltinFileReadAndStat(t *testing.T) {
	ws := t.TempDir()
	r := newTestRegistry(t)
	require.NoError(t, RegisterBuiltins(r, BuiltinDeps{Workspace: ws}))

	path := filepath.Join(ws, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello volition"), 0o644))

	res, err := r.Invoke(context.Background(), "file_read",
		map[string]any{"path": path}, desire.TrustSuggest, false)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)
	out := res.Output.(map[string]any)
	assert.Equal(t, "hello volition", out["content"])

	res, err = r.Invoke(context.Background(), "file_stat",
		map[string]any{"path": path}, desire.TrustObserve, false)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)
	out = res.Output.(map[string]any)
	assert.Equal(t, true, out["exists"])

	res, err = r.Invoke(context.Background(), "file_stat",
		map[string]any{"path": filepath.Join(ws, "missing.txt")}, desire.TrustObserve, false)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)
	out = res.Output.(map[string]any)
	assert.Equal(t, false, out["exists"])
}

func TestBuiltinFileReadOutsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	other := t.TempDir()
	r := newTestRegistry(t)
	require.NoError(t, RegisterBuiltins(r, BuiltinDeps{Workspace: ws}))

	secret := filepath.Join(other, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("nope"), 0o644))

	_, err := r.Invoke(context.Background(), "file_read",
		map[string]any{"path": secret}, desire.TrustSuggest, false)
	var verr *desire.SkillValidationError
	require.ErrorAs(t, err, &verr)
}

func TestBuiltinNoteWrite(t *testing.T) {
	ws := t.TempDir()
	r := newTestRegistry(t)
	require.NoError(t, RegisterBuiltins(r, BuiltinDeps{Workspace: ws}))

	res, err := r.Invoke(context.Background(), "note_write",
		map[string]any{"name": "findings", "text": "first entry"}, desire.TrustSupervisedAuto, false)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)

	res, err = r.Invoke(context.Background(), "note_write",
		map[string]any{"name": "findings", "text": "second entry"}, desire.TrustSupervisedAuto, false)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)

	data, err := os.ReadFile(filepath.Join(ws, ".volition", "notes", "findings.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first entry")
	assert.Contains(t, string(data), "second entry")

	// A path-shaped name must not escape the notes directory.
	_, err = r.Invoke(context.Background(), "note_write",
		map[string]any{"name": "../evil", "text": "x"}, desire.TrustSupervisedAuto, false)
	assert.Error(t, err)
}

func TestBuiltinNoteWriteTrustGate(t *testing.T) {
	ws := t.TempDir()
	r := newTestRegistry(t)
	require.NoError(t, RegisterBuiltins(r, BuiltinDeps{Workspace: ws}))

	_, err := r.Invoke(context.Background(), "note_write",
		map[string]any{"name": "n", "text": "x"}, desire.TrustSuggest, false)
	assert.Error(t, err, "note_write needs supervised_auto or higher")
}

func TestBuiltinTaskList(t *testing.T) {
	ws := t.TempDir()
	r := newTestRegistry(t)
	require.NoError(t, RegisterBuiltins(r, BuiltinDeps{
		Workspace: ws,
		Tasks: func(context.Context) (any, error) {
			return []map[string]any{{"id": "d1", "status": "pending"}}, nil
		},
	}))

	res, err := r.Invoke(context.Background(), "task_list", nil, desire.TrustObserve, false)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)
	assert.Len(t, res.Output, 1)
}

func TestShellCommandRegisteredOnlyWithWhitelist(t *testing.T) {
	ws := t.TempDir()

	r := newTestRegistry(t)
	require.NoError(t, RegisterBuiltins(r, BuiltinDeps{Workspace: ws}))
	_, ok := r.Get("shell_command")
	assert.False(t, ok, "no whitelist means no shell skill")

	r = newTestRegistry(t)
	require.NoError(t, RegisterBuiltins(r, BuiltinDeps{Workspace: ws, ShellWhitelist: []string{"echo"}}))
	m, ok := r.Get("shell_command")
	require.True(t, ok)
	assert.True(t, m.RequiresApproval)

	res, err := r.Invoke(context.Background(), "shell_command",
		map[string]any{"command": "echo hi"}, desire.TrustBoundedAuto, true)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)
	out := res.Output.(map[string]any)
	assert.Contains(t, out["output"], "hi")
	assert.Equal(t, 0, out["exit_code"])
}
