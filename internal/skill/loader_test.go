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

const samplePack = `
name: sample
skills:
  - id: say_hello
    category: demo
    risk: low
    min_trust_level: suggest
    read_only: true
    inputs:
      - name: who
        type: string
        required: true
    run:
      command: echo
      args: ["hello", "${who}"]
  - id: broken
    category: demo
`

func TestLoadPacks(t *testing.T) {
	ws := t.TempDir()
	dir := PacksDir(ws)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.yaml"), []byte(samplePack), 0o644))

	r := newTestRegistry(t)
	require.NoError(t, LoadPacks(r, ws))

	m, ok := r.Get("say_hello")
	require.True(t, ok)
	assert.Equal(t, desire.RiskLow, m.Risk)
	assert.True(t, m.ReadOnly)

	// The entry without a run.command is skipped, not fatal.
	_, ok = r.Get("broken")
	assert.False(t, ok)

	res, err := r.Invoke(context.Background(), "say_hello",
		map[string]any{"who": "volition"}, desire.TrustSuggest, false)
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Status)
	out := res.Output.(map[string]any)
	assert.Contains(t, out["output"], "hello volition")
}

func TestLoadPacksMissingDir(t *testing.T) {
	r := newTestRegistry(t)
	assert.NoError(t, LoadPacks(r, t.TempDir()))
	assert.Empty(t, r.ListAvailable(desire.TrustAdaptiveAuto))
}

func TestSubstituteLeavesUnknownPlaceholders(t *testing.T) {
	got := substitute("${known}-${unknown}", map[string]any{"known": "v"})
	assert.Equal(t, "v-${unknown}", got)
}
