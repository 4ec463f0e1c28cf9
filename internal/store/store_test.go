package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volition/internal/desire"
	"volition/internal/skill"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "desires.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newDesire(id string, status desire.Status, strength float64) *desire.Desire {
	now := time.Now().UTC()
	return &desire.Desire{
		ID: id, Title: "desire " + id, Source: desire.SourceTask,
		Strength: strength, Status: status, CreatedAt: now, UpdatedAt: now,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	d := newDesire("d-1", desire.StatusPending, 0.8)
	d.Plan = &desire.Plan{ID: "p-1", DesireID: "d-1", Version: 1, Goal: "g",
		Steps: []desire.Step{{Order: 1, Action: "a", Risk: desire.RiskLow}}}

	require.NoError(t, s.Put(d))

	got, err := s.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, d.Title, got.Title)
	assert.Equal(t, desire.StatusPending, got.Status)
	require.NotNil(t, got.Plan)
	assert.Equal(t, "p-1", got.Plan.ID)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, desire.ErrDesireNotFound)
}

func TestPutDuplicateFails(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(newDesire("d-1", desire.StatusPending, 0.5)))
	assert.Error(t, s.Put(newDesire("d-1", desire.StatusPending, 0.5)))
}

func TestSaveUpdatesDocument(t *testing.T) {
	s := openTestStore(t)
	d := newDesire("d-1", desire.StatusPending, 0.5)
	require.NoError(t, s.Put(d))

	d.Strength = 0.9
	d.StatusReason = "reinforced"
	require.NoError(t, s.Save(d))

	got, err := s.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Strength)
	assert.Equal(t, "reinforced", got.StatusReason)
}

func TestSaveMissing(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.Save(newDesire("ghost", desire.StatusPending, 0.5)), desire.ErrDesireNotFound)
}

func TestMoveConditionalOnStatus(t *testing.T) {
	s := openTestStore(t)
	d := newDesire("d-1", desire.StatusPending, 0.8)
	require.NoError(t, s.Put(d))

	d.Status = desire.StatusPlanning
	require.NoError(t, s.Move(d, desire.StatusPending))

	got, err := s.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, desire.StatusPlanning, got.Status)

	// A second mover still expecting pending loses the race.
	stale := newDesire("d-1", desire.StatusEvaluating, 0.8)
	err = s.Move(stale, desire.StatusPending)
	var terr *desire.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, desire.StatusPending, terr.From)

	// The stored document is untouched by the failed move.
	got, err = s.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, desire.StatusPlanning, got.Status)
}

func TestMoveMissingDesire(t *testing.T) {
	s := openTestStore(t)
	d := newDesire("ghost", desire.StatusPlanning, 0.5)
	assert.ErrorIs(t, s.Move(d, desire.StatusPending), desire.ErrDesireNotFound)
}

func TestListByStatusOrdersByStrength(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(newDesire("weak", desire.StatusPending, 0.3)))
	require.NoError(t, s.Put(newDesire("strong", desire.StatusPending, 0.9)))
	require.NoError(t, s.Put(newDesire("other", desire.StatusPlanning, 0.5)))

	got, err := s.ListByStatus(desire.StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "strong", got[0].ID)
	assert.Equal(t, "weak", got[1].ID)
}

func TestListActiveExcludesTerminal(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(newDesire("live", desire.StatusExecuting, 0.9)))
	require.NoError(t, s.Put(newDesire("done", desire.StatusCompleted, 0.9)))
	require.NoError(t, s.Put(newDesire("dead", desire.StatusAbandoned, 0.9)))
	require.NoError(t, s.Put(newDesire("no", desire.StatusRejected, 0.9)))
	require.NoError(t, s.Put(newDesire("broke", desire.StatusFailed, 0.9)))

	got, err := s.ListActive()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "live", got[0].ID)
}

func TestPruneTerminal(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(newDesire("done", desire.StatusCompleted, 0.1)))
	require.NoError(t, s.Put(newDesire("live", desire.StatusPending, 0.9)))

	// Nothing is old enough yet.
	n, err := s.PruneTerminal(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// With a zero window every terminal row is past retention.
	n, err = s.PruneTerminal(-time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get("done")
	assert.ErrorIs(t, err, desire.ErrDesireNotFound)
	_, err = s.Get("live")
	assert.NoError(t, err)
}

func TestScratchpadAppendOnly(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(newDesire("d-1", desire.StatusPending, 0.5)))

	e1 := desire.ScratchpadEntry{Seq: 1, At: time.Now().UTC(), Event: "created", Actor: "engine"}
	e2 := desire.ScratchpadEntry{Seq: 2, At: time.Now().UTC(), Event: "activated", Actor: "engine",
		FromStatus: desire.StatusPending, ToStatus: desire.StatusEvaluating}
	require.NoError(t, s.AppendScratchpad("d-1", e1))
	require.NoError(t, s.AppendScratchpad("d-1", e2))

	// Duplicate sequence numbers are rejected, never overwritten.
	assert.Error(t, s.AppendScratchpad("d-1", desire.ScratchpadEntry{Seq: 2, At: time.Now().UTC(), Event: "rewrite"}))

	got, err := s.Scratchpad("d-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "created", got[0].Event)
	assert.Equal(t, "activated", got[1].Event)
}

func TestCountByStatus(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(newDesire("a", desire.StatusPending, 0.5)))
	require.NoError(t, s.Put(newDesire("b", desire.StatusPending, 0.5)))
	require.NoError(t, s.Put(newDesire("c", desire.StatusExecuting, 0.5)))

	counts, err := s.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[desire.StatusPending])
	assert.Equal(t, 1, counts[desire.StatusExecuting])
}

func TestApprovalRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := ApprovalRecord{
		DesireID: "d-1",
		Item: skill.ApprovalItem{
			ID: "ap-1", SkillID: "shell_command",
			Inputs:    map[string]any{"command": "git status"},
			State:     skill.ApprovalPending,
			CreatedAt: time.Now().UTC(),
		},
	}
	require.NoError(t, s.SaveApproval(rec))

	pending, err := s.PendingApprovals()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "shell_command", pending[0].Item.SkillID)

	rec.Item.State = skill.ApprovalApproved
	rec.Item.DecidedAt = time.Now().UTC()
	require.NoError(t, s.SaveApproval(rec))

	pending, err = s.PendingApprovals()
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.GetApproval("ap-1")
	require.NoError(t, err)
	assert.Equal(t, skill.ApprovalApproved, got.Item.State)

	n, err := s.PruneApprovals(-time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.GetApproval("ap-1")
	assert.ErrorIs(t, err, skill.ErrApprovalNotFound)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(newDesire("d-1", desire.StatusPending, 0.5)))
	require.NoError(t, s.AppendScratchpad("d-1", desire.ScratchpadEntry{Seq: 1, At: time.Now().UTC(), Event: "created"}))

	require.NoError(t, s.Delete("d-1"))
	_, err := s.Get("d-1")
	assert.ErrorIs(t, err, desire.ErrDesireNotFound)

	pad, err := s.Scratchpad("d-1")
	require.NoError(t, err)
	assert.Empty(t, pad)

	assert.ErrorIs(t, s.Delete("d-1"), desire.ErrDesireNotFound)
}
