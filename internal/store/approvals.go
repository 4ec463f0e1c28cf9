package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"volition/internal/skill"
)

// ApprovalRecord ties a queued skill approval to the desire that raised it.
type ApprovalRecord struct {
	Item     skill.ApprovalItem `json:"item"`
	DesireID string             `json:"desire_id"`
}

// SaveApproval persists a queued or decided approval. Upserts by id so the
// record follows the item through its decision.
func (s *Store) SaveApproval(rec ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal approval %s: %w", rec.Item.ID, err)
	}
	var decidedAt any
	if !rec.Item.DecidedAt.IsZero() {
		decidedAt = rec.Item.DecidedAt.UnixMilli()
	}
	_, err = s.db.Exec(
		`INSERT INTO approvals (id, desire_id, skill_id, state, doc, created_at, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, doc = excluded.doc, decided_at = excluded.decided_at`,
		rec.Item.ID, rec.DesireID, rec.Item.SkillID, string(rec.Item.State),
		string(doc), rec.Item.CreatedAt.UnixMilli(), decidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save approval %s: %w", rec.Item.ID, err)
	}
	return nil
}

// PendingApprovals returns undecided approvals, oldest first.
func (s *Store) PendingApprovals() ([]ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT doc FROM approvals WHERE state = ? ORDER BY created_at ASC`,
		string(skill.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec ApprovalRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			s.log.Warn("PendingApprovals: skipping corrupt record: %v", err)
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetApproval loads one approval record by id.
func (s *Store) GetApproval(id string) (*ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc string
	err := s.db.QueryRow(`SELECT doc FROM approvals WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, skill.ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval %s: %w", id, err)
	}

	var rec ApprovalRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("corrupt approval document %s: %w", id, err)
	}
	return &rec, nil
}

// PruneApprovals deletes decided approvals older than the retention window.
func (s *Store) PruneApprovals(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.Exec(
		`DELETE FROM approvals WHERE state != ? AND created_at < ?`,
		string(skill.ApprovalPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune approvals: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
