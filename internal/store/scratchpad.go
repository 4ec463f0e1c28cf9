package store

import (
	"encoding/json"
	"fmt"

	"volition/internal/desire"
)

// AppendScratchpad persists one lifecycle log entry. The table is
// append-only: entries are never updated or deleted while the desire lives,
// and the (desire_id, seq) key rejects duplicate sequence numbers.
func (s *Store) AppendScratchpad(desireID string, entry desire.ScratchpadEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal scratchpad entry: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO scratchpad (desire_id, seq, at, doc) VALUES (?, ?, ?, ?)`,
		desireID, entry.Seq, entry.At.UnixMilli(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to append scratchpad for %s: %w", desireID, err)
	}
	return nil
}

// Scratchpad loads a desire's full log in sequence order.
func (s *Store) Scratchpad(desireID string) ([]desire.ScratchpadEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT doc FROM scratchpad WHERE desire_id = ? ORDER BY seq ASC`, desireID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scratchpad for %s: %w", desireID, err)
	}
	defer rows.Close()

	var out []desire.ScratchpadEntry
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var entry desire.ScratchpadEntry
		if err := json.Unmarshal([]byte(doc), &entry); err != nil {
			s.log.Warn("Scratchpad: skipping corrupt entry for %s: %v", desireID, err)
			continue
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
