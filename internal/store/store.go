// Package store persists desires in SQLite, bucketed by status. The status
// column is the single source of truth for which bucket a desire occupies;
// moves between buckets are conditional updates so two workers can never
// move the same desire from the same status twice.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"volition/internal/desire"
	"volition/internal/logging"
)

// Store is the SQLite-backed desire repository.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	log  *logging.Logger
}

// DefaultPath returns the database location for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".volition", "desires.db")
}

// Open initializes the database at the given path, creating the schema when
// missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := logging.Get(logging.CategoryStore)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("Open: %s failed: %v", pragma, err)
		}
	}

	s := &Store{db: db, path: path, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Open: store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS desires (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		strength REAL NOT NULL DEFAULT 0,
		doc TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_desires_status ON desires(status);
	CREATE INDEX IF NOT EXISTS idx_desires_updated ON desires(updated_at);

	CREATE TABLE IF NOT EXISTS scratchpad (
		desire_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		at INTEGER NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (desire_id, seq)
	);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		desire_id TEXT NOT NULL,
		skill_id TEXT NOT NULL,
		state TEXT NOT NULL,
		doc TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		decided_at INTEGER
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts a new desire. The id must not already exist.
func (s *Store) Put(d *desire.Desire) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal desire %s: %w", d.ID, err)
	}
	now := time.Now().UnixMilli()
	_, err = s.db.Exec(
		`INSERT INTO desires (id, status, strength, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Status), d.Strength, string(doc), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert desire %s: %w", d.ID, err)
	}
	s.log.Debug("Put: %s status=%s", d.ID, d.Status)
	return nil
}

// Get loads one desire by id.
func (s *Store) Get(id string) (*desire.Desire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *Store) get(id string) (*desire.Desire, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM desires WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, desire.ErrDesireNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load desire %s: %w", id, err)
	}

	var d desire.Desire
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("corrupt desire document %s: %w", id, err)
	}
	return &d, nil
}

// Save rewrites the desire document in place. The status column follows the
// document's status; use Move when the caller must guard against concurrent
// status changes.
func (s *Store) Save(d *desire.Desire) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal desire %s: %w", d.ID, err)
	}
	res, err := s.db.Exec(
		`UPDATE desires SET status = ?, strength = ?, doc = ?, updated_at = ? WHERE id = ?`,
		string(d.Status), d.Strength, string(doc), time.Now().UnixMilli(), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save desire %s: %w", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return desire.ErrDesireNotFound
	}
	return nil
}

// Move atomically writes the document while transitioning the status column
// from an expected value. Zero rows affected means another worker already
// moved the desire; the caller gets an InvalidTransitionError and must
// re-read.
func (s *Store) Move(d *desire.Desire, from desire.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal desire %s: %w", d.ID, err)
	}
	res, err := s.db.Exec(
		`UPDATE desires SET status = ?, strength = ?, doc = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(d.Status), d.Strength, string(doc), time.Now().UnixMilli(), d.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to move desire %s: %w", d.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.get(d.ID); err != nil {
			return err
		}
		return &desire.InvalidTransitionError{DesireID: d.ID, From: from, To: d.Status}
	}
	s.log.Debug("Move: %s %s -> %s", d.ID, from, d.Status)
	return nil
}

// ListByStatus returns every desire in one status bucket, strongest first.
func (s *Store) ListByStatus(status desire.Status) ([]*desire.Desire, error) {
	return s.list(`SELECT doc FROM desires WHERE status = ? ORDER BY strength DESC, created_at ASC`, string(status))
}

// ListActive returns every non-terminal desire, strongest first.
func (s *Store) ListActive() ([]*desire.Desire, error) {
	return s.list(`SELECT doc FROM desires WHERE status NOT IN (?, ?, ?, ?) ORDER BY strength DESC, created_at ASC`,
		string(desire.StatusCompleted), string(desire.StatusRejected),
		string(desire.StatusAbandoned), string(desire.StatusFailed))
}

// ListAll returns every desire, newest first.
func (s *Store) ListAll() ([]*desire.Desire, error) {
	return s.list(`SELECT doc FROM desires ORDER BY created_at DESC`)
}

func (s *Store) list(query string, args ...any) ([]*desire.Desire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list desires: %w", err)
	}
	defer rows.Close()

	var out []*desire.Desire
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var d desire.Desire
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			s.log.Warn("list: skipping corrupt document: %v", err)
			continue
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Delete removes a desire and its scratchpad.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM scratchpad WHERE desire_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM desires WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return desire.ErrDesireNotFound
	}
	return nil
}

// PruneTerminal deletes terminal desires last touched before the retention
// window. Returns how many were removed.
func (s *Store) PruneTerminal(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.Exec(
		`DELETE FROM desires WHERE updated_at < ? AND status IN (?, ?, ?, ?)`,
		cutoff,
		string(desire.StatusCompleted), string(desire.StatusRejected),
		string(desire.StatusAbandoned), string(desire.StatusFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune desires: %w", err)
	}
	if _, err := s.db.Exec(
		`DELETE FROM scratchpad WHERE desire_id NOT IN (SELECT id FROM desires)`,
	); err != nil {
		s.log.Warn("PruneTerminal: scratchpad cleanup failed: %v", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("PruneTerminal: removed %d desires", n)
	}
	return int(n), nil
}

// CountByStatus returns desire counts per status.
func (s *Store) CountByStatus() (map[desire.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM desires GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[desire.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[desire.Status(status)] = n
	}
	return out, rows.Err()
}
