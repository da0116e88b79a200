// Package history persists finalized deliberation outcomes in SQLite so
// past decisions stay queryable after the process exits.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliberations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    proposal_id     TEXT NOT NULL,
    proposal_title  TEXT NOT NULL,
    decision        TEXT NOT NULL,
    converged       INTEGER NOT NULL,
    forced          INTEGER NOT NULL,
    rounds          INTEGER NOT NULL,
    avg_confidence  REAL NOT NULL,
    cla_verdict     TEXT NOT NULL DEFAULT '',
    finalized_at    TEXT NOT NULL
);
`

const schemaIndex = `
CREATE INDEX IF NOT EXISTS idx_deliberations_proposal
ON deliberations(proposal_id);
`

// Record is one finalized deliberation row.
type Record struct {
	ProposalID    string
	ProposalTitle string
	Decision      string
	Converged     bool
	Forced        bool
	Rounds        int
	AvgConfidence float64
	CLAVerdict    string
	FinalizedAt   time.Time
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	if _, err := db.Exec(schemaIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create index: %w", err)
	}
	return &Store{db: db}, nil
}

// DefaultPath returns the default history database location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "conclave-history.db")
	}
	return filepath.Join(home, ".conclave", "history.db")
}

// Record persists one finalized deliberation.
func (s *Store) Record(rec Record) error {
	converged, forced := 0, 0
	if rec.Converged {
		converged = 1
	}
	if rec.Forced {
		forced = 1
	}
	if rec.FinalizedAt.IsZero() {
		rec.FinalizedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO deliberations
		(proposal_id, proposal_title, decision, converged, forced, rounds,
		 avg_confidence, cla_verdict, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ProposalID,
		rec.ProposalTitle,
		rec.Decision,
		converged,
		forced,
		rec.Rounds,
		rec.AvgConfidence,
		rec.CLAVerdict,
		rec.FinalizedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns the most recently finalized deliberations, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT proposal_id, proposal_title, decision, converged, forced,
		       rounds, avg_confidence, cla_verdict, finalized_at
		FROM deliberations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var converged, forced int
		var finalized string
		if err := rows.Scan(&rec.ProposalID, &rec.ProposalTitle, &rec.Decision,
			&converged, &forced, &rec.Rounds, &rec.AvgConfidence,
			&rec.CLAVerdict, &finalized); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		rec.Converged = converged == 1
		rec.Forced = forced == 1
		if t, err := time.Parse(time.RFC3339, finalized); err == nil {
			rec.FinalizedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
