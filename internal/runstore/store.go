// Package runstore is the SQLite-backed run log: agent run outcomes and
// per-part generation results, queryable from the CLI.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"forgecad/internal/agent"
	"forgecad/internal/codegen"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	state      TEXT NOT NULL,
	steps      INTEGER NOT NULL,
	artifacts  INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS part_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	part_key      TEXT NOT NULL,
	status        TEXT NOT NULL,
	attempts      INTEGER NOT NULL,
	artifact_path TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_part_results_run ON part_results(run_id);
`

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run log ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating run log schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveAgentRun(sessionID string, res agent.RunResult) error {
	_, err := s.db.Exec(
		`INSERT INTO agent_runs (session_id, state, steps, artifacts, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(res.State), res.Steps, len(res.ExportedArtifacts),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving agent run: %w", err)
	}
	return nil
}

func (s *Store) SavePipelineRun(runID string, sum codegen.Summary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range sum.Results {
		if _, err := tx.Exec(
			`INSERT INTO part_results (run_id, part_key, status, attempts, artifact_path, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, r.Key, string(r.Status), len(r.Attempts), r.ArtifactPath, now); err != nil {
			return fmt.Errorf("saving part result %q: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

type AgentRunRow struct {
	SessionID string
	State     string
	Steps     int
	Artifacts int
	CreatedAt string
}

func (s *Store) ListAgentRuns(limit int) ([]AgentRunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT session_id, state, steps, artifacts, created_at FROM agent_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentRunRow
	for rows.Next() {
		var r AgentRunRow
		if err := rows.Scan(&r.SessionID, &r.State, &r.Steps, &r.Artifacts, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type PartResultRow struct {
	RunID        string
	PartKey      string
	Status       string
	Attempts     int
	ArtifactPath string
	CreatedAt    string
}

func (s *Store) ListPartResults(runID string) ([]PartResultRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, part_key, status, attempts, COALESCE(artifact_path, ''), created_at
		 FROM part_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartResultRow
	for rows.Next() {
		var r PartResultRow
		if err := rows.Scan(&r.RunID, &r.PartKey, &r.Status, &r.Attempts, &r.ArtifactPath, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
