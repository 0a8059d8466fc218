// Package runstore provides SQLite-backed persistence for generation runs,
// their append-only artifact history and sandbox attempts.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/forgeworks/appforge/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run
func (s *Store) CreateRun(run *domain.GenerationRun) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, status, prompt, project_name, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Status),
		run.Prompt,
		run.ProjectName,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

// UpdateRunStatus updates a run's status, optional project name and error
func (s *Store) UpdateRunStatus(id string, status domain.RunStatus, projectName, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, project_name = COALESCE(NULLIF(?, ''), project_name),
			error = ?, updated_at = ?
		WHERE id = ?
	`, string(status), projectName, errMsg, time.Now(), id)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.GenerationRun, error) {
	row := s.db.QueryRow(`
		SELECT id, status, prompt, project_name, error, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row.Scan)
}

// ListRuns returns runs ordered newest first, up to limit (0 = all)
func (s *Store) ListRuns(limit int) ([]*domain.GenerationRun, error) {
	query := `SELECT id, status, prompt, project_name, error, created_at, updated_at FROM runs ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.GenerationRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AppendArtifact appends a stage-attempt artifact record. Records are
// never updated; a duplicate (run, stage, attempt, kind) is an error.
func (s *Store) AppendArtifact(rec *domain.ArtifactRecord) error {
	res, err := s.db.Exec(`
		INSERT INTO artifacts (run_id, stage, attempt, kind, inline, blob_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		string(rec.Stage),
		rec.Attempt,
		string(rec.Kind),
		rec.Inline,
		rec.BlobRef,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("appending artifact %s/%s attempt %d: %w", rec.RunID, rec.Stage, rec.Attempt, err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// ListArtifacts returns a run's artifact history in append order
func (s *Store) ListArtifacts(runID string) ([]*domain.ArtifactRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, stage, attempt, kind, inline, blob_ref, created_at
		FROM artifacts WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ArtifactRecord
	for rows.Next() {
		var rec domain.ArtifactRecord
		var stage, kind string
		var blobRef sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RunID, &stage, &rec.Attempt, &kind, &rec.Inline, &blobRef, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Stage = domain.Stage(stage)
		rec.Kind = domain.ArtifactKind(kind)
		if blobRef.Valid {
			rec.BlobRef = blobRef.String
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// StaleFailedBlobRefs returns the blob references still held by artifacts
// of failed runs last updated before cutoff.
func (s *Store) StaleFailedBlobRefs(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT a.blob_ref FROM artifacts a
		JOIN runs r ON r.id = a.run_id
		WHERE r.status = 'failed' AND r.updated_at < ? AND a.blob_ref != ''
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ClearBlobRef empties every artifact reference to a pruned blob. The
// artifact records themselves stay; only the payload pointer goes.
func (s *Store) ClearBlobRef(ref string) error {
	_, err := s.db.Exec(`UPDATE artifacts SET blob_ref = '' WHERE blob_ref = ?`, ref)
	return err
}

// SaveSandboxAttempt persists one sandbox attempt for a run
func (s *Store) SaveSandboxAttempt(runID string, a *domain.SandboxAttempt) error {
	_, err := s.db.Exec(`
		INSERT INTO sandbox_attempts (run_id, number, deployed, health_ok, tests_passed, tests_failed, tests_total, raw_output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, a.Number, a.Deployed, a.HealthOK, a.TestsPassed, a.TestsFailed, a.TestsTotal, a.RawOutput, time.Now())
	return err
}

// ListSandboxAttempts returns a run's sandbox attempts in order
func (s *Store) ListSandboxAttempts(runID string) ([]*domain.SandboxAttempt, error) {
	rows, err := s.db.Query(`
		SELECT number, deployed, health_ok, tests_passed, tests_failed, tests_total, raw_output
		FROM sandbox_attempts WHERE run_id = ? ORDER BY number
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*domain.SandboxAttempt
	for rows.Next() {
		var a domain.SandboxAttempt
		if err := rows.Scan(&a.Number, &a.Deployed, &a.HealthOK, &a.TestsPassed, &a.TestsFailed, &a.TestsTotal, &a.RawOutput); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

func scanRun(scan func(...interface{}) error) (*domain.GenerationRun, error) {
	var run domain.GenerationRun
	var status string
	var projectName, errMsg sql.NullString

	if err := scan(&run.ID, &status, &run.Prompt, &projectName, &errMsg, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if projectName.Valid {
		run.ProjectName = projectName.String
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return &run, nil
}
