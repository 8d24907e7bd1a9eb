package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DefaultDriver is the pure Go driver; "sqlite3" selects the cgo one.
const DefaultDriver = "sqlite"

// Store wraps SQLite-backed persistence for comparison runs and verdicts.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path with the default driver.
func New(path string) (*Store, error) {
	return Open(DefaultDriver, path)
}

// Open opens the database at path through driver and ensures schema.
func Open(driver, path string) (*Store, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	if driver != "sqlite" && driver != "sqlite3" {
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY from
	// concurrent workers.
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS comparison_runs (
            id TEXT PRIMARY KEY,
            source TEXT,
            status TEXT NOT NULL,
            started_at INTEGER NOT NULL,
            completed_at INTEGER,
            total INTEGER DEFAULT 0,
            failures INTEGER DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS verdicts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT,
            job_id TEXT NOT NULL,
            identity TEXT NOT NULL,
            verdict TEXT NOT NULL,
            max_color_distance REAL,
            diff_area INTEGER,
            attempts INTEGER,
            stable INTEGER DEFAULT 0,
            exhausted INTEGER DEFAULT 0,
            cancelled INTEGER DEFAULT 0,
            current_path TEXT,
            diff_path TEXT,
            error_message TEXT,
            details_json TEXT,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_identity ON verdicts(identity);`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_run_id ON verdicts(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord captures one batch of comparisons.
type RunRecord struct {
	ID          string
	Source      string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Total       int
	Failures    int
}

// VerdictRecord is one persisted comparison outcome. Verdict holds
// "no_baseline", "identical", "different" or "error".
type VerdictRecord struct {
	ID               int64
	RunID            string
	JobID            string
	Identity         string
	Verdict          string
	MaxColorDistance float64
	DiffArea         int
	Attempts         int
	Stable           bool
	Exhausted        bool
	Cancelled        bool
	CurrentPath      string
	DiffPath         string
	Error            string
	Details          map[string]any
	CreatedAt        time.Time
}

// FlakyRecord summarizes an identity whose page did not settle or whose
// verdict flipped between runs.
type FlakyRecord struct {
	Identity    string
	Runs        int
	Exhausted   int
	Differences int
	Identical   int
	LastSeen    time.Time
}

// RecordRunStart inserts a running batch.
func (s *Store) RecordRunStart(id, source string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO comparison_runs (id, source, status, started_at) VALUES (?, ?, 'running', ?);`,
		id, source, time.Now().UnixNano())
	return err
}

// RecordRunComplete finalizes a batch with its totals.
func (s *Store) RecordRunComplete(id string, total, failures int) error {
	if s == nil {
		return nil
	}
	status := "passed"
	if failures > 0 {
		status = "failed"
	}
	_, err := s.DB.Exec(`UPDATE comparison_runs SET status=?, completed_at=?, total=?, failures=? WHERE id=?;`,
		status, time.Now().UnixNano(), total, failures, id)
	return err
}

// Run fetches a batch by id.
func (s *Store) Run(id string) (RunRecord, error) {
	if s == nil {
		return RunRecord{}, errors.New("store not initialized")
	}
	var rec RunRecord
	var source sql.NullString
	var started int64
	var completed sql.NullInt64
	err := s.DB.QueryRow(`SELECT id, source, status, started_at, completed_at, total, failures FROM comparison_runs WHERE id=?;`, id).
		Scan(&rec.ID, &source, &rec.Status, &started, &completed, &rec.Total, &rec.Failures)
	if err != nil {
		return rec, err
	}
	rec.Source = source.String
	rec.StartedAt = time.Unix(0, started)
	if completed.Valid {
		t := time.Unix(0, completed.Int64)
		rec.CompletedAt = &t
	}
	return rec, nil
}

// RecordVerdict stores one comparison outcome.
func (s *Store) RecordVerdict(rec VerdictRecord) error {
	if s == nil {
		return nil
	}
	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.DB.Exec(`INSERT INTO verdicts (run_id, job_id, identity, verdict, max_color_distance, diff_area, attempts, stable, exhausted, cancelled, current_path, diff_path, error_message, details_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.RunID, rec.JobID, rec.Identity, rec.Verdict, rec.MaxColorDistance, rec.DiffArea, rec.Attempts,
		rec.Stable, rec.Exhausted, rec.Cancelled, rec.CurrentPath, rec.DiffPath, rec.Error, string(detailsJSON), created.UnixNano())
	return err
}

// RecentVerdicts returns the latest verdicts up to limit, newest first.
// A non-empty identity restricts the history to that identity.
func (s *Store) RecentVerdicts(identity string, limit int) ([]VerdictRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, run_id, job_id, identity, verdict, max_color_distance, diff_area, attempts, stable, exhausted, cancelled, current_path, diff_path, error_message, details_json, created_at FROM verdicts`
	args := []any{}
	if identity != "" {
		query += ` WHERE identity=?`
		args = append(args, identity)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []VerdictRecord
	for rows.Next() {
		var rec VerdictRecord
		var runID, currentPath, diffPath, errorMsg, detailsJSON sql.NullString
		var created int64
		if err := rows.Scan(&rec.ID, &runID, &rec.JobID, &rec.Identity, &rec.Verdict, &rec.MaxColorDistance, &rec.DiffArea, &rec.Attempts,
			&rec.Stable, &rec.Exhausted, &rec.Cancelled, &currentPath, &diffPath, &errorMsg, &detailsJSON, &created); err != nil {
			return nil, err
		}
		rec.RunID = runID.String
		rec.CurrentPath = currentPath.String
		rec.DiffPath = diffPath.String
		rec.Error = errorMsg.String
		rec.CreatedAt = time.Unix(0, created)
		if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &rec.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// FlakyIdentities lists identities that exhausted stabilization at least
// once or that were both identical and different across recorded runs.
func (s *Store) FlakyIdentities(limit int) ([]FlakyRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(`SELECT identity,
            COUNT(*),
            SUM(exhausted),
            SUM(CASE WHEN verdict='different' THEN 1 ELSE 0 END),
            SUM(CASE WHEN verdict='identical' THEN 1 ELSE 0 END),
            MAX(created_at)
        FROM verdicts
        WHERE verdict != 'error'
        GROUP BY identity
        HAVING SUM(exhausted) > 0
            OR (SUM(CASE WHEN verdict='different' THEN 1 ELSE 0 END) > 0 AND SUM(CASE WHEN verdict='identical' THEN 1 ELSE 0 END) > 0)
        ORDER BY SUM(exhausted) DESC, identity ASC
        LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []FlakyRecord
	for rows.Next() {
		var rec FlakyRecord
		var last int64
		if err := rows.Scan(&rec.Identity, &rec.Runs, &rec.Exhausted, &rec.Differences, &rec.Identical, &last); err != nil {
			return nil, err
		}
		rec.LastSeen = time.Unix(0, last)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
