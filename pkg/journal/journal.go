// Package journal keeps a sqlite history of harvest runs and per-item
// outcomes. It is informational only: artifact files remain the record of
// what has been harvested.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pageharvest/pkg/harvester"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER,
	manifest_path TEXT NOT NULL DEFAULT '',
	manifest_size INTEGER NOT NULL DEFAULT 0,
	planned       INTEGER NOT NULL DEFAULT 0,
	attempted     INTEGER NOT NULL DEFAULT 0,
	succeeded     INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	aborted       INTEGER NOT NULL DEFAULT 0,
	cancelled     INTEGER NOT NULL DEFAULT 0,
	remaining     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS items (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	item_id     TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	error_type  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_item ON items(item_id);
CREATE INDEX IF NOT EXISTS idx_items_run ON items(run_id);
`

// Run is one row of run history
type Run struct {
	RunID        string
	StartedAt    time.Time
	EndedAt      time.Time
	ManifestPath string
	ManifestSize int
	Planned      int
	Attempted    int
	Succeeded    int
	Failed       int
	Aborted      bool
	Cancelled    bool
	Remaining    int
}

// Finished reports whether the run recorded a summary
func (r Run) Finished() bool {
	return !r.EndedAt.IsZero()
}

// Journal records runs in a sqlite database
type Journal struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

var _ harvester.Journal = (*Journal)(nil)

// Open opens or creates the journal at path
func Open(path string, log logger.Logger) (*Journal, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	j := &Journal{db: db, path: path, logger: log.WithField("component", "journal")}
	logger.LogComponentStart(log, "journal", map[string]interface{}{"path": path})
	return j, nil
}

// Path returns the database location
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return err
	}
	logger.LogComponentStop(j.logger, "journal", "closed")
	return nil
}

// StartRun inserts a run row
func (j *Journal) StartRun(run harvester.RunInfo) error {
	_, err := j.db.Exec(
		`INSERT INTO runs (run_id, started_at, manifest_path, manifest_size, planned) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UnixMilli(), run.ManifestPath, run.ManifestSize, run.PlanSize,
	)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordItem appends one item outcome
func (j *Journal) RecordItem(runID string, o models.ItemOutcome) error {
	_, err := j.db.Exec(
		`INSERT INTO items (run_id, item_id, url, state, error_type, error, bytes, duration_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, o.ItemID, o.URL, string(o.State), o.ErrorType, o.Error, o.Bytes, o.Duration.Milliseconds(), o.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record item %s: %w", o.ItemID, err)
	}
	return nil
}

// FinishRun stores the summary counters
func (j *Journal) FinishRun(s harvester.Summary) error {
	res, err := j.db.Exec(
		`UPDATE runs SET ended_at = ?, planned = ?, attempted = ?, succeeded = ?, failed = ?,
		 aborted = ?, cancelled = ?, remaining = ? WHERE run_id = ?`,
		s.EndedAt.UnixMilli(), s.Planned, s.Attempted, s.Succeeded, s.Failed,
		boolInt(s.Aborted), boolInt(s.Cancelled), s.Remaining, s.RunID,
	)
	if err != nil {
		return fmt.Errorf("record run summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record run summary: run %s not started", s.RunID)
	}
	return nil
}

// Runs returns the most recent runs, newest first
func (j *Journal) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT run_id, started_at, ended_at, manifest_path, manifest_size, planned, attempted,
		        succeeded, failed, aborted, cancelled, remaining
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                  Run
			started            int64
			ended              sql.NullInt64
			aborted, cancelled int
		)
		if err := rows.Scan(&r.RunID, &started, &ended, &r.ManifestPath, &r.ManifestSize, &r.Planned,
			&r.Attempted, &r.Succeeded, &r.Failed, &aborted, &cancelled, &r.Remaining); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			r.EndedAt = time.UnixMilli(ended.Int64)
		}
		r.Aborted = aborted != 0
		r.Cancelled = cancelled != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FindRun resolves a run id or unique run id prefix
func (j *Journal) FindRun(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("empty run id")
	}
	rows, err := j.db.Query(`SELECT run_id FROM runs WHERE substr(run_id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan run: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no run matches %q", prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run id %q is ambiguous", prefix)
	}
}

// Items returns the recorded outcomes of a run in attempt order
func (j *Journal) Items(runID string) ([]models.ItemOutcome, error) {
	return j.queryItems(`WHERE run_id = ? ORDER BY id`, runID)
}

// ItemHistory returns every recorded attempt for an item, oldest first
func (j *Journal) ItemHistory(itemID string) ([]models.ItemOutcome, error) {
	return j.queryItems(`WHERE item_id = ? ORDER BY id`, itemID)
}

func (j *Journal) queryItems(where string, arg interface{}) ([]models.ItemOutcome, error) {
	rows, err := j.db.Query(
		`SELECT item_id, url, state, error_type, error, bytes, duration_ms, at FROM items `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []models.ItemOutcome
	for rows.Next() {
		var (
			o        models.ItemOutcome
			state    string
			duration int64
			at       int64
		)
		if err := rows.Scan(&o.ItemID, &o.URL, &state, &o.ErrorType, &o.Error, &o.Bytes, &duration, &at); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		o.State = models.ItemState(state)
		o.Duration = time.Duration(duration) * time.Millisecond
		o.At = time.UnixMilli(at)
		out = append(out, o)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
