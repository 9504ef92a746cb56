// Package historystore persists scheduler resume history in SQLite so runs
// can be inspected after the process exits.
package historystore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Swind/go-fiber-runner/core"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Run is one scheduler run recorded in the store.
type Run struct {
	ID        string
	Scheduler string
	StartedAt time.Time
	Resumes   int64
	LastAt    time.Time // zero when the run recorded no resumes
}

// Resume is one stored resume record.
type Resume struct {
	RunID      string
	Seq        int64
	Tick       uint64
	Handle     int
	Task       string
	First      bool
	Outcome    string
	ExitReason string
	StartedAt  time.Time
	Duration   time.Duration
}

// Fixed-width UTC timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore stores resume history in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		scheduler  TEXT NOT NULL,
		started_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS resumes (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		tick        INTEGER NOT NULL,
		handle      INTEGER NOT NULL,
		task        TEXT NOT NULL,
		first       INTEGER NOT NULL DEFAULT 0,
		outcome     TEXT NOT NULL,
		exit_reason TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		duration_ns INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_resumes_run_id ON resumes(run_id)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection: SQLite has a single writer, and every ":memory:"
	// connection would otherwise be a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "historystore"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// BeginRun records a new run and returns its ID.
func (s *SQLiteStore) BeginRun(ctx context.Context, schedulerName string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", id)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scheduler, started_at) VALUES (?, ?, ?)`,
		id, schedulerName, startedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Append stores one resume record under runID.
func (s *SQLiteStore) Append(ctx context.Context, runID string, rec core.ResumeRecord) error {
	first := 0
	if rec.First {
		first = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resumes (run_id, tick, handle, task, first, outcome, exit_reason, started_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(rec.Tick), int(rec.Handle), rec.Name, first, rec.Outcome.String(), rec.ExitReason,
		rec.StartedAt.UTC().Format(timeLayout), rec.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert resume: %w", err)
	}
	return nil
}

// Observer returns a core.ResumeObserver that appends every record to runID.
// Write failures are logged, not returned; the scheduler keeps running.
func (s *SQLiteStore) Observer(runID string) core.ResumeObserver {
	return core.ResumeObserverFunc(func(rec core.ResumeRecord) {
		if err := s.Append(context.Background(), runID, rec); err != nil {
			s.logger.Warn("drop resume record", "run", runID, "task", rec.Name, "error", err)
		}
	})
}

// Recent returns up to limit resumes, newest first. An empty runID covers
// every run; limit <= 0 means no limit.
func (s *SQLiteStore) Recent(ctx context.Context, runID string, limit int) ([]Resume, error) {
	s.logger.Debug("sql", "op", "select", "table", "resumes", "run", runID)

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `SELECT seq, run_id, tick, handle, task, first, outcome, exit_reason, started_at, duration_ns
		FROM resumes`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resumes: %w", err)
	}
	defer rows.Close()

	var out []Resume
	for rows.Next() {
		var r Resume
		var tick int64
		var first int
		var startedAt string
		var durationNS int64
		if err := rows.Scan(&r.Seq, &r.RunID, &tick, &r.Handle, &r.Task, &first, &r.Outcome, &r.ExitReason, &startedAt, &durationNS); err != nil {
			return nil, fmt.Errorf("scan resume: %w", err)
		}
		r.Tick = uint64(tick)
		r.First = first != 0
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		r.Duration = time.Duration(durationNS)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists every run, newest first, with its resume count.
func (s *SQLiteStore) Runs(ctx context.Context) ([]Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.scheduler, r.started_at, COUNT(x.seq), COALESCE(MAX(x.started_at), '')
		 FROM runs r LEFT JOIN resumes x ON x.run_id = r.id
		 GROUP BY r.id
		 ORDER BY r.started_at DESC, r.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedAt, lastAt string
		if err := rows.Scan(&r.ID, &r.Scheduler, &startedAt, &r.Resumes, &lastAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if lastAt != "" {
			r.LastAt, _ = time.Parse(timeLayout, lastAt)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
