// Package journal keeps a durable log of every mirrored change in SQLite,
// so past deployments can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/hotdeploy/internal/mirror"
)

const (
	dirPerm      = 0o700
	defaultLimit = 50
)

const (
	sqlInsertRun = `INSERT INTO runs (id, started_at, hostname, instances) VALUES (?, ?, ?, ?)`
	sqlEndRun    = `UPDATE runs SET ended_at = ? WHERE id = ?`

	sqlInsertOutcome = `INSERT INTO outcomes
		(run_id, instance, kind, path, target, result, attempts, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentOutcomes = `SELECT id, run_id, instance, kind, path, target, result, attempts, error, recorded_at
		FROM outcomes`
)

// Entry is one journaled outcome.
type Entry struct {
	ID       int64
	RunID    string
	Instance string
	Kind     string
	Path     string
	Target   string
	Result   string
	Attempts int
	Error    string
	At       time.Time
}

// Query narrows Recent. Zero values mean "no restriction"; Limit defaults
// to 50.
type Query struct {
	Limit      int
	Instance   string
	FailedOnly bool
}

// Journal appends outcomes to a SQLite database. It implements
// mirror.Recorder and is safe for concurrent use: the pool holds a single
// connection, so writes are serialized.
type Journal struct {
	db      *sql.DB
	runID   string
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the journal database at dbPath and runs
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerm); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", dbPath))

	return &Journal{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// BeginRun starts a new run and returns its id. Outcomes recorded
// afterwards belong to it.
func (j *Journal) BeginRun(ctx context.Context, instances int) (string, error) {
	id := uuid.NewString()
	host, _ := os.Hostname()

	if _, err := j.db.ExecContext(ctx, sqlInsertRun, id, j.nowFunc().UnixNano(), host, instances); err != nil {
		return "", fmt.Errorf("journal: starting run: %w", err)
	}

	j.runID = id
	j.logger.Debug("journal run started", slog.String("run_id", id))

	return id, nil
}

// RunID returns the id of the current run, or "" before BeginRun.
func (j *Journal) RunID() string {
	return j.runID
}

// Record implements mirror.Recorder. Write failures are logged and
// swallowed: journaling never blocks mirroring.
func (j *Journal) Record(ctx context.Context, o mirror.Outcome) {
	if j.runID == "" {
		return
	}

	// Shutdown cancels ctx while the last outcomes are still being written.
	ctx = context.WithoutCancel(ctx)

	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}

	at := o.At
	if at.IsZero() {
		at = j.nowFunc()
	}

	_, err := j.db.ExecContext(ctx, sqlInsertOutcome,
		j.runID, o.Instance, o.Kind.String(), o.Path, o.Target, o.Result.String(),
		o.Attempts, errText, at.UnixNano(),
	)
	if err != nil {
		j.logger.Warn("journal: recording outcome failed",
			slog.String("path", o.Path), slog.String("error", err.Error()))
	}
}

// Recent returns the newest entries first.
func (j *Journal) Recent(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)

	if q.Instance != "" {
		where = append(where, "instance = ?")
		args = append(args, q.Instance)
	}

	if q.FailedOnly {
		where = append(where, "result = ?")
		args = append(args, mirror.ResultFailed.String())
	}

	query := sqlRecentOutcomes
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: querying outcomes: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e  Entry
			at int64
		)

		if err := rows.Scan(&e.ID, &e.RunID, &e.Instance, &e.Kind, &e.Path, &e.Target,
			&e.Result, &e.Attempts, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("journal: scanning outcome: %w", err)
		}

		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating outcomes: %w", err)
	}

	return entries, nil
}

// Close ends the current run and closes the database.
func (j *Journal) Close() error {
	var errs []error

	if j.runID != "" {
		if _, err := j.db.Exec(sqlEndRun, j.nowFunc().UnixNano(), j.runID); err != nil {
			errs = append(errs, fmt.Errorf("journal: ending run: %w", err))
		}
	}

	if err := j.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("journal: closing database: %w", err))
	}

	return errors.Join(errs...)
}
