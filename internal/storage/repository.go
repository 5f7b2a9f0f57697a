package storage

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

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"stockhistory/internal/core"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository is the run journal. It doubles as the lock that keeps two
// accumulator runs from writing the snapshot files at once.
type SQLiteRepository struct {
	db         *sql.DB
	queries    *Queries
	staleAfter time.Duration
}

// NewSQLiteRepository opens the journal at dbPath. A run left in the running
// state longer than staleAfter is abandoned by the next BeginRun.
func NewSQLiteRepository(dbPath string, staleAfter time.Duration) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// One connection so the busy timeout below applies to every statement.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:         db,
		queries:    New(db),
		staleAfter: staleAfter,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// BeginRun takes the run lock and records a new running entry.
func (r *SQLiteRepository) BeginRun(ctx context.Context, startedAt time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)

	if r.staleAfter > 0 {
		abandoned, err := q.AbandonStaleRuns(ctx, AbandonStaleRunsParams{
			FinishedAt: formatTime(startedAt),
			Before:     formatTime(startedAt.Add(-r.staleAfter)),
		})
		if err != nil {
			return 0, fmt.Errorf("abandon stale runs: %w", err)
		}
		if abandoned > 0 {
			slog.WarnContext(ctx, "Abandoned stale snapshot runs",
				"count", abandoned,
				"stale_after", r.staleAfter)
		}
	}

	id, err := q.CreateRun(ctx, formatTime(startedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, core.ErrRunInProgress
		}
		return 0, fmt.Errorf("create run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return 0, core.ErrRunInProgress
		}
		return 0, fmt.Errorf("commit run: %w", err)
	}

	return id, nil
}

// FinishRun records the outcome of run id and releases the lock.
func (r *SQLiteRepository) FinishRun(ctx context.Context, id int64, rec core.RunRecord) error {
	if !rec.Status.Finished() {
		return fmt.Errorf("finish run %d: status %q is not terminal", id, rec.Status)
	}
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	params := FinishRunParams{
		Status:         string(rec.Status),
		FinishedAt:     formatTime(finishedAt),
		MonthsAppended: int64(rec.MonthsAppended),
		Error:          nullString(rec.Error),
		ID:             id,
	}
	if !rec.Window.From.IsZero() {
		params.WindowFrom = nullString(rec.Window.From.String())
		params.WindowTo = nullString(rec.Window.To.String())
	}
	if !rec.LastDate.IsZero() {
		params.LastDate = nullString(rec.LastDate.String())
	}

	n, err := r.queries.FinishRun(ctx, params)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %d: run is not running", id)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.queries.ListRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]core.RunRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, nil
}

// LastSuccessfulRun returns the newest run that ended in success or noop.
func (r *SQLiteRepository) LastSuccessfulRun(ctx context.Context) (core.RunRecord, bool, error) {
	row, err := r.queries.LastSuccessfulRun(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RunRecord{}, false, nil
	}
	if err != nil {
		return core.RunRecord{}, false, fmt.Errorf("last successful run: %w", err)
	}
	rec, err := toRecord(row)
	if err != nil {
		return core.RunRecord{}, false, err
	}
	return rec, true, nil
}

func toRecord(row EtlRun) (core.RunRecord, error) {
	rec := core.RunRecord{
		ID:             row.ID,
		Status:         core.RunStatus(row.Status),
		MonthsAppended: int(row.MonthsAppended),
		Error:          row.Error.String,
	}

	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, row.StartedAt); err != nil {
		return rec, fmt.Errorf("run %d: parse started_at: %w", row.ID, err)
	}
	if row.FinishedAt.Valid {
		if rec.FinishedAt, err = time.Parse(timeLayout, row.FinishedAt.String); err != nil {
			return rec, fmt.Errorf("run %d: parse finished_at: %w", row.ID, err)
		}
	}
	if row.WindowFrom.Valid && row.WindowTo.Valid {
		from, err := core.ParseDate(row.WindowFrom.String)
		if err != nil {
			return rec, fmt.Errorf("run %d: %w", row.ID, err)
		}
		to, err := core.ParseDate(row.WindowTo.String)
		if err != nil {
			return rec, fmt.Errorf("run %d: %w", row.ID, err)
		}
		rec.Window = core.Window{From: from, To: to}
	}
	if row.LastDate.Valid {
		if rec.LastDate, err = core.ParseDate(row.LastDate.String); err != nil {
			return rec, fmt.Errorf("run %d: %w", row.ID, err)
		}
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE"))
	}
	return false
}
