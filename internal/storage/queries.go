package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type EtlRun struct {
	ID             int64
	StartedAt      string
	FinishedAt     sql.NullString
	Status         string
	WindowFrom     sql.NullString
	WindowTo       sql.NullString
	MonthsAppended int64
	LastDate       sql.NullString
	Error          sql.NullString
}

const abandonStaleRuns = `
UPDATE etl_runs
SET status = 'abandoned', finished_at = ?, error = 'abandoned after exceeding the stale timeout'
WHERE status = 'running' AND started_at < ?
`

type AbandonStaleRunsParams struct {
	FinishedAt string
	Before     string
}

func (q *Queries) AbandonStaleRuns(ctx context.Context, arg AbandonStaleRunsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, abandonStaleRuns, arg.FinishedAt, arg.Before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createRun = `
INSERT INTO etl_runs (started_at, status)
VALUES (?, 'running')
RETURNING id
`

func (q *Queries) CreateRun(ctx context.Context, startedAt string) (int64, error) {
	row := q.db.QueryRowContext(ctx, createRun, startedAt)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const finishRun = `
UPDATE etl_runs
SET status = ?, finished_at = ?, window_from = ?, window_to = ?,
    months_appended = ?, last_date = ?, error = ?
WHERE id = ? AND status = 'running'
`

type FinishRunParams struct {
	Status         string
	FinishedAt     string
	WindowFrom     sql.NullString
	WindowTo       sql.NullString
	MonthsAppended int64
	LastDate       sql.NullString
	Error          sql.NullString
	ID             int64
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, finishRun,
		arg.Status,
		arg.FinishedAt,
		arg.WindowFrom,
		arg.WindowTo,
		arg.MonthsAppended,
		arg.LastDate,
		arg.Error,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listRuns = `
SELECT id, started_at, finished_at, status, window_from, window_to, months_appended, last_date, error
FROM etl_runs
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) ListRuns(ctx context.Context, limit int64) ([]EtlRun, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EtlRun
	for rows.Next() {
		var i EtlRun
		if err := rows.Scan(
			&i.ID,
			&i.StartedAt,
			&i.FinishedAt,
			&i.Status,
			&i.WindowFrom,
			&i.WindowTo,
			&i.MonthsAppended,
			&i.LastDate,
			&i.Error,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const lastSuccessfulRun = `
SELECT id, started_at, finished_at, status, window_from, window_to, months_appended, last_date, error
FROM etl_runs
WHERE status IN ('success', 'noop')
ORDER BY id DESC
LIMIT 1
`

func (q *Queries) LastSuccessfulRun(ctx context.Context) (EtlRun, error) {
	row := q.db.QueryRowContext(ctx, lastSuccessfulRun)
	var i EtlRun
	err := row.Scan(
		&i.ID,
		&i.StartedAt,
		&i.FinishedAt,
		&i.Status,
		&i.WindowFrom,
		&i.WindowTo,
		&i.MonthsAppended,
		&i.LastDate,
		&i.Error,
	)
	return i, err
}
