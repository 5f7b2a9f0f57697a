package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockhistory/internal/amqp"
	"stockhistory/internal/core"
	applog "stockhistory/internal/log"
)

// BalanceSource answers the as-of aggregate for one month end.
type BalanceSource interface {
	BalancesAsOf(ctx context.Context, asOf core.Date) ([]core.Balance, error)
}

// SourceFunc adapts a function to BalanceSource.
type SourceFunc func(ctx context.Context, asOf core.Date) ([]core.Balance, error)

func (f SourceFunc) BalancesAsOf(ctx context.Context, asOf core.Date) ([]core.Balance, error) {
	return f(ctx, asOf)
}

// SnapshotStore is the persisted value/quantity pair.
type SnapshotStore interface {
	Exists() (bool, error)
	Load() (value, quantity core.Table, err error)
	Save(value, quantity core.Table) error
}

// RunRecorder journals runs and holds the single-run lock.
type RunRecorder interface {
	BeginRun(ctx context.Context, startedAt time.Time) (int64, error)
	FinishRun(ctx context.Context, id int64, rec core.RunRecord) error
}

// Notifier announces a snapshot that gained months.
type Notifier interface {
	PublishSnapshotUpdated(ctx context.Context, msg *amqp.SnapshotUpdatedMessage) error
}

// AccumulatorConfig holds the accumulator settings.
type AccumulatorConfig struct {
	// StartDate opens the window when there is no persisted state.
	StartDate core.Date

	// Location decides which calendar day "now" falls on (default: time.Local).
	Location *time.Location

	// Today, when set, replaces the current day in the window computation.
	// Journal timestamps keep using the clock.
	Today core.Date

	// ValueFile and QuantityFile are reported in update notifications.
	ValueFile    string
	QuantityFile string
}

// RunResult describes what a run did.
type RunResult struct {
	RunID          int64
	Status         core.RunStatus
	Window         core.Window
	MonthsAppended int
	LastDate       core.Date
	Rows           int
	Columns        []core.Assortment
	Notified       bool
}

// SnapshotStatus describes the persisted state and the next run's window.
type SnapshotStatus struct {
	HasState      bool
	LastDate      core.Date
	Rows          int
	Columns       []core.Assortment
	NextWindow    core.Window
	PendingMonths []core.Date
}

// SnapshotAccumulator keeps the snapshot pair up to date: it queries every
// month end after the last persisted one, appends the results and replaces
// the pair in one save.
type SnapshotAccumulator struct {
	source   BalanceSource
	store    SnapshotStore
	recorder RunRecorder
	notifier Notifier
	config   AccumulatorConfig
	logger   *applog.Logger
	now      func() time.Time
}

// NewSnapshotAccumulator wires an accumulator. recorder and notifier may be nil.
func NewSnapshotAccumulator(
	source BalanceSource,
	store SnapshotStore,
	recorder RunRecorder,
	notifier Notifier,
	config AccumulatorConfig,
	logger *applog.Logger,
) *SnapshotAccumulator {
	if config.Location == nil {
		config.Location = time.Local
	}
	if logger == nil {
		logger = applog.Default()
	}
	return &SnapshotAccumulator{
		source:   source,
		store:    store,
		recorder: recorder,
		notifier: notifier,
		config:   config,
		logger:   logger.WithComponent(applog.ComponentAccumulator),
		now:      time.Now,
	}
}

// SetClock replaces the clock used to decide today.
func (a *SnapshotAccumulator) SetClock(now func() time.Time) {
	a.now = now
}

// Run backfills every month end since the last persisted date.
func (a *SnapshotAccumulator) Run(ctx context.Context) (RunResult, error) {
	return a.run(ctx, false)
}

// Rebuild ignores the persisted pair and backfills from the start date.
func (a *SnapshotAccumulator) Rebuild(ctx context.Context) (RunResult, error) {
	return a.run(ctx, true)
}

func (a *SnapshotAccumulator) run(ctx context.Context, rebuild bool) (RunResult, error) {
	startedAt := a.now()

	var runID int64
	if a.recorder != nil {
		id, err := a.recorder.BeginRun(ctx, startedAt)
		if err != nil {
			return RunResult{}, fmt.Errorf("acquire run lock: %w", err)
		}
		runID = id
	}

	result, err := a.accumulate(ctx, a.today(), rebuild)
	result.RunID = runID

	if a.recorder != nil {
		a.journal(ctx, runID, result, err)
	}
	if err != nil {
		return result, err
	}

	a.logger.InfoContext(ctx, "Snapshot run finished",
		applog.FieldStatus, result.Status,
		applog.FieldWindow, result.Window.String(),
		applog.FieldMonthsAppended, result.MonthsAppended,
		applog.FieldLastDate, result.LastDate.String(),
		applog.FieldDuration, time.Since(startedAt).Milliseconds())

	return result, nil
}

func (a *SnapshotAccumulator) accumulate(ctx context.Context, today core.Date, rebuild bool) (RunResult, error) {
	value, quantity, hasState, err := a.loadState(rebuild)
	if err != nil {
		return RunResult{Status: core.RunFailed}, err
	}

	last, _ := value.LastDate()
	window := core.BackfillWindow(a.config.StartDate, last, hasState, today)
	result := RunResult{
		Status:   core.RunNoop,
		Window:   window,
		LastDate: last,
		Rows:     value.Len(),
		Columns:  value.Columns,
	}

	if window.Empty() {
		a.logger.InfoContext(ctx, "No new month end to add",
			applog.FieldWindow, window.String(),
			applog.FieldLastDate, last.String())
		return result, nil
	}

	var valueRows, quantityRows []core.Row
	for asOf := range window.MonthEnds() {
		if err := ctx.Err(); err != nil {
			result.Status = core.RunFailed
			return result, err
		}

		balances, err := a.source.BalancesAsOf(ctx, asOf)
		if err != nil {
			result.Status = core.RunFailed
			return result, fmt.Errorf("query balances as of %s: %w", asOf, err)
		}

		v, q := core.Reshape(asOf, balances)
		valueRows = append(valueRows, v)
		quantityRows = append(quantityRows, q)

		a.logger.DebugContext(ctx, "Queried month end",
			applog.FieldAsOf, asOf.String(),
			applog.FieldAssortments, len(balances))
	}

	mergedValue := core.Merge(value, valueRows...)
	mergedQuantity := core.Merge(quantity, quantityRows...)
	if err := mergedValue.Validate(); err != nil {
		result.Status = core.RunFailed
		return result, fmt.Errorf("value table: %w", err)
	}
	if err := mergedQuantity.Validate(); err != nil {
		result.Status = core.RunFailed
		return result, fmt.Errorf("quantity table: %w", err)
	}

	if err := a.store.Save(mergedValue, mergedQuantity); err != nil {
		result.Status = core.RunFailed
		return result, fmt.Errorf("persist snapshots: %w", err)
	}

	newLast, _ := mergedValue.LastDate()
	result.Status = core.RunSuccess
	result.MonthsAppended = len(valueRows)
	result.LastDate = newLast
	result.Rows = mergedValue.Len()
	result.Columns = mergedValue.Columns
	result.Notified = a.notify(ctx, result)

	return result, nil
}

func (a *SnapshotAccumulator) loadState(rebuild bool) (value, quantity core.Table, hasState bool, err error) {
	if rebuild {
		return core.Table{}, core.Table{}, false, nil
	}

	exists, err := a.store.Exists()
	if err != nil {
		return core.Table{}, core.Table{}, false, fmt.Errorf("check persisted snapshots: %w", err)
	}
	if !exists {
		return core.Table{}, core.Table{}, false, nil
	}

	value, quantity, err = a.store.Load()
	if err != nil {
		return core.Table{}, core.Table{}, false, fmt.Errorf("load persisted snapshots: %w", err)
	}
	return value, quantity, value.Len() > 0, nil
}

// notify reports whether the update was published. Failures are logged only;
// the snapshot is already persisted.
func (a *SnapshotAccumulator) notify(ctx context.Context, result RunResult) bool {
	if a.notifier == nil {
		return false
	}

	msg := amqp.NewSnapshotUpdatedMessage(result.LastDate, result.MonthsAppended, a.config.ValueFile, a.config.QuantityFile)
	if err := a.notifier.PublishSnapshotUpdated(ctx, msg); err != nil {
		a.logger.ErrorContext(ctx, "Failed to publish snapshot update",
			applog.FieldError, err,
			applog.FieldLastDate, result.LastDate.String())
		return false
	}
	return true
}

func (a *SnapshotAccumulator) journal(ctx context.Context, runID int64, result RunResult, runErr error) {
	rec := core.RunRecord{
		Status:         result.Status,
		FinishedAt:     a.now(),
		Window:         result.Window,
		MonthsAppended: result.MonthsAppended,
		LastDate:       result.LastDate,
	}
	if runErr != nil {
		rec.Status = core.RunFailed
		rec.MonthsAppended = 0
		rec.Error = runErr.Error()
	}

	// A cancelled run is still recorded.
	if err := a.recorder.FinishRun(context.WithoutCancel(ctx), runID, rec); err != nil {
		a.logger.ErrorContext(ctx, "Failed to record run outcome",
			applog.FieldRunID, runID,
			applog.FieldError, err)
	}
}

// Status reports the persisted state and what the next run would query.
func (a *SnapshotAccumulator) Status(ctx context.Context) (SnapshotStatus, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotStatus{}, err
	}

	value, _, hasState, err := a.loadState(false)
	if err != nil {
		return SnapshotStatus{}, err
	}

	last, _ := value.LastDate()
	window := core.BackfillWindow(a.config.StartDate, last, hasState, a.today())
	status := SnapshotStatus{
		HasState:   hasState,
		LastDate:   last,
		Rows:       value.Len(),
		Columns:    value.Columns,
		NextWindow: window,
	}
	for d := range window.MonthEnds() {
		status.PendingMonths = append(status.PendingMonths, d)
	}
	return status, nil
}

func (a *SnapshotAccumulator) today() core.Date {
	if !a.config.Today.IsZero() {
		return a.config.Today
	}
	return core.DateOf(a.now().In(a.config.Location))
}

// IsRunInProgress reports whether err came from a held run lock.
func IsRunInProgress(err error) bool {
	return errors.Is(err, core.ErrRunInProgress)
}
