package worker

import (
	"context"
	"fmt"

	"stockhistory/internal/amqp"
	"stockhistory/internal/core"
	applog "stockhistory/internal/log"
	"stockhistory/internal/sheets"
)

// SnapshotLoader provides the persisted value/quantity pair.
type SnapshotLoader interface {
	Load() (value, quantity core.Table, err error)
}

// MirrorWorker copies the snapshot pair into two spreadsheet sheets.
type MirrorWorker struct {
	store         SnapshotLoader
	sheets        sheets.TableWriter
	valueSheet    string
	quantitySheet string
	logger        *applog.Logger
}

func NewMirrorWorker(store SnapshotLoader, writer sheets.TableWriter, valueSheet, quantitySheet string, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.Default()
	}
	return &MirrorWorker{
		store:         store,
		sheets:        writer,
		valueSheet:    valueSheet,
		quantitySheet: quantitySheet,
		logger:        logger.WithComponent(applog.ComponentWorker),
	}
}

// Sync writes both tables unless the sheets already hold identical cells.
// It reports whether anything was written.
func (w *MirrorWorker) Sync(ctx context.Context) (bool, error) {
	value, quantity, err := w.store.Load()
	if err != nil {
		return false, fmt.Errorf("load snapshots: %w", err)
	}

	if w.upToDate(ctx, value, quantity) {
		last, _ := value.LastDate()
		w.logger.InfoContext(ctx, "Sheets already up to date", applog.FieldLastDate, last.String())
		return false, nil
	}

	if err := w.sheets.WriteTable(ctx, w.valueSheet, value); err != nil {
		return false, fmt.Errorf("mirror value table: %w", err)
	}
	if err := w.sheets.WriteTable(ctx, w.quantitySheet, quantity); err != nil {
		return false, fmt.Errorf("mirror quantity table: %w", err)
	}

	last, _ := value.LastDate()
	w.logger.InfoContext(ctx, "Mirrored snapshots",
		applog.FieldOperation, applog.OpMirror,
		applog.FieldRows, value.Len(),
		applog.FieldLastDate, last.String())
	return true, nil
}

// upToDate is false whenever the writer cannot read back or either read fails.
func (w *MirrorWorker) upToDate(ctx context.Context, value, quantity core.Table) bool {
	reader, ok := w.sheets.(sheets.TableReader)
	if !ok || value.Len() == 0 {
		return false
	}

	for _, pair := range []struct {
		sheet string
		want  core.Table
	}{
		{w.valueSheet, value},
		{w.quantitySheet, quantity},
	} {
		got, err := reader.ReadTable(ctx, pair.sheet)
		if err != nil {
			w.logger.WarnContext(ctx, "Failed to read sheet back",
				applog.FieldSheet, pair.sheet,
				applog.FieldError, err)
			return false
		}
		if !core.Equal(got, pair.want) {
			return false
		}
	}
	return true
}

// HandleSnapshotUpdated mirrors the pair after an accumulator run.
func (w *MirrorWorker) HandleSnapshotUpdated(ctx context.Context, msg *amqp.SnapshotUpdatedMessage) error {
	w.logger.InfoContext(ctx, "Processing snapshot update",
		applog.FieldLastDate, msg.LastDate,
		applog.FieldMonthsAppended, msg.MonthsAppended)

	value, _, err := w.store.Load()
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	announced, err := core.ParseDate(msg.LastDate)
	if err != nil {
		return fmt.Errorf("invalid last date %q: %w", msg.LastDate, err)
	}
	if last, ok := value.LastDate(); !ok || last.Before(announced) {
		return fmt.Errorf("persisted snapshots are behind the announced update to %s", announced)
	}

	if _, err := w.Sync(ctx); err != nil {
		return err
	}
	return nil
}
