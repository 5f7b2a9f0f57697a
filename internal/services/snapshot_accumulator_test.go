package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockhistory/internal/amqp"
	"stockhistory/internal/core"
	"stockhistory/internal/csvstore"
)

// fakeSource serves fixed balances per month end and records every query.
type fakeSource struct {
	balances map[string][]core.Balance
	failOn   string
	queried  []string
}

func (f *fakeSource) BalancesAsOf(_ context.Context, asOf core.Date) ([]core.Balance, error) {
	f.queried = append(f.queried, asOf.String())
	if asOf.String() == f.failOn {
		return nil, errors.New("query timeout")
	}
	return f.balances[asOf.String()], nil
}

type fakeRecorder struct {
	begun    int
	finished []core.RunRecord
	beginErr error
}

func (f *fakeRecorder) BeginRun(context.Context, time.Time) (int64, error) {
	if f.beginErr != nil {
		return 0, f.beginErr
	}
	f.begun++
	return int64(f.begun), nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, _ int64, rec core.RunRecord) error {
	f.finished = append(f.finished, rec)
	return nil
}

type fakeNotifier struct {
	messages []*amqp.SnapshotUpdatedMessage
	err      error
}

func (f *fakeNotifier) PublishSnapshotUpdated(_ context.Context, msg *amqp.SnapshotUpdatedMessage) error {
	f.messages = append(f.messages, msg)
	return f.err
}

func bal(code string, quantity, value string) core.Balance {
	return core.Balance{
		Assortment: core.Assortment(code),
		Quantity:   decimal.RequireFromString(quantity),
		Value:      decimal.RequireFromString(value),
	}
}

func fixedClock(day string) func() time.Time {
	d := core.MustParseDate(day)
	return func() time.Time { return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC) }
}

type harness struct {
	dir      string
	store    *csvstore.FileStore
	source   *fakeSource
	recorder *fakeRecorder
	notifier *fakeNotifier
	acc      *SnapshotAccumulator
}

func newHarness(t *testing.T, today string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:      dir,
		store:    csvstore.NewFileStore(dir, "stock_value.csv", "stock_quantity.csv"),
		source:   &fakeSource{balances: map[string][]core.Balance{}},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
	}
	h.acc = NewSnapshotAccumulator(h.source, h.store, h.recorder, h.notifier, AccumulatorConfig{
		StartDate:    core.MustParseDate("2018-01-01"),
		Location:     time.UTC,
		ValueFile:    h.store.ValuePath(),
		QuantityFile: h.store.QuantityPath(),
	}, nil)
	h.acc.SetClock(fixedClock(today))
	return h
}

func (h *harness) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestRunFirstBackfill(t *testing.T) {
	h := newHarness(t, "2018-03-15")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "10", "35"), bal("300000", "2", "200")}
	h.source.balances["2018-02-28"] = []core.Balance{bal("200000", "6", "21"), bal("300000", "3", "300")}

	result, err := h.acc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := strings.Join(h.source.queried, ","); got != "2018-01-31,2018-02-28" {
		t.Errorf("queried %s, want exactly the two closed month ends", got)
	}
	if result.Status != core.RunSuccess || result.MonthsAppended != 2 {
		t.Errorf("result = %+v", result)
	}
	if result.LastDate != core.MustParseDate("2018-02-28") {
		t.Errorf("LastDate = %v, want 2018-02-28", result.LastDate)
	}

	wantValue := "date,200000,300000\n2018-01-31,35.00,200.00\n2018-02-28,21.00,300.00\n"
	if got := h.read(t, "stock_value.csv"); got != wantValue {
		t.Errorf("value file =\n%s\nwant\n%s", got, wantValue)
	}
	wantQuantity := "date,200000,300000\n2018-01-31,10.00,2.00\n2018-02-28,6.00,3.00\n"
	if got := h.read(t, "stock_quantity.csv"); got != wantQuantity {
		t.Errorf("quantity file =\n%s\nwant\n%s", got, wantQuantity)
	}

	if len(h.notifier.messages) != 1 || h.notifier.messages[0].LastDate != "2018-02-28" || h.notifier.messages[0].MonthsAppended != 2 {
		t.Errorf("notifications = %+v", h.notifier.messages)
	}
	if len(h.recorder.finished) != 1 || h.recorder.finished[0].Status != core.RunSuccess {
		t.Errorf("journal = %+v", h.recorder.finished)
	}
}

func TestRunValueIsCostTimesQuantity(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	// 10 units at a standard cost of 3.5
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "10", "35.004")}

	if _, err := h.acc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := h.read(t, "stock_value.csv"); got != "date,200000\n2018-01-31,35.00\n" {
		t.Errorf("value file = %q", got)
	}
}

func TestRunNoopLeavesFilesUntouched(t *testing.T) {
	h := newHarness(t, "2018-03-15")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "10", "35")}
	h.source.balances["2018-02-28"] = []core.Balance{bal("200000", "6", "21")}
	if _, err := h.acc.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	before, err := os.Stat(h.store.ValuePath())
	if err != nil {
		t.Fatal(err)
	}
	valueBefore := h.read(t, "stock_value.csv")
	quantityBefore := h.read(t, "stock_quantity.csv")
	h.source.queried = nil
	h.notifier.messages = nil

	// Same day, nothing new.
	result, err := h.acc.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if result.Status != core.RunNoop || result.MonthsAppended != 0 {
		t.Errorf("result = %+v, want noop", result)
	}
	if len(h.source.queried) != 0 {
		t.Errorf("noop run queried %v", h.source.queried)
	}
	if h.read(t, "stock_value.csv") != valueBefore || h.read(t, "stock_quantity.csv") != quantityBefore {
		t.Error("noop run changed the files")
	}
	after, err := os.Stat(h.store.ValuePath())
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("noop run rewrote the value file")
	}
	if len(h.notifier.messages) != 0 {
		t.Error("noop run should not notify")
	}
	if last := h.recorder.finished[len(h.recorder.finished)-1]; last.Status != core.RunNoop {
		t.Errorf("journal status = %s, want noop", last.Status)
	}
}

func TestRunAppendsSubsequentMonths(t *testing.T) {
	h := newHarness(t, "2018-02-28")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "10", "35")}
	h.source.balances["2018-02-28"] = []core.Balance{bal("200000", "6", "21")}
	if _, err := h.acc.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	h.source.queried = nil
	h.source.balances["2018-03-31"] = []core.Balance{bal("200000", "7", "24.5"), bal("200100", "1", "10")}
	h.source.balances["2018-04-30"] = []core.Balance{bal("200000", "8", "28"), bal("200100", "2", "20")}
	h.acc.SetClock(fixedClock("2018-05-02"))

	result, err := h.acc.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if got := strings.Join(h.source.queried, ","); got != "2018-03-31,2018-04-30" {
		t.Errorf("queried %s, want 2018-03-31,2018-04-30", got)
	}
	if result.Window.From != core.MustParseDate("2018-03-01") {
		t.Errorf("window starts %v, want the day after the last persisted date", result.Window.From)
	}

	want := "date,200000,200100\n" +
		"2018-01-31,35.00,0.00\n" +
		"2018-02-28,21.00,0.00\n" +
		"2018-03-31,24.50,10.00\n" +
		"2018-04-30,28.00,20.00\n"
	if got := h.read(t, "stock_value.csv"); got != want {
		t.Errorf("value file =\n%s\nwant\n%s", got, want)
	}
}

func TestRunQueryFailureWritesNothing(t *testing.T) {
	h := newHarness(t, "2018-03-15")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "10", "35")}
	h.source.failOn = "2018-02-28"

	_, err := h.acc.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if !strings.Contains(err.Error(), "2018-02-28") {
		t.Errorf("error %q should name the failing as-of date", err)
	}

	if exists, _ := h.store.Exists(); exists {
		t.Error("a failed first run must not create files")
	}
	entries, _ := os.ReadDir(h.dir)
	if len(entries) != 0 {
		t.Errorf("data directory holds %d entries after a failed run", len(entries))
	}
	if len(h.notifier.messages) != 0 {
		t.Error("failed run should not notify")
	}
	if rec := h.recorder.finished[0]; rec.Status != core.RunFailed || rec.Error == "" {
		t.Errorf("journal = %+v, want failed with error", rec)
	}
}

func TestRunQueryFailureKeepsExistingFiles(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "10", "35")}
	if _, err := h.acc.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	before := h.read(t, "stock_value.csv")

	h.source.balances["2018-02-28"] = []core.Balance{bal("200000", "6", "21")}
	h.source.failOn = "2018-03-31"
	h.acc.SetClock(fixedClock("2018-04-01"))

	if _, err := h.acc.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail")
	}
	if got := h.read(t, "stock_value.csv"); got != before {
		t.Errorf("value file changed after a failed run:\n%s", got)
	}
}

func TestRunMissingAssortmentIsZero(t *testing.T) {
	h := newHarness(t, "2018-02-28")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "1", "1"), bal("300000", "5", "500")}
	h.source.balances["2018-02-28"] = []core.Balance{bal("200000", "2", "2")}

	if _, err := h.acc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	value, _, err := h.store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := value.Rows[1].Cell("300000"); !got.IsZero() {
		t.Errorf("missing cell = %s, want 0", got)
	}
	if got := h.read(t, "stock_value.csv"); !strings.Contains(got, "2018-02-28,2.00,0.00") {
		t.Errorf("value file = %q", got)
	}
}

func TestRunTrimsAssortmentCodes(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	h.source.balances["2018-01-31"] = []core.Balance{bal("  200000 ", "1", "1")}

	if _, err := h.acc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := h.read(t, "stock_value.csv"); !strings.HasPrefix(got, "date,200000\n") {
		t.Errorf("value file = %q", got)
	}
}

func TestRunNotifyFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "1", "1")}
	h.notifier.err = errors.New("broker unreachable")

	result, err := h.acc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Notified {
		t.Error("Notified should be false when publishing fails")
	}
	if exists, _ := h.store.Exists(); !exists {
		t.Error("snapshot should be persisted despite the notify failure")
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	h.recorder.beginErr = core.ErrRunInProgress

	_, err := h.acc.Run(context.Background())
	if !IsRunInProgress(err) {
		t.Fatalf("Run() error = %v, want ErrRunInProgress", err)
	}
	if len(h.source.queried) != 0 {
		t.Error("a locked out run must not query")
	}
}

func TestRunIncompletePairFails(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	if err := os.WriteFile(h.store.ValuePath(), []byte("date,200000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := h.acc.Run(context.Background())
	if !errors.Is(err, csvstore.ErrIncompletePair) {
		t.Fatalf("Run() error = %v, want ErrIncompletePair", err)
	}
}

func TestRebuildReplacesPair(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	if err := os.WriteFile(h.store.ValuePath(), []byte("date,200000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "1", "3.5")}

	result, err := h.acc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if result.MonthsAppended != 1 {
		t.Errorf("MonthsAppended = %d, want 1", result.MonthsAppended)
	}
	if _, _, err := h.store.Load(); err != nil {
		t.Errorf("Load() after rebuild error = %v", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t, "2018-03-15")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.acc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if exists, _ := h.store.Exists(); exists {
		t.Error("cancelled run must not write")
	}
	if len(h.recorder.finished) != 1 || h.recorder.finished[0].Status != core.RunFailed {
		t.Errorf("journal = %+v", h.recorder.finished)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "2018-01-31")
	h.source.balances["2018-01-31"] = []core.Balance{bal("200000", "1", "1")}

	status, err := h.acc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.HasState || len(status.PendingMonths) != 1 {
		t.Errorf("status before first run = %+v", status)
	}

	if _, err := h.acc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	h.acc.SetClock(fixedClock("2018-04-10"))

	status, err = h.acc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.HasState || status.Rows != 1 || status.LastDate != core.MustParseDate("2018-01-31") {
		t.Errorf("status = %+v", status)
	}
	var pending []string
	for _, d := range status.PendingMonths {
		pending = append(pending, d.String())
	}
	if got := strings.Join(pending, ","); got != "2018-02-28,2018-03-31" {
		t.Errorf("pending = %s", got)
	}
}

func TestSourceFunc(t *testing.T) {
	var called bytes.Buffer
	src := SourceFunc(func(_ context.Context, asOf core.Date) ([]core.Balance, error) {
		called.WriteString(asOf.String())
		return nil, nil
	})
	if _, err := src.BalancesAsOf(context.Background(), core.MustParseDate("2018-01-31")); err != nil {
		t.Fatal(err)
	}
	if called.String() != "2018-01-31" {
		t.Errorf("SourceFunc called with %q", called.String())
	}
}

func TestRunTodayOverride(t *testing.T) {
	h := newHarness(t, "2024-06-15")
	h.acc.config.Today = core.MustParseDate("2018-02-28")

	result, err := h.acc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.Join(h.source.queried, ","); got != "2018-01-31,2018-02-28" {
		t.Errorf("queried %s, want the month ends up to the overridden day", got)
	}
	if result.Window.To != core.MustParseDate("2018-02-28") {
		t.Errorf("window = %s", result.Window)
	}
	if fin := h.recorder.finished[0].FinishedAt; fin.Year() != 2024 {
		t.Errorf("journal FinishedAt = %v, want the clock time", fin)
	}
}
