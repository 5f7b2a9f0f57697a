package core

import (
	"fmt"
	"iter"
	"strings"
	"time"
)

// DateFormat is the layout used to write dates.
const DateFormat = "2006-01-02"

// readLayouts are tried in order when parsing; only the calendar day is kept.
var readLayouts = []string{
	DateFormat,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-1-2",
}

// Date is a calendar day without time of day or location.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date, so NewDate(2018, 3, 0) is 2018-02-28.
func NewDate(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.Time().Date()
	return d
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date { return NewDate(t.Date()) }

// ParseDate parses a date, tolerating a trailing time of day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range readLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Date()), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q: want format %s", s, DateFormat)
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

func (d Date) Year() int         { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int          { return d.d }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

func (d Date) String() string { return d.Time().Format(DateFormat) }

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Before(x Date) bool { return d.Time().Before(x.Time()) }
func (d Date) After(x Date) bool  { return d.Time().After(x.Time()) }

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date { return NewDate(d.y, d.m, d.d+n) }

// EndOfMonth returns the last day of d's month.
func (d Date) EndOfMonth() Date { return NewDate(d.y, d.m+1, 0) }

// IsMonthEnd reports whether d is the last day of its month.
func (d Date) IsMonthEnd() bool { return d == d.EndOfMonth() }

// NextMonthEnd returns the last day of the month following d's month.
func (d Date) NextMonthEnd() Date { return NewDate(d.y, d.m+2, 0) }

// MonthEnds yields every month end e with from <= e <= to in increasing
// order. The month containing to is included only when to is its last day.
func MonthEnds(from, to Date) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for e := from.EndOfMonth(); !e.After(to); e = e.NextMonthEnd() {
			if !yield(e) {
				return
			}
		}
	}
}

// Window is the inclusive range of days a run has to cover.
type Window struct {
	From, To Date
}

// BackfillWindow returns the window of the next run. Without persisted state
// it opens at start; otherwise on the day after the last persisted date.
func BackfillWindow(start Date, last Date, hasState bool, today Date) Window {
	from := start
	if hasState {
		from = last.AddDays(1)
	}
	return Window{From: from, To: today}
}

// MonthEnds enumerates the month ends inside the window.
func (w Window) MonthEnds() iter.Seq[Date] { return MonthEnds(w.From, w.To) }

// Empty reports whether the window holds no month end.
func (w Window) Empty() bool { return w.From.EndOfMonth().After(w.To) }

func (w Window) String() string { return w.From.String() + ".." + w.To.String() }
