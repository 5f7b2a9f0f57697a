package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownAssortment = errors.New("unknown assortment")
	ErrNonContiguous     = errors.New("snapshot dates are not contiguous month ends")
)

// Balance is the as-of position of one assortment.
type Balance struct {
	Assortment Assortment
	Quantity   decimal.Decimal
	Value      decimal.Decimal
}

// Row is one month of a snapshot table. Cells keep the order in which codes
// were first set.
type Row struct {
	Date  Date
	cells map[Assortment]decimal.Decimal
	order []Assortment
}

func NewRow(d Date) Row {
	return Row{Date: d, cells: make(map[Assortment]decimal.Decimal)}
}

// Set stores v under code.
func (r *Row) Set(code Assortment, v decimal.Decimal) {
	if r.cells == nil {
		r.cells = make(map[Assortment]decimal.Decimal)
	}
	if _, ok := r.cells[code]; !ok {
		r.order = append(r.order, code)
	}
	r.cells[code] = v
}

// Cell returns the value for code, zero when the row has none.
func (r Row) Cell(code Assortment) decimal.Decimal {
	return r.cells[code]
}

// Has reports whether the row carries a cell for code.
func (r Row) Has(code Assortment) bool {
	_, ok := r.cells[code]
	return ok
}

// Codes returns the row's codes in insertion order.
func (r Row) Codes() []Assortment {
	return append([]Assortment(nil), r.order...)
}

// Reshape turns one as-of query result into a wide value row and a wide
// quantity row, rounded to two decimals.
func Reshape(asOf Date, balances []Balance) (value, quantity Row) {
	value, quantity = NewRow(asOf), NewRow(asOf)
	for _, b := range balances {
		code := NormalizeAssortment(string(b.Assortment))
		value.Set(code, b.Value.Round(2))
		quantity.Set(code, b.Quantity.Round(2))
	}
	return value, quantity
}

// Table is a date ordered sequence of rows with one column per assortment.
type Table struct {
	Columns []Assortment
	Rows    []Row
}

func (t Table) Len() int { return len(t.Rows) }

// LastDate returns the date of the most recent row.
func (t Table) LastDate() (Date, bool) {
	if len(t.Rows) == 0 {
		return Date{}, false
	}
	return t.Rows[len(t.Rows)-1].Date, true
}

func (t Table) Dates() []Date {
	dates := make([]Date, len(t.Rows))
	for i, r := range t.Rows {
		dates[i] = r.Date
	}
	return dates
}

// HasColumn reports whether code is one of the table columns.
func (t Table) HasColumn(code Assortment) bool {
	for _, c := range t.Columns {
		if c == code {
			return true
		}
	}
	return false
}

// Merge returns existing followed by rows. Columns of existing keep their
// order; codes seen for the first time are appended in order of appearance.
// Rows are neither reordered nor deduplicated.
func Merge(existing Table, rows ...Row) Table {
	out := Table{
		Columns: append([]Assortment(nil), existing.Columns...),
		Rows:    make([]Row, 0, len(existing.Rows)+len(rows)),
	}
	out.Rows = append(out.Rows, existing.Rows...)
	for _, r := range rows {
		for _, code := range r.order {
			if !out.HasColumn(code) {
				out.Columns = append(out.Columns, code)
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// Validate checks that every date is a month end exactly one month after
// the previous one.
func (t Table) Validate() error {
	for i, r := range t.Rows {
		if !r.Date.IsMonthEnd() {
			return fmt.Errorf("%w: row %d dated %s is not a month end", ErrNonContiguous, i, r.Date)
		}
		if i == 0 {
			continue
		}
		prev := t.Rows[i-1].Date
		if want := prev.NextMonthEnd(); r.Date != want {
			return fmt.Errorf("%w: %s follows %s, want %s", ErrNonContiguous, r.Date, prev, want)
		}
	}
	return nil
}

// Select keeps the requested columns in the requested order. A repeated
// code is kept once, at its first position.
func (t Table) Select(codes []Assortment) (Table, error) {
	codes = uniqueAssortments(codes)
	for _, c := range codes {
		if !t.HasColumn(c) {
			return Table{}, fmt.Errorf("%w: %s", ErrUnknownAssortment, c)
		}
	}
	out := Table{
		Columns: codes,
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		row := NewRow(r.Date)
		for _, c := range codes {
			row.Set(c, r.Cell(c))
		}
		out.Rows[i] = row
	}
	return out, nil
}

// Tail keeps the n most recent rows; n <= 0 keeps every row.
func (t Table) Tail(n int) Table {
	if n <= 0 || n >= len(t.Rows) {
		return t
	}
	return Table{Columns: t.Columns, Rows: t.Rows[len(t.Rows)-n:]}
}

// SameDates reports whether both tables share the same date axis.
func SameDates(a, b Table) bool {
	if len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Rows {
		if a.Rows[i].Date != b.Rows[i].Date {
			return false
		}
	}
	return true
}

// Equal reports whether both tables hold the same columns, in order, and
// the same cells on the same dates.
func Equal(a, b Table) bool {
	if !SameDates(a, b) || !slices.Equal(a.Columns, b.Columns) {
		return false
	}
	for i := range a.Rows {
		for _, c := range a.Columns {
			if !a.Rows[i].Cell(c).Equal(b.Rows[i].Cell(c)) {
				return false
			}
		}
	}
	return true
}
