package csvstore

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"stockhistory/internal/core"

	"github.com/shopspring/decimal"
)

// DateColumn is the header of the date axis.
const DateColumn = "date"

// Encode writes t as CSV: the date column first, then one column per
// assortment, numbers with two decimals and 0.00 for missing cells.
func Encode(w io.Writer, t core.Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, DateColumn)
	for _, c := range t.Columns {
		header = append(header, string(c))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for _, r := range t.Rows {
		record[0] = r.Date.String()
		for i, c := range t.Columns {
			record[i+1] = r.Cell(c).StringFixed(2)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", r.Date, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Decode reads a table written by Encode, or by any tool writing a date
// column plus numeric columns. Empty numeric cells read as zero.
func Decode(r io.Reader) (core.Table, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.Table{}, fmt.Errorf("missing header")
		}
		return core.Table{}, fmt.Errorf("read header: %w", err)
	}

	dateIdx := -1
	columns := make([]core.Assortment, 0, len(header))
	colIdx := make([]int, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if !utf8.ValidString(h) {
			return core.Table{}, fmt.Errorf("invalid header encoding")
		}
		if h == DateColumn {
			dateIdx = i
			continue
		}
		columns = append(columns, core.NormalizeAssortment(h))
		colIdx = append(colIdx, i)
	}
	if dateIdx < 0 {
		return core.Table{}, fmt.Errorf("missing required header column: %s", DateColumn)
	}

	t := core.Table{Columns: columns}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return core.Table{}, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(rec) != len(header) {
			return core.Table{}, fmt.Errorf("line %d: got %d fields, want %d", line, len(rec), len(header))
		}

		d, err := core.ParseDate(rec[dateIdx])
		if err != nil {
			return core.Table{}, fmt.Errorf("line %d: %w", line, err)
		}
		row := core.NewRow(d)
		for j, idx := range colIdx {
			cell := strings.TrimSpace(rec[idx])
			v := decimal.Zero
			if cell != "" {
				if v, err = decimal.NewFromString(cell); err != nil {
					return core.Table{}, fmt.Errorf("line %d column %s: invalid number %q", line, columns[j], cell)
				}
			}
			row.Set(columns[j], v)
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}
