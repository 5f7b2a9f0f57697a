package google

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockhistory/internal/core"
)

const dateHeader = "date"

// tableValues converts a table into the values matrix sent to the Sheets
// API. Dates are written as text for USER_ENTERED to parse; numbers as floats.
func tableValues(t core.Table) [][]interface{} {
	values := make([][]interface{}, 0, t.Len()+1)

	header := make([]interface{}, 0, len(t.Columns)+1)
	header = append(header, dateHeader)
	for _, c := range t.Columns {
		header = append(header, string(c))
	}
	values = append(values, header)

	for _, row := range t.Rows {
		line := make([]interface{}, 0, len(t.Columns)+1)
		line = append(line, row.Date.String())
		for _, c := range t.Columns {
			line = append(line, row.Cell(c).InexactFloat64())
		}
		values = append(values, line)
	}
	return values
}

// parseTable converts a values matrix (as returned by the Sheets API) back
// into a table. Empty cells read as zero.
func parseTable(values [][]interface{}) (core.Table, error) {
	if len(values) == 0 {
		return core.Table{}, nil
	}

	headers := toStrings(values[0])
	if indexOf(headers, dateHeader) != 0 {
		return core.Table{}, fmt.Errorf("first column must be %q, got %v", dateHeader, headers)
	}

	var t core.Table
	for _, h := range headers[1:] {
		t.Columns = append(t.Columns, core.NormalizeAssortment(h))
	}

	for i, raw := range values[1:] {
		cells := toStrings(raw)
		if len(cells) == 0 || cells[0] == "" {
			continue
		}
		d, err := cellDate(raw[0])
		if err != nil {
			return core.Table{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		row := core.NewRow(d)
		for j, code := range t.Columns {
			v := decimal.Zero
			if j+1 < len(raw) {
				if v, err = cellDecimal(raw[j+1]); err != nil {
					return core.Table{}, fmt.Errorf("row %d column %s: %w", i+2, code, err)
				}
			}
			row.Set(code, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// cellDate accepts a serial day number, as read with SERIAL_NUMBER
// rendering, or an ISO date string.
func cellDate(v interface{}) (core.Date, error) {
	if x, ok := v.(float64); ok {
		if x != math.Trunc(x) {
			return core.Date{}, fmt.Errorf("date serial %v has a time part", x)
		}
		return core.NewDate(1899, time.December, 30+int(x)), nil
	}
	return core.ParseDate(strings.TrimSpace(fmt.Sprint(v)))
}

func cellDecimal(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		s := strings.TrimSpace(fmt.Sprint(x))
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	}
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}
