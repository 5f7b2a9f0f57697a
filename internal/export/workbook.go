// Package export renders the snapshot pair as an Excel workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"stockhistory/internal/core"
)

// Sheet names of the exported workbook.
const (
	ValueSheet    = "Value"
	QuantitySheet = "Quantity"
)

const monthFormat = "mmm yyyy"

// Workbook builds a workbook with one sheet per table. Each sheet starts with
// a "Month" header followed by the assortment codes.
func Workbook(value, quantity core.Table) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", ValueSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	if _, err := f.NewSheet(QuantitySheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create sheet %s: %w", QuantitySheet, err)
	}

	monthStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr(monthFormat)})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create month style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for _, s := range []struct {
		name  string
		table core.Table
	}{
		{ValueSheet, value},
		{QuantitySheet, quantity},
	} {
		if err := writeSheet(f, s.name, s.table, monthStyle, headerStyle); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write sheet %s: %w", s.name, err)
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

// Write renders the workbook to w.
func Write(w io.Writer, value, quantity core.Table) error {
	f, err := Workbook(value, quantity)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile renders the workbook to path.
func WriteFile(path string, value, quantity core.Table) error {
	f, err := Workbook(value, quantity)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t core.Table, monthStyle, headerStyle int) error {
	header := make([]any, 0, len(t.Columns)+1)
	header = append(header, "Month")
	for _, c := range t.Columns {
		header = append(header, string(c))
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, r := range t.Rows {
		cells := make([]any, 0, len(t.Columns)+1)
		cells = append(cells, r.Date.Time())
		for _, c := range t.Columns {
			cells = append(cells, r.Cell(c).InexactFloat64())
		}
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			return err
		}
	}

	if len(t.Rows) > 0 {
		end, err := excelize.CoordinatesToCellName(1, len(t.Rows)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A2", end, monthStyle); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "A", 12)
}

func ptr[T any](v T) *T { return &v }
