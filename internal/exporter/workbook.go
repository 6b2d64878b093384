package exporter

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"hudlink/internal/linkage"
)

// maxSheetName is Excel's limit on worksheet names
const maxSheetName = 31

// Sheet is one named worksheet of the summary workbook
type Sheet struct {
	Name  string
	Table Table
}

// SummarySheetName returns the worksheet name of a program summary
func SummarySheetName(label string) string {
	name := linkage.SafeLabel(label)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

// WriteWorkbook writes the sheets, in order, to dir/name. Numeric cells are
// written as numbers.
func (w *CSVWriter) WriteWorkbook(name string, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(first, sheet.Name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet); err != nil {
			return err
		}
	}

	path := filepath.Join(w.dir, name)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	sw, err := f.NewStreamWriter(sheet.Name)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", sheet.Name, err)
	}
	header := make([]interface{}, len(sheet.Table.Headers))
	for i, h := range sheet.Table.Headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for r, row := range sheet.Table.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r+2, sheet.Name, err)
		}
	}
	return sw.Flush()
}

// cellValue keeps identifiers with leading zeros, such as FIPS codes, as text
func cellValue(v string) interface{} {
	if v == "" || (len(v) > 1 && v[0] == '0' && v[1] != '.') {
		return v
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
