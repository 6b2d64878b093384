package dataprocessing

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "hudlink/internal/errors"
)

// headerScanRows bounds how far into a worksheet the header row is searched for.
const headerScanRows = 20

// Table is a header-indexed view over tabular rows. Column lookups are case
// insensitive and accept aliases.
type Table struct {
	Name    string
	columns map[string]int
	Rows    [][]string
	// lines holds the 1-based source line of each row, for messages
	lines []int
}

// ReadCSV reads a whole CSV stream with its header
func ReadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var header []string
	var rows [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewInputError(fmt.Sprintf("failed to read %s", name), err)
		}
		line, _ := reader.FieldPos(0)
		if header == nil {
			header = record
			header[0] = strings.TrimPrefix(header[0], "\ufeff")
			continue
		}
		rows = append(rows, record)
		lines = append(lines, line)
	}
	if header == nil {
		return nil, apperrors.NewInputError(fmt.Sprintf("%s is empty", name), nil)
	}
	return newTable(name, header, rows, lines), nil
}

// ReadSheet reads the first worksheet whose header row carries every column in
// required. The header may sit below title rows, as in HUD's published workbooks.
func ReadSheet(name string, f *excelize.File, required ...string) (*Table, error) {
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for i := 0; i < len(rows) && i < headerScanRows; i++ {
			lines := make([]int, len(rows)-i-1)
			for j := range lines {
				lines[j] = i + 2 + j
			}
			t := newTable(name, rows[i], rows[i+1:], lines)
			if t.Has(required...) {
				t.Name = fmt.Sprintf("%s[%s]", name, sheet)
				return t, nil
			}
		}
	}
	return nil, apperrors.NewInputError(fmt.Sprintf("%s: no worksheet has columns %s", name, strings.Join(required, ", ")), nil)
}

func newTable(name string, header []string, rows [][]string, lines []int) *Table {
	t := &Table{Name: name, columns: make(map[string]int, len(header))}
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := t.columns[key]; !dup && key != "" {
			t.columns[key] = i
		}
	}
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
		t.lines = append(t.lines, lines[i])
	}
	return t
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Has reports whether every column is present
func (t *Table) Has(columns ...string) bool {
	for _, c := range columns {
		if _, ok := t.columns[normalizeHeader(c)]; !ok {
			return false
		}
	}
	return true
}

// Require returns an input error naming the missing columns
func (t *Table) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewInputError(fmt.Sprintf("%s is missing required columns: %s", t.Name, strings.Join(missing, ", ")), nil)
	}
	return nil
}

// Index returns the position of the first alias present, or -1
func (t *Table) Index(aliases ...string) int {
	for _, a := range aliases {
		if i, ok := t.columns[normalizeHeader(a)]; ok {
			return i
		}
	}
	return -1
}

// Columns returns the header names in source order
func (t *Table) Columns() []string {
	out := make([]string, 0, len(t.columns))
	byIndex := make(map[int]string, len(t.columns))
	max := -1
	for name, i := range t.columns {
		byIndex[i] = name
		if i > max {
			max = i
		}
	}
	for i := 0; i <= max; i++ {
		if name, ok := byIndex[i]; ok {
			out = append(out, name)
		}
	}
	return out
}

// FirstLine returns the source line of the first data row, or 0
func (t *Table) FirstLine() int {
	if len(t.lines) == 0 {
		return 0
	}
	return t.lines[0]
}

// Row is one data row bound to its table
type Row struct {
	t      *Table
	cells  []string
	number int
}

// Each calls fn for every data row, stopping at the first error
func (t *Table) Each(fn func(Row) error) error {
	for i, cells := range t.Rows {
		if err := fn(Row{t: t, cells: cells, number: t.lines[i]}); err != nil {
			return err
		}
	}
	return nil
}

// Number returns the 1-based source line of the row
func (r Row) Number() int { return r.number }

// Str returns the trimmed cell of the first alias present
func (r Row) Str(aliases ...string) string {
	i := r.t.Index(aliases...)
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

// Float parses a numeric cell; thousands separators are accepted. ok is false
// for a blank or absent cell.
func (r Row) Float(aliases ...string) (v float64, ok bool, err error) {
	s := strings.ReplaceAll(r.Str(aliases...), ",", "")
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, r.errorf("column %s: %q is not a number", aliases[0], s)
	}
	return v, true, nil
}

// Int parses an integer cell; "3.0" reads as 3
func (r Row) Int(aliases ...string) (int, bool, error) {
	v, ok, err := r.Float(aliases...)
	if err != nil || !ok {
		return 0, ok, err
	}
	if v != float64(int(v)) {
		return 0, false, r.errorf("column %s: %v is not an integer", aliases[0], v)
	}
	return int(v), true, nil
}

func (r Row) errorf(format string, args ...interface{}) error {
	return apperrors.NewInputError(fmt.Sprintf("%s line %d: %s", r.t.Name, r.number, fmt.Sprintf(format, args...)), nil)
}
