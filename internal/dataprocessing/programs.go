package dataprocessing

import (
	"strings"

	"hudlink/internal/linkage"
	"hudlink/pkg/contracts/domain"
)

// HUD Picture of Subsidized Households columns
const (
	programLabelColumn = "program_label"
	programUnitsColumn = "total_units"
	programNameColumn  = "name"
	programCodeColumn  = "code"
	programStateColumn = "states"
)

// programTextColumns are identifiers; every other column is numeric
var programTextColumns = map[string]bool{
	"gsl": true, "states": true, "entities": true, "sumlevel": true,
	"program_label": true, "program": true, "sub_program": true,
	"name": true, "code": true, "year": true, "quarter": true,
	"cbsa": true, "place": true, "state": true,
}

// ParsePrograms reads county program rows for one state. Raw HUD labels are
// mapped to canonical ones. Numeric columns other than total_units land in
// Attributes; HUD's negative suppression codes are kept as published.
func ParsePrograms(t *Table, unit domain.Unit, stateFIPS string) ([]domain.ProgramRecord, error) {
	if err := t.Require(programLabelColumn, programUnitsColumn); err != nil {
		return nil, err
	}
	if !t.Has(programNameColumn) && !t.Has(programCodeColumn) {
		return nil, t.Require(programCodeColumn)
	}
	var numeric []string
	for _, c := range t.Columns() {
		if !programTextColumns[c] && c != programUnitsColumn {
			numeric = append(numeric, c)
		}
	}

	var out []domain.ProgramRecord
	err := t.Each(func(row Row) error {
		code := digitsOnly(row.Str(programCodeColumn))
		if len(code) >= 5 {
			code = code[:5]
		} else {
			code = ""
		}
		if !programInState(row, code, unit.State, stateFIPS) {
			return nil
		}

		units, ok, err := row.Float(programUnitsColumn)
		if err != nil {
			return err
		}
		if !ok {
			return row.errorf("missing %s", programUnitsColumn)
		}
		rec := domain.ProgramRecord{
			CountyID:     code,
			CountyName:   row.Str(programNameColumn),
			Year:         unit.Year,
			ProgramLabel: linkage.CanonicalLabel(row.Str(programLabelColumn)),
			TotalUnits:   units,
		}
		if y, ok, err := row.Int("year"); err == nil && ok {
			rec.Year = y
		}
		for _, col := range numeric {
			v, ok, err := row.Float(col)
			if err != nil || !ok {
				continue
			}
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]float64, len(numeric))
			}
			rec.Attributes[col] = v
		}
		if err := validate.Struct(rec); err != nil {
			return row.errorf("invalid program row: %v", err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// programInState keeps rows whose county code, or "CA California" style
// states cell, belongs to the unit's state. Rows carrying neither are kept.
func programInState(row Row, code, abbrev, fips string) bool {
	if code != "" && fips != "" {
		return code[:2] == fips
	}
	if st := strings.Fields(row.Str(programStateColumn)); len(st) > 0 {
		return strings.EqualFold(st[0], abbrev)
	}
	return true
}
