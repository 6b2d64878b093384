package dataprocessing

import (
	"strconv"
	"strings"

	"hudlink/pkg/contracts/domain"
)

// Survey extract columns. Names follow the IPUMS USA codebook.
const (
	colYear      = "YEAR"
	colMultYear  = "MULTYEAR"
	colSerial    = "SERIAL"
	colCBSerial  = "CBSERIAL"
	colPerNum    = "PERNUM"
	colStateFIP  = "STATEFIP"
	colCountyFIP = "COUNTYFIP"
	colPUMA      = "PUMA"
	colHHWT      = "HHWT"
	colPERWT     = "PERWT"
	colNFams     = "NFAMS"
	colFamUnit   = "FAMUNIT"
	colFamSize   = "FAMSIZE"
	colGQ        = "GQ"
	colGQType    = "GQTYPE"
)

// SurveyRequiredColumns must appear in every extract
var SurveyRequiredColumns = []string{colYear, colStateFIP, colPUMA, colHHWT}

// personColumns binds PersonAttributes fields to their columns
var personColumns = []struct {
	column string
	set    func(*domain.PersonAttributes, int)
}{
	{"RELATE", func(p *domain.PersonAttributes, v int) { p.Relate = v }},
	{"AGE", func(p *domain.PersonAttributes, v int) { p.Age = v }},
	{"SEX", func(p *domain.PersonAttributes, v int) { p.Sex = v }},
	{"RACE", func(p *domain.PersonAttributes, v int) { p.Race = v }},
	{"HISPAN", func(p *domain.PersonAttributes, v int) { p.Hispanic = v }},
	{"MARST", func(p *domain.PersonAttributes, v int) { p.MaritalStatus = v }},
	{"NCHILD", func(p *domain.PersonAttributes, v int) { p.NumChildren = v }},
	{"CITIZEN", func(p *domain.PersonAttributes, v int) { p.Citizen = v }},
	{"OWNERSHP", func(p *domain.PersonAttributes, v int) { p.Ownership = v }},
	{"MORTGAGE", func(p *domain.PersonAttributes, v int) { p.Mortgage = v }},
	{"VETSTAT", func(p *domain.PersonAttributes, v int) { p.VetStatus = v }},
	{"DIFFSENS", func(p *domain.PersonAttributes, v int) { p.DiffSens = v }},
	{"DIFFPHYS", func(p *domain.PersonAttributes, v int) { p.DiffPhys = v }},
	{"DIFFREM", func(p *domain.PersonAttributes, v int) { p.DiffRem = v }},
	{"DIFFMOB", func(p *domain.PersonAttributes, v int) { p.DiffMob = v }},
	{"EDUCD", func(p *domain.PersonAttributes, v int) { p.EducD = v }},
	{"EMPSTAT", func(p *domain.PersonAttributes, v int) { p.EmpStat = v }},
}

// ParseSurvey converts an extract table into survey records. Columns named in
// additional are copied verbatim into SurveyRecord.Additional.
func ParseSurvey(t *Table, additional []string) ([]domain.SurveyRecord, error) {
	if err := t.Require(SurveyRequiredColumns...); err != nil {
		return nil, err
	}
	if !t.Has(colSerial) && !t.Has(colCBSerial) {
		return nil, t.Require(colSerial)
	}
	if err := t.Require(additional...); err != nil {
		return nil, err
	}

	records := make([]domain.SurveyRecord, 0, len(t.Rows))
	err := t.Each(func(row Row) error {
		rec, err := parseSurveyRow(row, additional)
		if err != nil {
			return err
		}
		if err := validate.Struct(rec); err != nil {
			return row.errorf("invalid survey record: %v", err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func parseSurveyRow(row Row, additional []string) (domain.SurveyRecord, error) {
	rec := domain.SurveyRecord{
		Serial:     row.Str(colCBSerial, colSerial),
		StateFIPS:  padDigits(row.Str(colStateFIP), 2),
		CountyFIPS: row.Str(colCountyFIP),
		PUMA:       row.Str(colPUMA),
	}

	ints := []struct {
		column string
		dst    *int
	}{
		{colYear, &rec.SampleYear},
		{colMultYear, &rec.MultiYear},
		{colPerNum, &rec.PersonNumber},
		{colNFams, &rec.NumFamilies},
		{colFamUnit, &rec.FamilyUnit},
		{colFamSize, &rec.FamilySize},
	}
	for _, f := range ints {
		v, _, err := row.Int(f.column)
		if err != nil {
			return rec, err
		}
		*f.dst = v
	}

	var err error
	if rec.HouseholdWeight, _, err = row.Float(colHHWT); err != nil {
		return rec, err
	}
	if rec.PersonWeight, _, err = row.Float(colPERWT); err != nil {
		return rec, err
	}

	if rec.GroupQuarters, err = groupQuarters(row); err != nil {
		return rec, err
	}

	for _, pc := range personColumns {
		v, _, err := row.Int(pc.column)
		if err != nil {
			return rec, err
		}
		pc.set(&rec.Person, v)
	}

	for _, field := range domain.IncomeFields {
		v, ok, err := row.Float(field)
		if err != nil {
			return rec, err
		}
		if ok {
			if rec.Income == nil {
				rec.Income = make(map[string]float64, len(domain.IncomeFields))
			}
			rec.Income[field] = v
		}
	}

	if len(additional) > 0 {
		rec.Additional = make(map[string]string, len(additional))
		for _, col := range additional {
			rec.Additional[col] = row.Str(col)
		}
	}
	return rec, nil
}

// groupQuarters reads GQTYPE when present, else GQ. GQTYPE 1-4 are
// correctional, juvenile, nursing and other institutions; GQ 3 is
// institutional and GQ 4-5 non-institutional group quarters.
func groupQuarters(row Row) (domain.GroupQuartersType, error) {
	if v, ok, err := row.Int(colGQType); err != nil {
		return domain.GroupQuartersNone, err
	} else if ok {
		switch {
		case v <= 0:
			return domain.GroupQuartersNone, nil
		case v <= 4:
			return domain.GroupQuartersInstitutional, nil
		default:
			return domain.GroupQuartersNonInstitutional, nil
		}
	}
	v, _, err := row.Int(colGQ)
	if err != nil {
		return domain.GroupQuartersNone, err
	}
	switch v {
	case 3:
		return domain.GroupQuartersInstitutional, nil
	case 4, 5:
		return domain.GroupQuartersNonInstitutional, nil
	default:
		return domain.GroupQuartersNone, nil
	}
}

// padDigits left-pads a numeric code, dropping a trailing ".0" left by
// spreadsheet exports
func padDigits(s string, width int) string {
	s = integerText(s)
	if s == "" || len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func integerText(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) && strings.ContainsAny(s, ".eE") {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}
