package exporter

import (
	"fmt"
	"strings"

	"hudlink/pkg/contracts/domain"
)

// EligibilityExporter writes the flat unit-level eligibility table
type EligibilityExporter struct {
	csvWriter  *CSVWriter
	additional []string
}

// NewEligibilityExporter creates an exporter. additional names the carried
// survey variables, written after the indicators.
func NewEligibilityExporter(w *CSVWriter, additional []string) *EligibilityExporter {
	return &EligibilityExporter{csvWriter: w, additional: additional}
}

// Export writes one row per unit, in the order given, and returns the row count
func (e *EligibilityExporter) Export(name string, units []domain.HouseholdRecord) (int, error) {
	stream, err := e.csvWriter.CreateStreamWriter(name, e.getHeaders())
	if err != nil {
		return 0, err
	}
	for _, u := range units {
		if err := stream.WriteRecord(e.recordToCSVRow(u)); err != nil {
			stream.Close()
			return 0, fmt.Errorf("failed to write unit %s: %w", u.SerialNumber, err)
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}
	return stream.Rows(), nil
}

func weightedCountColumn(th domain.Threshold) string {
	return "Weighted_Eligibility_Count_" + th.String()
}

func indicatorColumn(ind domain.Indicator) string {
	return "elig_" + string(ind)
}

func (e *EligibilityExporter) getHeaders() []string {
	headers := []string{
		"serial_number", "source_serial", "family_index", "year", "statefip",
		"county_id", "County_Name", "puma", "vintage", "imputed",
		"household_weight", "weight", "person_weight", "family_size", "nfams_before_split", "gq",
		"income", "income_source",
	}
	headers = append(headers, domain.IncomeFields...)
	headers = append(headers, "race", "hispan", "sex", "age", "age_band", "tenure", "citizen", "veteran", "disability")
	for _, ind := range domain.AllIndicators {
		headers = append(headers, indicatorColumn(ind))
	}
	headers = append(headers, e.additional...)
	headers = append(headers, "size_bucket")
	for _, th := range domain.Thresholds {
		headers = append(headers, fmt.Sprintf("Eligibility_%d%%", int(th)))
	}
	for _, th := range domain.Thresholds {
		headers = append(headers, weightedCountColumn(th))
	}
	return append(headers, "quality_flags")
}

func (e *EligibilityExporter) recordToCSVRow(u domain.HouseholdRecord) []string {
	d := u.Demographics
	row := []string{
		u.SerialNumber,
		u.SourceSerial,
		formatInt(u.FamilyIndex),
		formatInt(u.SampleYear),
		u.StateFIPS,
		u.CountyID,
		u.CountyName,
		u.PUMA,
		u.Vintage.String(),
		formatBool(u.Imputed),
		formatFloat(u.HouseholdWeight),
		formatFloat(u.Weight),
		formatFloat(u.PersonWeight),
		formatInt(u.FamilySize),
		formatInt(u.NumFamilies),
		u.GroupQuarters.String(),
		u.Income.String(),
		u.IncomeSource,
	}
	for _, field := range domain.IncomeFields {
		if v, ok := u.IncomeComponents[field]; ok {
			row = append(row, v.String())
		} else {
			row = append(row, "")
		}
	}
	row = append(row,
		formatInt(d.Race),
		formatInt(d.Hispanic),
		formatInt(d.Sex),
		formatInt(d.Age),
		d.AgeBand,
		d.Tenure,
		formatInt(d.Citizen),
		formatBool(d.Veteran),
		formatBool(d.Disability),
	)
	for _, ind := range domain.AllIndicators {
		row = append(row, formatFlag(d.Indicators.Has(ind)))
	}
	for _, col := range e.additional {
		row = append(row, d.Additional[col])
	}
	row = append(row, formatInt(u.SizeBucket))
	for _, th := range domain.Thresholds {
		row = append(row, formatFlag(u.EligibleAt(th)))
	}
	for _, th := range domain.Thresholds {
		w := 0.0
		if u.EligibleAt(th) {
			w = u.Weight
		}
		row = append(row, formatFloat(w))
	}
	return append(row, strings.Join(u.QualityFlags, ";"))
}
