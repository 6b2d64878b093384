package exporter

import (
	"fmt"
	"sort"

	"hudlink/internal/linkage"
	"hudlink/pkg/contracts/domain"
)

// SummaryExporter writes one linked county summary per program label
type SummaryExporter struct {
	csvWriter *CSVWriter
}

// NewSummaryExporter creates a new summary exporter
func NewSummaryExporter(w *CSVWriter) *SummaryExporter {
	return &SummaryExporter{csvWriter: w}
}

// Table is a rendered summary, shared by the CSV and workbook outputs
type Table struct {
	Headers []string
	Rows    [][]string
}

// Export writes the summary of one program
func (s *SummaryExporter) Export(name, label string, summaries []domain.CountySummary) (int, error) {
	t := SummaryTable(label, summaries)
	if err := s.csvWriter.WriteCSV(name, t.Headers, t.Rows); err != nil {
		return 0, fmt.Errorf("failed to write summary for %s: %w", label, err)
	}
	return len(t.Rows), nil
}

// SummaryTable renders the summaries of one program, one row per county
func SummaryTable(label string, summaries []domain.CountySummary) Table {
	safe := linkage.SafeLabel(label)
	attrs := attributeColumns(summaries)

	headers := []string{
		"statefip", "county_id", "County_Name", "year", "program_label",
		"weighted_units", "program_matched", "total_units", "units_suppressed",
	}
	for _, th := range domain.Thresholds {
		pct := th.String()
		headers = append(headers,
			weightedCountColumn(th),
			"Unadjusted_Eligibility_Count_"+pct,
			"Incarcerated_Removed_"+pct,
		)
		for _, st := range domain.RaceStrata {
			headers = append(headers, fmt.Sprintf("Weighted_%s_Count_%s", st, pct))
		}
		for _, ind := range domain.AllIndicators {
			headers = append(headers,
				fmt.Sprintf("Weighted_%s_Count_%s", indicatorColumn(ind), pct),
				fmt.Sprintf("%% Eligible %s at %s", indicatorColumn(ind), pct),
			)
		}
		headers = append(headers,
			fmt.Sprintf("%s_gap_%s", safe, pct),
			fmt.Sprintf("%s_allocation_rate_%s", safe, pct),
		)
	}
	headers = append(headers, attrs...)

	rows := make([][]string, 0, len(summaries))
	for _, cs := range summaries {
		row := []string{
			cs.StateFIPS,
			cs.CountyID,
			cs.CountyName,
			formatInt(cs.Year),
			cs.ProgramLabel,
			formatFloat(cs.Units),
			formatBool(cs.ProgramMatched),
			formatOptional(cs.ProgramUnits),
			formatBool(cs.UnitsSuppressed),
		}
		for _, th := range domain.Thresholds {
			l := cs.At(th)
			agg := l.Threshold
			row = append(row,
				formatFloat(agg.Eligible),
				formatFloat(agg.Unadjusted),
				formatFloat(agg.Removed),
			)
			for _, st := range domain.RaceStrata {
				row = append(row, formatFloat(agg.Strata[st]))
			}
			for _, ind := range domain.AllIndicators {
				share := ""
				if v, ok := agg.IndicatorShare(ind); ok {
					share = formatFloat(v)
				}
				row = append(row, formatFloat(agg.Indicators[ind]), share)
			}
			row = append(row, formatOptional(l.Gap), formatOptional(l.AllocationRate))
		}
		for _, a := range attrs {
			if v, ok := cs.ProgramAttributes[a]; ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return Table{Headers: headers, Rows: rows}
}

// attributeColumns returns the program attribute names present in any row, sorted
func attributeColumns(summaries []domain.CountySummary) []string {
	seen := make(map[string]bool)
	var out []string
	for _, cs := range summaries {
		for k := range cs.ProgramAttributes {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
