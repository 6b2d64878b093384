package exporter

import (
	"strconv"

	"hudlink/internal/crosswalk"
	"hudlink/pkg/contracts/domain"
)

var auditHeaders = []string{"kind", "stage", "key", "message"}

// AuditTable renders data quality flags followed by one row per crosswalk
// rescale with its source sum
func AuditTable(flags []domain.DataQualityFlag, corrections []crosswalk.Correction) Table {
	rows := make([][]string, 0, len(flags)+len(corrections))
	for _, f := range flags {
		rows = append(rows, []string{string(f.Kind), f.Stage, f.Key, f.Message})
	}
	for _, c := range corrections {
		rows = append(rows, []string{
			"crosswalk_correction",
			"crosswalk",
			c.Vintage.String() + "/" + c.StateFIPS + "/" + c.PUMA,
			"source_sum=" + formatFloat(c.SourceSum) + " magnitude=" + strconv.FormatFloat(c.Magnitude, 'g', 6, 64),
		})
	}
	return Table{Headers: auditHeaders, Rows: rows}
}
