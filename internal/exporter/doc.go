// Package exporter writes the output tables of a state/year unit.
//
// CSVWriter: CSV writing into one directory, whole-file or streamed, plus the
// summary workbook through excelize.
//
// EligibilityExporter: the flat unit-level table, one row per household or
// family with its income, demographics, indicators and eligibility flags.
//
// SummaryExporter: one linked county summary per program label with weighted
// eligible counts, indicator shares, gap and allocation rate per threshold.
//
// Exporter: writes all of a unit's files into a directory:
//
//	exp := exporter.NewExporter(exporter.Options{Workbook: true}, logger)
//	files, err := exp.Export(ctx, stagingDir, out)
package exporter
