package exporter

import (
	"context"
	"fmt"
	"log/slog"

	"hudlink/internal/linkage"
	"hudlink/internal/operations"
	"hudlink/pkg/contracts/domain"
)

// File name parts
const (
	eligibilityPart = "eligibility"
	summaryPart     = "linked_summary"
	auditPart       = "audit"
	workbookPart    = "summary"
	auditSheet      = "audit"
)

// Options controls which outputs are written
type Options struct {
	// Workbook also writes every summary and the audit log to one xlsx file
	Workbook bool
}

// Exporter writes the output files of one unit into a directory
type Exporter struct {
	opts   Options
	logger *slog.Logger
}

// NewExporter creates a new exporter
func NewExporter(opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{opts: opts, logger: logger.With(slog.String("component", "exporter"))}
}

// EligibilityFileName returns FL_2023_eligibility_HH.csv
func EligibilityFileName(unit domain.Unit, mode string) string {
	return fmt.Sprintf("%s_%s_%s.csv", unit, eligibilityPart, mode)
}

// SummaryFileName returns FL_2023_housing_choice_vouchers_linked_summary_HH.csv
func SummaryFileName(unit domain.Unit, label, mode string) string {
	return fmt.Sprintf("%s_%s_%s_%s.csv", unit, linkage.SafeLabel(label), summaryPart, mode)
}

// AuditFileName returns FL_2023_audit.csv
func AuditFileName(unit domain.Unit) string {
	return fmt.Sprintf("%s_%s.csv", unit, auditPart)
}

// WorkbookFileName returns FL_2023_summary_HH.xlsx
func WorkbookFileName(unit domain.Unit, mode string) string {
	return fmt.Sprintf("%s_%s_%s.xlsx", unit, workbookPart, mode)
}

// Export writes every output file of out into dir and returns their names.
// Units are written in the order of out.Households.
func (e *Exporter) Export(ctx context.Context, dir string, out *operations.Output) ([]string, error) {
	w := NewCSVWriter(dir, e.logger)
	mode := out.Options.Mode()
	var written []string

	name := EligibilityFileName(out.Unit, mode)
	rows, err := NewEligibilityExporter(w, out.Options.AdditionalVariables).Export(name, out.Households)
	if err != nil {
		return nil, err
	}
	written = append(written, name)
	e.logger.DebugContext(ctx, "eligibility written", slog.String("file", name), slog.Int("rows", rows))

	var sheets []Sheet
	summaries := NewSummaryExporter(w)
	for _, label := range out.Labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := SummaryFileName(out.Unit, label, mode)
		if _, err := summaries.Export(name, label, out.Summaries[label]); err != nil {
			return nil, err
		}
		written = append(written, name)
		if e.opts.Workbook {
			sheets = append(sheets, Sheet{Name: SummarySheetName(label), Table: SummaryTable(label, out.Summaries[label])})
		}
	}

	audit := AuditTable(out.Flags, out.Corrections)
	name = AuditFileName(out.Unit)
	if err := w.WriteCSV(name, audit.Headers, audit.Rows); err != nil {
		return nil, fmt.Errorf("failed to write audit log: %w", err)
	}
	written = append(written, name)

	if e.opts.Workbook {
		sheets = append(sheets, Sheet{Name: auditSheet, Table: audit})
		name = WorkbookFileName(out.Unit, mode)
		if err := w.WriteWorkbook(name, sheets); err != nil {
			return nil, err
		}
		written = append(written, name)
	}

	e.logger.InfoContext(ctx, "unit exported",
		slog.String("unit", out.Unit.String()),
		slog.String("dir", dir),
		slog.Int("files", len(written)))
	return written, nil
}
