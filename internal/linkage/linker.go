// Package linkage aggregates classified units per county and joins HUD
// program records to the aggregates to compute allocation rates and gaps.
package linkage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"hudlink/internal/audit"
	"hudlink/pkg/contracts/domain"
)

const stage = "linkage"

// Linker joins program records to county eligibility.
type Linker struct {
	logger *slog.Logger
	audit  *audit.Log
}

// NewLinker creates a linker.
func NewLinker(logger *slog.Logger, log *audit.Log) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{logger: logger.With(slog.String("stage", stage)), audit: log}
}

// Link produces one CountySummary per county for each label. Labels with no
// program rows at all are flagged and produce no summaries. Program rows are
// matched on county id, then on folded county name.
func (l *Linker) Link(ctx context.Context, counties []domain.CountyEligibility, programs []domain.ProgramRecord, labels []string) map[string][]domain.CountySummary {
	byLabel := make(map[string][]domain.ProgramRecord)
	for _, p := range programs {
		label := CanonicalLabel(p.ProgramLabel)
		byLabel[label] = append(byLabel[label], p)
	}

	out := make(map[string][]domain.CountySummary, len(labels))
	for _, label := range labels {
		rows := byLabel[label]
		if len(rows) == 0 {
			l.audit.Flag(ctx, domain.FlagProgramMissing, stage, label, "no program records for label; summary not produced")
			continue
		}
		out[label] = l.linkLabel(ctx, counties, rows, label)
	}
	return out
}

func (l *Linker) linkLabel(ctx context.Context, counties []domain.CountyEligibility, rows []domain.ProgramRecord, label string) []domain.CountySummary {
	byID := make(map[string][]int)
	byName := make(map[string][]int)
	for i, p := range rows {
		if p.CountyID != "" {
			byID[p.CountyID] = append(byID[p.CountyID], i)
		}
		if p.CountyName != "" {
			key := domain.FoldCountyName(p.CountyName)
			byName[key] = append(byName[key], i)
		}
	}

	used := make(map[int]bool)
	years := make(map[int]bool)
	summaries := make([]domain.CountySummary, 0, len(counties))
	var unmatched, suppressed []string

	for _, c := range counties {
		years[c.Year] = true
		idx, ok := pickRow(rows, byID[c.CountyID], c.Year)
		if !ok && c.CountyName != "" {
			idx, ok = pickRow(rows, byName[domain.FoldCountyName(c.CountyName)], c.Year)
		}

		s := domain.CountySummary{
			StateFIPS:    c.StateFIPS,
			CountyID:     c.CountyID,
			CountyName:   c.CountyName,
			Year:         c.Year,
			ProgramLabel: label,
			Units:        c.Units,
		}
		if ok {
			p := rows[idx]
			used[idx] = true
			s.ProgramMatched = true
			s.ProgramAttributes = p.Attributes
			units := p.TotalUnits
			s.ProgramUnits = &units
			s.UnitsSuppressed = p.Suppressed()
			if s.UnitsSuppressed {
				suppressed = append(suppressed, c.CountyID)
			}
		} else {
			unmatched = append(unmatched, c.CountyID)
		}

		for _, t := range domain.Thresholds {
			s.Thresholds = append(s.Thresholds, Compare(c.At(t), s.ProgramUnits, s.UnitsSuppressed))
		}
		summaries = append(summaries, s)
	}

	for _, id := range unmatched {
		l.audit.Flag(ctx, domain.FlagUnmatchedCounty, stage, label+"/"+id, "county has eligibility but no program record")
	}
	for _, id := range suppressed {
		l.audit.Flag(ctx, domain.FlagUnitsSuppressed, stage, label+"/"+id, "program unit count suppressed; rate and gap left empty")
	}

	// rows of other years belong to other units and are not orphans here
	var orphans []string
	otherYears := 0
	for i, p := range rows {
		if used[i] {
			continue
		}
		if p.Year != 0 && len(years) > 0 && !years[p.Year] && !years[0] {
			otherYears++
			continue
		}
		orphans = append(orphans, programKey(p))
	}
	sort.Strings(orphans)
	for _, k := range dedupe(orphans) {
		l.audit.Flag(ctx, domain.FlagUnmatchedProgram, stage, label+"/"+k, "program record has no eligibility county")
	}

	l.logger.InfoContext(ctx, "program linked",
		"program", label,
		"counties", len(counties),
		"program_rows", len(rows),
		"other_year_rows", otherYears,
		"unmatched_counties", len(unmatched),
		"unmatched_programs", len(orphans),
		"suppressed", len(suppressed),
	)
	return summaries
}

// pickRow returns the first candidate row of the given year. A row or county
// without a year matches any year, but only when no exact match exists.
func pickRow(rows []domain.ProgramRecord, candidates []int, year int) (int, bool) {
	fallback, found := 0, false
	for _, i := range candidates {
		p := rows[i]
		if p.Year == year {
			return i, true
		}
		if !found && (p.Year == 0 || year == 0) {
			fallback, found = i, true
		}
	}
	return fallback, found
}

// Compare computes the allocation rate and signed gap at one threshold. Both
// are nil without a usable unit count; the rate is also nil when no units are
// eligible.
func Compare(agg domain.ThresholdAggregate, programUnits *float64, suppressed bool) domain.ThresholdLinkage {
	link := domain.ThresholdLinkage{Threshold: agg}
	if programUnits == nil || suppressed {
		return link
	}
	units := *programUnits
	gap := agg.Eligible - units
	link.Gap = &gap
	if agg.Eligible != 0 {
		rate := units / agg.Eligible
		link.AllocationRate = &rate
	}
	return link
}

func programKey(p domain.ProgramRecord) string {
	if p.CountyID != "" {
		return p.CountyID
	}
	return fmt.Sprintf("name:%s", domain.FoldCountyName(p.CountyName))
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
