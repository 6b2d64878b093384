// Package income computes the normalized total income of each unit of analysis.
package income

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"hudlink/internal/audit"
	"hudlink/pkg/contracts/domain"
)

const stage = "income"

// Income sources recorded on each unit.
const (
	SourceHousehold        = "HHINCOME"
	SourceFamily           = "FTOTINC"
	SourceComponents       = "components"
	SourceFamilyComponents = "family_components"
	SourceNone             = "none"
)

// sentinels are the IPUMS not-applicable and missing codes across the income columns.
var sentinels = map[float64]bool{
	9999999: true,
	999999:  true,
	999998:  true,
	99999:   true,
}

// IsSentinel reports whether v is a missing-data code.
func IsSentinel(v float64) bool {
	return sentinels[v]
}

// Options controls normalization.
type Options struct {
	// Floor, when set, raises totals below it to it.
	Floor *decimal.Decimal
}

// Normalizer cleans and totals income fields.
type Normalizer struct {
	opts   Options
	logger *slog.Logger
	audit  *audit.Log
}

// NewNormalizer creates a normalizer.
func NewNormalizer(opts Options, logger *slog.Logger, log *audit.Log) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{opts: opts, logger: logger.With(slog.String("stage", stage)), audit: log}
}

type fieldValue struct {
	value   decimal.Decimal
	present bool
}

// Normalize returns copies of units with Income, IncomeSource and
// IncomeComponents set. Whole households take the reference family's FTOTINC,
// then HHINCOME, then the sum of members' person components; split families
// always take the sum of their own members' components. Sentinel codes count
// as zero and mark the unit.
func (n *Normalizer) Normalize(ctx context.Context, units []domain.HouseholdRecord) []domain.HouseholdRecord {
	out := make([]domain.HouseholdRecord, len(units))
	sentinelUnits := make(map[string]int)
	noData, floored := 0, 0

	for i, u := range units {
		u.IncomeComponents = make(map[string]decimal.Decimal)
		u.QualityFlags = append([]string(nil), u.QualityFlags...)
		marked := make(map[string]bool)

		read := func(rec domain.LocatedRecord, field string) fieldValue {
			v, ok := rec.Income[field]
			if !ok {
				return fieldValue{}
			}
			if IsSentinel(v) {
				if !marked[field] {
					marked[field] = true
					u.QualityFlags = append(u.QualityFlags, fmt.Sprintf("%s:%s", domain.FlagMissingIncome, field))
					sentinelUnits[field]++
				}
				return fieldValue{}
			}
			return fieldValue{value: decimal.NewFromFloat(v), present: true}
		}

		components := decimal.Zero
		anyComponent := false
		for _, field := range domain.PersonIncomeFields {
			sum := decimal.Zero
			for _, m := range u.Members {
				if fv := read(m, field); fv.present {
					sum = sum.Add(fv.value)
					anyComponent = true
				}
			}
			u.IncomeComponents[field] = sum
			components = components.Add(sum)
		}

		var hh, fam fieldValue
		if len(u.Members) > 0 {
			hh = read(u.Members[0], domain.IncomeHousehold)
			fam = read(u.Members[0], domain.IncomeFamily)
		}
		if hh.present {
			u.IncomeComponents[domain.IncomeHousehold] = hh.value
		}
		if fam.present {
			u.IncomeComponents[domain.IncomeFamily] = fam.value
		}

		switch {
		case u.IsSplit():
			u.Income, u.IncomeSource = components, SourceFamilyComponents
		case fam.present:
			u.Income, u.IncomeSource = fam.value, SourceFamily
		case hh.present:
			u.Income, u.IncomeSource = hh.value, SourceHousehold
		case anyComponent:
			u.Income, u.IncomeSource = components, SourceComponents
		default:
			u.Income, u.IncomeSource = decimal.Zero, SourceNone
		}
		if u.IncomeSource == SourceNone || (u.IsSplit() && !anyComponent) {
			u.QualityFlags = append(u.QualityFlags, string(domain.FlagNoIncomeData))
			noData++
		}

		if n.opts.Floor != nil && u.Income.LessThan(*n.opts.Floor) {
			u.Income = *n.opts.Floor
			u.QualityFlags = append(u.QualityFlags, string(domain.FlagIncomeFloored))
			floored++
		}
		out[i] = u
	}

	fields := make([]string, 0, len(sentinelUnits))
	for f := range sentinelUnits {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		n.audit.Flag(ctx, domain.FlagMissingIncome, stage, f,
			fmt.Sprintf("%d units carried a missing-data code in %s; counted as zero", sentinelUnits[f], f))
	}
	if noData > 0 {
		n.audit.Flag(ctx, domain.FlagNoIncomeData, stage, "",
			fmt.Sprintf("%d units have no usable income fields; income set to zero", noData))
	}
	if floored > 0 {
		n.audit.Flag(ctx, domain.FlagIncomeFloored, stage, n.opts.Floor.String(),
			fmt.Sprintf("%d units raised to the income floor", floored))
	}

	n.logger.InfoContext(ctx, "income normalized",
		"units", len(units),
		"no_income_data", noData,
		"floored", floored,
	)
	return out
}
