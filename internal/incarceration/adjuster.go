// Package incarceration removes the incarcerated population from county
// eligibility aggregates. Individual units are never touched: the survey
// cannot tell who is incarcerated outside group-quarters codes.
package incarceration

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"hudlink/internal/audit"
	"hudlink/pkg/contracts/domain"
)

const stage = "incarceration"

// Options controls the adjustment.
type Options struct {
	// Stratified subtracts white and minority counts from the matching race
	// strata. Counties reporting only a total fall back to the total.
	Stratified bool
	// Skip disables the adjustment; set when institutional group quarters
	// are already excluded from eligibility.
	Skip bool
}

// Adjuster applies incarceration counts to county aggregates.
type Adjuster struct {
	opts   Options
	logger *slog.Logger
	audit  *audit.Log
}

// NewAdjuster creates an adjuster.
func NewAdjuster(opts Options, logger *slog.Logger, log *audit.Log) *Adjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{opts: opts, logger: logger.With(slog.String("stage", stage)), audit: log}
}

// Adjust returns copies of counties with Removed and Eligible set at every
// threshold. Adjusted counts are floored at zero per stratum.
func (a *Adjuster) Adjust(ctx context.Context, counties []domain.CountyEligibility, records []domain.IncarcerationRecord) []domain.CountyEligibility {
	out := make([]domain.CountyEligibility, len(counties))
	for i, c := range counties {
		out[i] = resetAdjustment(c)
	}

	if a.opts.Skip {
		if len(records) > 0 {
			a.audit.Flag(ctx, domain.FlagIncarcerationSkipped, stage, "",
				"institutional group quarters already excluded; incarceration counts not subtracted")
		}
		return out
	}
	if len(records) == 0 {
		return out
	}

	byID := make(map[string]int, len(out))
	byName := make(map[string]int, len(out))
	for i, c := range out {
		byID[c.CountyID] = i
		if c.CountyName != "" {
			byName[domain.FoldCountyName(c.CountyName)] = i
		}
	}

	counts := make(map[int]map[domain.Stratum]float64)
	unknown := make(map[string]bool)
	for _, r := range records {
		if r.Count < 0 || math.IsNaN(r.Count) || math.IsInf(r.Count, 0) {
			a.audit.Flag(ctx, domain.FlagIncarcerationInvalid, stage, recordKey(r),
				fmt.Sprintf("%s count %v ignored", r.Stratum, r.Count))
			continue
		}
		idx, ok := byID[r.CountyID]
		if !ok || r.CountyID == "" {
			idx, ok = byName[domain.FoldCountyName(r.CountyName)]
		}
		if !ok {
			unknown[recordKey(r)] = true
			continue
		}
		if counts[idx] == nil {
			counts[idx] = make(map[domain.Stratum]float64)
		}
		counts[idx][r.Stratum] += r.Count
	}
	for _, key := range sortedKeys(unknown) {
		a.audit.Flag(ctx, domain.FlagIncarcerationUnknown, stage, key, "incarceration county has no eligibility aggregate")
	}

	matched := make([]int, 0, len(counts))
	for idx := range counts {
		matched = append(matched, idx)
	}
	sort.Ints(matched)

	removed := 0.0
	for _, idx := range matched {
		inc := counts[idx]
		c := out[idx]
		c.Incarcerated = inc
		floored := false
		for ti, agg := range c.Thresholds {
			eligible, hitFloor := a.adjusted(agg, inc)
			floored = floored || hitFloor
			agg.Eligible = eligible
			agg.Removed = agg.Unadjusted - eligible
			removed += agg.Removed
			c.Thresholds[ti] = agg
		}
		if floored {
			a.audit.Flag(ctx, domain.FlagIncarcerationFloored, stage, c.CountyID,
				"incarcerated count exceeds eligible weight in at least one stratum; floored at zero")
		}
		out[idx] = c
	}

	a.logger.InfoContext(ctx, "incarceration applied",
		"counties", len(counties),
		"matched", len(counts),
		"unknown", len(unknown),
		"stratified", a.opts.Stratified,
		"weight_removed", removed,
	)
	return out
}

func (a *Adjuster) adjusted(agg domain.ThresholdAggregate, inc map[domain.Stratum]float64) (float64, bool) {
	_, hasWhite := inc[domain.StratumWhite]
	_, hasMinority := inc[domain.StratumMinority]

	if a.opts.Stratified && (hasWhite || hasMinority) {
		total, floored := 0.0, false
		for _, s := range domain.RaceStrata {
			v := agg.Strata[s] - inc[s]
			if v < 0 {
				v, floored = 0, true
			}
			total += v
		}
		return total, floored
	}

	incarcerated, ok := inc[domain.StratumTotal]
	if !ok {
		incarcerated = inc[domain.StratumWhite] + inc[domain.StratumMinority]
	}
	v := agg.Unadjusted - incarcerated
	return math.Max(0, v), v < 0
}

func resetAdjustment(c domain.CountyEligibility) domain.CountyEligibility {
	thresholds := make([]domain.ThresholdAggregate, len(c.Thresholds))
	for i, agg := range c.Thresholds {
		agg.Removed = 0
		agg.Eligible = agg.Unadjusted
		thresholds[i] = agg
	}
	c.Thresholds = thresholds
	c.Incarcerated = nil
	return c
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func recordKey(r domain.IncarcerationRecord) string {
	if r.CountyID != "" {
		return r.CountyID
	}
	return r.CountyName
}
