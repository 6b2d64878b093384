package linkage

import (
	"context"
	"log/slog"
	"sort"

	"hudlink/pkg/contracts/domain"
)

// Aggregate sums classified units into one CountyEligibility per county,
// ordered by county id. Eligible equals Unadjusted until the incarceration
// adjustment runs.
func Aggregate(ctx context.Context, units []domain.HouseholdRecord, logger *slog.Logger) []domain.CountyEligibility {
	if logger == nil {
		logger = slog.Default()
	}

	byCounty := make(map[string]*domain.CountyEligibility)
	for _, u := range units {
		c, ok := byCounty[u.CountyID]
		if !ok {
			c = &domain.CountyEligibility{
				StateFIPS:  u.StateFIPS,
				CountyID:   u.CountyID,
				CountyName: u.CountyName,
				Year:       u.SampleYear,
			}
			for _, t := range domain.Thresholds {
				c.Thresholds = append(c.Thresholds, domain.ThresholdAggregate{
					Threshold:  t,
					Strata:     make(map[domain.Stratum]float64),
					Indicators: make(map[domain.Indicator]float64),
				})
			}
			byCounty[u.CountyID] = c
		}
		if c.CountyName == "" {
			c.CountyName = u.CountyName
		}
		c.Units += u.Weight
		c.UnitCount++

		stratum := u.Demographics.Stratum()
		for i, t := range domain.Thresholds {
			if !u.EligibleAt(t) {
				continue
			}
			agg := &c.Thresholds[i]
			agg.Unadjusted += u.Weight
			agg.Eligible += u.Weight
			agg.Strata[domain.StratumTotal] += u.Weight
			agg.Strata[stratum] += u.Weight
			for ind, set := range u.Demographics.Indicators {
				if set {
					agg.Indicators[ind] += u.Weight
				}
			}
		}
	}

	out := make([]domain.CountyEligibility, 0, len(byCounty))
	for _, c := range byCounty {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountyID < out[j].CountyID })

	logger.InfoContext(ctx, "eligibility aggregated",
		"stage", "aggregate",
		"units", len(units),
		"counties", len(out),
	)
	return out
}
