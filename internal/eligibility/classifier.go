package eligibility

import (
	"context"
	"fmt"
	"log/slog"

	"hudlink/pkg/contracts/domain"
)

// Classifier sets the Eligible_30/50/80 flags of units.
type Classifier struct {
	table              *LimitTable
	excludeInstitution bool
	logger             *slog.Logger
}

// NewClassifier creates a classifier. With excludeGroupQuarters set,
// institutional group-quarters units are never eligible.
func NewClassifier(table *LimitTable, excludeGroupQuarters bool, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		table:              table,
		excludeInstitution: excludeGroupQuarters,
		logger:             logger.With(slog.String("stage", stage)),
	}
}

// Classify returns the unit with its eligibility flags set. The thresholds are
// cumulative: a unit eligible at 30% is eligible at 50% and 80% even when the
// published limits are out of order.
func (c *Classifier) Classify(unit domain.HouseholdRecord) (domain.HouseholdRecord, error) {
	unit.Eligible30, unit.Eligible50, unit.Eligible80 = false, false, false

	if c.excludeInstitution && unit.GroupQuarters == domain.GroupQuartersInstitutional {
		return unit, nil
	}

	size := unit.SizeBucket
	if size < 1 {
		size = unit.FamilySize
	}
	if size > domain.MaxHouseholdSize {
		size = domain.MaxHouseholdSize
	}
	if size < 1 {
		size = 1
	}

	eligible := false
	for _, t := range domain.Thresholds {
		limit, err := c.table.Lookup(domain.LimitKey{
			CountyID:      unit.CountyID,
			Year:          unit.SampleYear,
			HouseholdSize: size,
			Threshold:     t,
		})
		if err != nil {
			return unit, fmt.Errorf("classify unit %s: %w", unit.SerialNumber, err)
		}
		eligible = eligible || unit.Income.LessThanOrEqual(limit)
		switch t {
		case domain.AMI30:
			unit.Eligible30 = eligible
		case domain.AMI50:
			unit.Eligible50 = eligible
		case domain.AMI80:
			unit.Eligible80 = eligible
		}
	}
	return unit, nil
}

// ClassifyAll classifies every unit. The first failed lookup aborts the pass.
func (c *Classifier) ClassifyAll(ctx context.Context, units []domain.HouseholdRecord) ([]domain.HouseholdRecord, error) {
	out := make([]domain.HouseholdRecord, len(units))
	counts := make(map[domain.Threshold]int)
	suppressed := 0

	for i, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		classified, err := c.Classify(u)
		if err != nil {
			c.logger.ErrorContext(ctx, "income limit lookup failed",
				"serial", u.SerialNumber,
				"county", u.CountyID,
				"year", u.SampleYear,
				"error", err,
			)
			return nil, err
		}
		if c.excludeInstitution && u.GroupQuarters == domain.GroupQuartersInstitutional {
			suppressed++
		}
		for _, t := range domain.Thresholds {
			if classified.EligibleAt(t) {
				counts[t]++
			}
		}
		out[i] = classified
	}

	c.logger.InfoContext(ctx, "eligibility classified",
		"units", len(units),
		"eligible_30", counts[domain.AMI30],
		"eligible_50", counts[domain.AMI50],
		"eligible_80", counts[domain.AMI80],
		"group_quarters_suppressed", suppressed,
	)
	return out, nil
}
