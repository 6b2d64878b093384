// Package imputation assigns every survey record to a county. Records whose
// county the survey already identifies pass through; the rest are placed via
// the PUMA crosswalk, fanning out into one weighted copy per county when the
// PUMA spans several.
package imputation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"hudlink/internal/audit"
	"hudlink/internal/crosswalk"
	apperrors "hudlink/internal/errors"
	"hudlink/pkg/contracts/domain"
)

const stage = "imputation"

// Result is the output of one imputation pass.
type Result struct {
	Records   []domain.LocatedRecord
	Direct    int // records with a usable survey county
	Assigned  int // placed in a single-county PUMA
	FannedOut int // source records split across counties
}

// Imputer places survey records in counties.
type Imputer struct {
	resolver  *crosswalk.Resolver
	tolerance float64
	logger    *slog.Logger
	audit     *audit.Log
}

// NewImputer creates an imputer. tolerance bounds the per-PUMA weight drift.
func NewImputer(resolver *crosswalk.Resolver, tolerance float64, logger *slog.Logger, log *audit.Log) *Imputer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Imputer{
		resolver:  resolver,
		tolerance: tolerance,
		logger:    logger.With(slog.String("stage", stage)),
		audit:     log,
	}
}

// Impute locates every record. An unresolvable PUMA aborts the pass with
// *errors.MissingCrosswalkEntryError; weight drift within a PUMA aborts it with
// *errors.WeightInvariantViolationError.
func (im *Imputer) Impute(ctx context.Context, records []domain.SurveyRecord) (*Result, error) {
	res := &Result{Records: make([]domain.LocatedRecord, 0, len(records))}
	flagged := make(map[string]bool)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vintage, allocs, err := im.resolver.ResolveRecord(rec)
		direct := rec.DirectCountyID()

		if direct != "" {
			if err != nil || containsCounty(allocs, direct) {
				res.Direct++
				res.Records = append(res.Records, domain.LocatedRecord{
					SurveyRecord:     rec,
					CountyID:         direct,
					CountyName:       im.resolver.CountyName(direct),
					Vintage:          vintage,
					AllocationFactor: 1,
					AllocatedWeight:  rec.HouseholdWeight,
				})
				continue
			}
			// The survey names a county the PUMA does not reach: treat it as ambiguous.
			key := fmt.Sprintf("%s/%s/%s", rec.StateFIPS, rec.PUMA, direct)
			if !flagged[key] {
				flagged[key] = true
				im.audit.Flag(ctx, domain.FlagCountyNotInCrosswalk, stage, key,
					fmt.Sprintf("survey county %s is not allocated from PUMA %s in the %s crosswalk; imputing", direct, rec.PUMA, vintage))
			}
		}

		if err != nil {
			im.logger.ErrorContext(ctx, "unresolvable PUMA",
				"serial", rec.Serial,
				"puma", rec.PUMA,
				"vintage", vintage.String(),
			)
			return nil, fmt.Errorf("impute county for serial %s: %w", rec.Serial, err)
		}

		if len(allocs) > 1 {
			res.FannedOut++
		} else {
			res.Assigned++
		}
		for _, a := range allocs {
			res.Records = append(res.Records, domain.LocatedRecord{
				SurveyRecord:     rec,
				CountyID:         a.CountyID,
				CountyName:       a.CountyName,
				Vintage:          vintage,
				AllocationFactor: a.Fraction,
				AllocatedWeight:  rec.HouseholdWeight * a.Fraction,
				Imputed:          true,
			})
		}
	}

	if err := CheckConservation(records, res.Records, im.tolerance); err != nil {
		return nil, err
	}

	im.logger.InfoContext(ctx, "counties imputed",
		"rows_in", len(records),
		"rows_out", len(res.Records),
		"direct", res.Direct,
		"assigned", res.Assigned,
		"fanned_out", res.FannedOut,
	)
	return res, nil
}

func containsCounty(allocs []domain.CountyAllocation, countyID string) bool {
	for _, a := range allocs {
		if a.CountyID == countyID {
			return true
		}
	}
	return false
}

// CheckConservation verifies that the household weight of every PUMA is
// unchanged by imputation. The tolerance is absolute for totals up to one and
// relative above that.
func CheckConservation(in []domain.SurveyRecord, out []domain.LocatedRecord, tolerance float64) error {
	expected := make(map[string]float64)
	for _, r := range in {
		expected[r.StateFIPS+"/"+crosswalk.NormalizePUMA(r.PUMA)] += r.HouseholdWeight
	}
	actual := make(map[string]float64)
	for _, r := range out {
		actual[r.StateFIPS+"/"+crosswalk.NormalizePUMA(r.PUMA)] += r.AllocatedWeight
	}

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !withinTolerance(expected[k], actual[k], tolerance) {
			return &apperrors.WeightInvariantViolationError{
				Stage:     stage,
				Key:       "PUMA " + k,
				Expected:  expected[k],
				Actual:    actual[k],
				Tolerance: tolerance,
			}
		}
	}
	return nil
}

func withinTolerance(expected, actual, tolerance float64) bool {
	return math.Abs(expected-actual) <= tolerance*math.Max(1, math.Abs(expected))
}
