package domain

import (
	"fmt"
)

// FlagKind classifies a non-fatal data quality observation
type FlagKind string

const (
	FlagMissingIncome        FlagKind = "missing_income"
	FlagNoIncomeData         FlagKind = "no_income_data"
	FlagIncomeFloored        FlagKind = "income_floored"
	FlagCrosswalkNormalized  FlagKind = "crosswalk_normalized"
	FlagCrosswalkDuplicate   FlagKind = "crosswalk_duplicate"
	FlagCountyNotInCrosswalk FlagKind = "county_not_in_crosswalk"
	FlagLimitsAggregated     FlagKind = "income_limits_aggregated"
	FlagLimitsNotNested      FlagKind = "income_limits_not_nested"
	FlagZeroPersonWeight     FlagKind = "zero_person_weight"
	FlagUnmatchedCounty      FlagKind = "unmatched_county"
	FlagUnmatchedProgram     FlagKind = "unmatched_program_county"
	FlagProgramMissing       FlagKind = "program_missing"
	FlagUnitsSuppressed      FlagKind = "units_suppressed"
	FlagIncarcerationSkipped FlagKind = "incarceration_skipped"
	FlagIncarcerationFloored FlagKind = "incarceration_floored"
	FlagIncarcerationUnknown FlagKind = "incarceration_unknown_county"
	FlagIncarcerationInvalid FlagKind = "incarceration_invalid_count"
)

// DataQualityFlag is a recorded, non-fatal observation about the inputs of a run
type DataQualityFlag struct {
	Kind    FlagKind `json:"kind"`
	Stage   string   `json:"stage"`
	Key     string   `json:"key"`
	Message string   `json:"message"`
}

// String returns the string representation of the flag
func (f DataQualityFlag) String() string {
	if f.Key == "" {
		return fmt.Sprintf("[%s] %s: %s", f.Stage, f.Kind, f.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", f.Stage, f.Kind, f.Key, f.Message)
}
