package domain

// ThresholdAggregate holds the weighted eligible counts of one county at one threshold
type ThresholdAggregate struct {
	Threshold Threshold `json:"threshold"`

	// Unadjusted is the weighted count of eligible units before the incarceration adjustment
	Unadjusted float64 `json:"unadjusted"`
	// Removed is the weight taken out by the incarceration adjustment
	Removed float64 `json:"removed"`
	// Eligible is Unadjusted minus Removed, never negative
	Eligible float64 `json:"eligible"`

	// Strata and Indicators are weighted counts before the adjustment
	Strata     map[Stratum]float64   `json:"strata"`
	Indicators map[Indicator]float64 `json:"indicators"`
}

// IndicatorShare returns the percentage of unadjusted eligible weight carrying the indicator.
// ok is false when the county has no eligible weight at this threshold.
func (a ThresholdAggregate) IndicatorShare(ind Indicator) (float64, bool) {
	if a.Unadjusted == 0 {
		return 0, false
	}
	return a.Indicators[ind] / a.Unadjusted * 100, true
}

// CountyEligibility is the eligibility aggregate of one county and year
type CountyEligibility struct {
	StateFIPS    string               `json:"statefip"`
	CountyID     string               `json:"county_id"`
	CountyName   string               `json:"county_name"`
	Year         int                  `json:"year"`
	Units        float64              `json:"weighted_units"`
	UnitCount    int                  `json:"unit_count"`
	Thresholds   []ThresholdAggregate `json:"thresholds"`
	Incarcerated map[Stratum]float64  `json:"incarcerated,omitempty"`
}

// At returns the aggregate for a threshold
func (c CountyEligibility) At(t Threshold) ThresholdAggregate {
	for _, agg := range c.Thresholds {
		if agg.Threshold == t {
			return agg
		}
	}
	return ThresholdAggregate{Threshold: t}
}

// ThresholdLinkage is the program comparison at one threshold
type ThresholdLinkage struct {
	Threshold ThresholdAggregate `json:"eligibility"`
	// AllocationRate is program units divided by eligible units; nil when there are
	// no eligible units or no usable unit count
	AllocationRate *float64 `json:"allocation_rate"`
	// Gap is eligible units minus program units, signed; nil without a usable unit count
	Gap *float64 `json:"gap"`
}

// CountySummary is one output row per county, year and program
type CountySummary struct {
	StateFIPS    string  `json:"statefip"`
	CountyID     string  `json:"county_id"`
	CountyName   string  `json:"county_name"`
	Year         int     `json:"year"`
	ProgramLabel string  `json:"program_label"`
	Units        float64 `json:"weighted_units"`

	ProgramMatched    bool               `json:"program_matched"`
	ProgramUnits      *float64           `json:"program_units"`
	UnitsSuppressed   bool               `json:"units_suppressed"`
	ProgramAttributes map[string]float64 `json:"program_attributes,omitempty"`

	Thresholds []ThresholdLinkage `json:"thresholds"`
}

// At returns the linkage for a threshold
func (s CountySummary) At(t Threshold) ThresholdLinkage {
	for _, l := range s.Thresholds {
		if l.Threshold.Threshold == t {
			return l
		}
	}
	return ThresholdLinkage{Threshold: ThresholdAggregate{Threshold: t}}
}
