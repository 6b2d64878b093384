package operations

import (
	"time"

	"hudlink/internal/config"
	"hudlink/internal/crosswalk"
	"hudlink/internal/linkage"
	"hudlink/pkg/contracts/domain"

	"github.com/shopspring/decimal"
)

// Step IDs in pipeline order
const (
	StepIDLoad          = "load"
	StepIDCrosswalk     = "crosswalk"
	StepIDImputation    = "imputation"
	StepIDHousehold     = "household"
	StepIDIncome        = "income"
	StepIDEligibility   = "eligibility"
	StepIDAggregate     = "aggregate"
	StepIDIncarceration = "incarceration"
	StepIDLinkage       = "linkage"
	StepIDExport        = "export"
)

// Step names
const (
	StepNameLoad          = "Load Inputs"
	StepNameCrosswalk     = "Crosswalk Resolver"
	StepNameImputation    = "County Imputer"
	StepNameHousehold     = "Household Splitter"
	StepNameIncome        = "Income Normalizer"
	StepNameEligibility   = "Eligibility Classifier"
	StepNameAggregate     = "County Aggregation"
	StepNameIncarceration = "Incarceration Adjuster"
	StepNameLinkage       = "Program Linker"
	StepNameExport        = "Export"
)

// Metadata keys reported by steps
const (
	MetaRowsIn  = "rows_in"
	MetaRowsOut = "rows_out"
)

// Unit-of-analysis suffixes used in output names
const (
	ModeHousehold = "HH"
	ModeFamily    = "FAM"
)

// Options is the per-run pipeline configuration handed to every step.
type Options struct {
	ProgramLabels           []string                 `json:"program_labels"`
	SplitFamilies           bool                     `json:"split_households_into_families"`
	ExcludeGroupQuarters    bool                     `json:"exclude_group_quarters"`
	AggregationPolicy       domain.AggregationPolicy `json:"income_limit_agg"`
	AdditionalVariables     []string                 `json:"additional_variables,omitempty"`
	IncomeFloor             *decimal.Decimal         `json:"income_floor,omitempty"`
	IncarcerationStratified bool                     `json:"incarceration_stratified"`
	VintagePolicy           crosswalk.VintagePolicy  `json:"-"`
	WeightTolerance         float64                  `json:"weight_tolerance"`
}

// Mode returns HH for whole households and FAM when families are split out
func (o Options) Mode() string {
	if o.SplitFamilies {
		return ModeFamily
	}
	return ModeHousehold
}

// OptionsFromConfig builds run options from a validated pipeline section
func OptionsFromConfig(cfg config.PipelineConfig) (Options, error) {
	policy, err := domain.ParseAggregationPolicy(cfg.IncomeLimitAgg)
	if err != nil {
		return Options{}, err
	}
	labels, err := linkage.ExpandLabels(cfg.ProgramLabels)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		ProgramLabels:           labels,
		SplitFamilies:           cfg.SplitHouseholds,
		ExcludeGroupQuarters:    cfg.ExcludeGroupQuarters,
		AggregationPolicy:       policy,
		AdditionalVariables:     append([]string(nil), cfg.AdditionalVariables...),
		IncarcerationStratified: cfg.IncarcerationStratified,
		VintagePolicy: crosswalk.VintagePolicy{
			Cutover:        cfg.VintageCutover,
			FullRecodeYear: cfg.FullRecodeYear,
		},
		WeightTolerance: cfg.WeightTolerance,
	}
	if cfg.IncomeFloor != nil {
		floor := decimal.NewFromFloat(*cfg.IncomeFloor)
		opts.IncomeFloor = &floor
	}
	return opts, nil
}

// Request asks the manager to run one state/year unit
type Request struct {
	ID      string      `json:"id"`
	Unit    domain.Unit `json:"unit"`
	Options Options     `json:"options"`
}

// Response reports the outcome of one unit
type Response struct {
	ID       string                  `json:"id"`
	Unit     domain.Unit             `json:"unit"`
	Status   OperationStatus         `json:"status"`
	Duration time.Duration           `json:"duration"`
	Steps    map[string]*StepState   `json:"steps"`
	Flags    map[domain.FlagKind]int `json:"flags,omitempty"`
	Error    string                  `json:"error,omitempty"`
}
