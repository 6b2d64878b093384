package operations

import (
	"context"
	"fmt"
	"log/slog"

	"hudlink/internal/crosswalk"
	"hudlink/internal/eligibility"
	apperrors "hudlink/internal/errors"
	"hudlink/internal/household"
	"hudlink/internal/imputation"
	"hudlink/internal/incarceration"
	"hudlink/internal/income"
	"hudlink/internal/linkage"
	"hudlink/pkg/contracts/domain"
)

// NewPipeline registers the ten steps of a state/year unit. The export step
// prepares every sink before committing any, and commits in sink order, so
// the sink whose commit must be the unit's last visible action goes last.
func NewPipeline(source Source, sinks ...Sink) (*Registry, error) {
	r := NewRegistry()
	steps := []Step{
		NewLoadStage(source),
		NewCrosswalkStage(),
		NewImputationStage(),
		NewHouseholdStage(),
		NewIncomeStage(),
		NewEligibilityStage(),
		NewAggregateStage(),
		NewIncarcerationStage(),
		NewLinkageStage(),
		NewExportStage(sinks...),
	}
	for _, s := range steps {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadStage reads the unit's source tables
type LoadStage struct {
	BaseStage
	source Source
}

// NewLoadStage creates the load step
func NewLoadStage(source Source) *LoadStage {
	return &LoadStage{BaseStage: NewBaseStage(StepIDLoad, StepNameLoad), source: source}
}

// Validate requires a source
func (s *LoadStage) Validate(state *OperationState) error {
	if s.source == nil {
		return fmt.Errorf("no input source configured")
	}
	return s.BaseStage.Validate(state)
}

// Execute loads the inputs
func (s *LoadStage) Execute(ctx context.Context, state *OperationState) error {
	in, err := s.source.Load(ctx, state.Unit)
	if err != nil {
		return err
	}
	if len(in.Survey) == 0 {
		return apperrors.NewInputError(fmt.Sprintf("%s: survey extract has no rows", state.Unit), nil)
	}
	state.Data.Inputs = in
	state.RecordRows(s.ID(), 0, len(in.Survey))
	return nil
}

// CrosswalkStage builds the PUMA resolver from both vintages
type CrosswalkStage struct{ BaseStage }

// NewCrosswalkStage creates the crosswalk step
func NewCrosswalkStage() *CrosswalkStage {
	return &CrosswalkStage{NewBaseStage(StepIDCrosswalk, StepNameCrosswalk, StepIDLoad)}
}

// Validate requires loaded inputs
func (s *CrosswalkStage) Validate(state *OperationState) error {
	return requireInputs(s.ID(), state)
}

// Execute loads every vintage present. A missing vintage surfaces later as a
// missing crosswalk entry for the records that need it.
func (s *CrosswalkStage) Execute(ctx context.Context, state *OperationState) error {
	resolver := crosswalk.NewResolver(state.Options.VintagePolicy, state.Logger, state.Audit)
	rows := 0
	for _, v := range domain.Vintages {
		alloc := state.Data.Inputs.Crosswalks[v]
		if len(alloc) == 0 {
			state.Logger.WarnContext(ctx, "crosswalk vintage not provided", slog.String("vintage", v.String()))
			continue
		}
		if err := resolver.Load(ctx, v, alloc); err != nil {
			return err
		}
		rows += len(alloc)
	}
	state.Data.Resolver = resolver
	state.RecordRows(s.ID(), rows, resolver.PUMACount(domain.Vintage2012)+resolver.PUMACount(domain.Vintage2022))
	return nil
}

// ImputationStage places records in counties
type ImputationStage struct{ BaseStage }

// NewImputationStage creates the imputation step
func NewImputationStage() *ImputationStage {
	return &ImputationStage{NewBaseStage(StepIDImputation, StepNameImputation, StepIDCrosswalk)}
}

// Validate requires the resolver
func (s *ImputationStage) Validate(state *OperationState) error {
	if err := requireInputs(s.ID(), state); err != nil {
		return err
	}
	if state.Data.Resolver == nil {
		return fmt.Errorf("%s: crosswalk resolver not built", s.ID())
	}
	return nil
}

// Execute runs the imputer
func (s *ImputationStage) Execute(ctx context.Context, state *OperationState) error {
	im := imputation.NewImputer(state.Data.Resolver, state.Options.WeightTolerance, state.Logger, state.Audit)
	res, err := im.Impute(ctx, state.Data.Inputs.Survey)
	if err != nil {
		return err
	}
	state.Data.Imputation = res
	if st := state.GetStage(s.ID()); st != nil {
		st.SetMetadata("direct", res.Direct)
		st.SetMetadata("assigned", res.Assigned)
		st.SetMetadata("fanned_out", res.FannedOut)
	}
	state.RecordRows(s.ID(), len(state.Data.Inputs.Survey), len(res.Records))
	return nil
}

// HouseholdStage groups located person rows into units
type HouseholdStage struct{ BaseStage }

// NewHouseholdStage creates the household step
func NewHouseholdStage() *HouseholdStage {
	return &HouseholdStage{NewBaseStage(StepIDHousehold, StepNameHousehold, StepIDImputation)}
}

// Validate requires located records
func (s *HouseholdStage) Validate(state *OperationState) error {
	if err := s.BaseStage.Validate(state); err != nil {
		return err
	}
	if state.Data.Imputation == nil {
		return fmt.Errorf("%s: no located records", s.ID())
	}
	return nil
}

// Execute builds households, splitting families when configured
func (s *HouseholdStage) Execute(ctx context.Context, state *OperationState) error {
	sp := household.NewSplitter(household.Options{
		SplitFamilies:       state.Options.SplitFamilies,
		Tolerance:           state.Options.WeightTolerance,
		AdditionalVariables: state.Options.AdditionalVariables,
	}, state.Logger, state.Audit)
	units, err := sp.Build(ctx, state.Data.Imputation.Records)
	if err != nil {
		return err
	}
	state.Data.Households = units
	state.RecordRows(s.ID(), len(state.Data.Imputation.Records), len(units))
	return nil
}

// IncomeStage totals unit income
type IncomeStage struct{ BaseStage }

// NewIncomeStage creates the income step
func NewIncomeStage() *IncomeStage {
	return &IncomeStage{NewBaseStage(StepIDIncome, StepNameIncome, StepIDHousehold)}
}

// Execute normalizes income
func (s *IncomeStage) Execute(ctx context.Context, state *OperationState) error {
	n := income.NewNormalizer(income.Options{Floor: state.Options.IncomeFloor}, state.Logger, state.Audit)
	state.Data.Units = n.Normalize(ctx, state.Data.Households)
	state.RecordRows(s.ID(), len(state.Data.Households), len(state.Data.Units))
	return ctx.Err()
}

// EligibilityStage classifies every unit at the three thresholds
type EligibilityStage struct{ BaseStage }

// NewEligibilityStage creates the eligibility step
func NewEligibilityStage() *EligibilityStage {
	return &EligibilityStage{NewBaseStage(StepIDEligibility, StepNameEligibility, StepIDIncome)}
}

// Validate requires income limits
func (s *EligibilityStage) Validate(state *OperationState) error {
	if err := requireInputs(s.ID(), state); err != nil {
		return err
	}
	if len(state.Data.Inputs.IncomeLimits) == 0 {
		return fmt.Errorf("%s: no income limits loaded", s.ID())
	}
	return nil
}

// Execute builds the limit table and classifies
func (s *EligibilityStage) Execute(ctx context.Context, state *OperationState) error {
	table, err := eligibility.NewLimitTable(ctx, state.Data.Inputs.IncomeLimits, state.Options.AggregationPolicy, state.Logger, state.Audit)
	if err != nil {
		return err
	}
	c := eligibility.NewClassifier(table, state.Options.ExcludeGroupQuarters, state.Logger)
	units, err := c.ClassifyAll(ctx, state.Data.Units)
	if err != nil {
		return err
	}
	state.Data.Units = units
	state.RecordRows(s.ID(), len(units), len(units))
	return nil
}

// AggregateStage sums eligible weight per county
type AggregateStage struct{ BaseStage }

// NewAggregateStage creates the aggregate step
func NewAggregateStage() *AggregateStage {
	return &AggregateStage{NewBaseStage(StepIDAggregate, StepNameAggregate, StepIDEligibility)}
}

// Execute aggregates classified units
func (s *AggregateStage) Execute(ctx context.Context, state *OperationState) error {
	state.Data.Counties = linkage.Aggregate(ctx, state.Data.Units, state.Logger)
	state.RecordRows(s.ID(), len(state.Data.Units), len(state.Data.Counties))
	return ctx.Err()
}

// IncarcerationStage removes incarcerated counts from county aggregates
type IncarcerationStage struct{ BaseStage }

// NewIncarcerationStage creates the incarceration step
func NewIncarcerationStage() *IncarcerationStage {
	return &IncarcerationStage{NewBaseStage(StepIDIncarceration, StepNameIncarceration, StepIDAggregate)}
}

// Execute adjusts counties. With institutional group quarters excluded the
// counts are not subtracted a second time.
func (s *IncarcerationStage) Execute(ctx context.Context, state *OperationState) error {
	records := state.Data.Inputs.Incarceration
	adj := incarceration.NewAdjuster(incarceration.Options{
		Stratified: state.Options.IncarcerationStratified,
		Skip:       state.Options.ExcludeGroupQuarters,
	}, state.Logger, state.Audit)
	state.Data.Counties = adj.Adjust(ctx, state.Data.Counties, records)
	state.RecordRows(s.ID(), len(records), len(state.Data.Counties))
	return ctx.Err()
}

// LinkageStage joins program records to the county aggregates
type LinkageStage struct{ BaseStage }

// NewLinkageStage creates the linkage step
func NewLinkageStage() *LinkageStage {
	return &LinkageStage{NewBaseStage(StepIDLinkage, StepNameLinkage, StepIDIncarceration)}
}

// Execute links every configured program label
func (s *LinkageStage) Execute(ctx context.Context, state *OperationState) error {
	l := linkage.NewLinker(state.Logger, state.Audit)
	programs := state.Data.Inputs.Programs
	state.Data.Summaries = l.Link(ctx, state.Data.Counties, programs, state.Options.ProgramLabels)
	rows := 0
	for _, summaries := range state.Data.Summaries {
		rows += len(summaries)
	}
	state.RecordRows(s.ID(), len(programs), rows)
	return ctx.Err()
}

// ExportStage hands the completed unit to the sinks
type ExportStage struct {
	BaseStage
	sinks []Sink
}

// NewExportStage creates the export step
func NewExportStage(sinks ...Sink) *ExportStage {
	return &ExportStage{BaseStage: NewBaseStage(StepIDExport, StepNameExport, StepIDLinkage), sinks: sinks}
}

// Execute prepares the output in every sink, then commits them. A failed
// prepare or a cancellation before the first commit discards everything.
func (s *ExportStage) Execute(ctx context.Context, state *OperationState) error {
	out := state.Output()
	pending := make([]Pending, 0, len(s.sinks))
	abort := func(ps []Pending) {
		cleanup := context.WithoutCancel(ctx)
		for i := len(ps) - 1; i >= 0; i-- {
			ps[i].Abort(cleanup)
		}
	}

	for _, sink := range s.sinks {
		if err := ctx.Err(); err != nil {
			abort(pending)
			return err
		}
		p, err := sink.Prepare(ctx, out)
		if err != nil {
			abort(pending)
			return err
		}
		pending = append(pending, p)
	}
	if err := ctx.Err(); err != nil {
		abort(pending)
		return err
	}

	for i, p := range pending {
		if err := p.Commit(ctx); err != nil {
			abort(pending[i+1:])
			return err
		}
	}
	state.RecordRows(s.ID(), len(out.Households), len(out.Households)+len(out.Counties))
	return nil
}

func requireInputs(stepID string, state *OperationState) error {
	if state == nil || state.Data == nil || state.Data.Inputs == nil {
		return fmt.Errorf("%s: inputs not loaded", stepID)
	}
	return nil
}
