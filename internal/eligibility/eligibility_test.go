package eligibility

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hudlink/internal/audit"
	"hudlink/internal/crosswalk"
	apperrors "hudlink/internal/errors"
	"hudlink/internal/household"
	"hudlink/internal/imputation"
	"hudlink/internal/income"
	"hudlink/internal/shared/testutil"
	"hudlink/pkg/contracts/domain"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestAggregate(t *testing.T) {
	values := []decimal.Decimal{d(30000), d(28000), d(30000), d(35000)}

	tests := []struct {
		policy domain.AggregationPolicy
		want   string
	}{
		{domain.AggregateMax, "35000"},
		{domain.AggregateMin, "28000"},
		{domain.AggregateMean, "30750"},
		{domain.AggregateMedian, "30000"},
		{domain.AggregateMode, "30000"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			got, err := Aggregate(tt.policy, values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAggregate_EdgeCases(t *testing.T) {
	got, err := Aggregate(domain.AggregateMedian, []decimal.Decimal{d(1), d(2)})
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.String())

	got, err = Aggregate(domain.AggregateMode, []decimal.Decimal{d(5), d(3), d(5), d(3)})
	require.NoError(t, err)
	assert.Equal(t, "3", got.String(), "ties go to the smallest value")

	_, err = Aggregate(domain.AggregateMax, nil)
	assert.Error(t, err)

	_, err = Aggregate("average", []decimal.Decimal{d(1), d(2)})
	assert.Error(t, err)
}

func TestLimitTable_AggregatesAndFlags(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	log := audit.NewLog(logger)

	rows := testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
		domain.AMI30: {20000, 23000},
		domain.AMI50: {33000, 38000},
		domain.AMI80: {53000, 60000},
	})
	rows = append(rows, domain.IncomeLimit{CountyID: "06001", Year: 2021, HouseholdSize: 1, Threshold: domain.AMI50, Limit: d(35000)})

	for _, tt := range []struct {
		policy domain.AggregationPolicy
		want   int64
	}{
		{domain.AggregateMax, 35000},
		{domain.AggregateMin, 33000},
	} {
		table, err := NewLimitTable(context.Background(), rows, tt.policy, logger, log)
		require.NoError(t, err)
		got, err := table.Lookup(domain.LimitKey{CountyID: "06001", Year: 2021, HouseholdSize: 1, Threshold: domain.AMI50})
		require.NoError(t, err)
		assert.True(t, d(tt.want).Equal(got), "%s: got %s", tt.policy, got)
	}
	assert.Equal(t, 2, log.CountByKind()[domain.FlagLimitsAggregated])
}

func TestLimitTable_MissingKey(t *testing.T) {
	table, err := NewLimitTable(context.Background(), testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
		domain.AMI30: {20000},
	}), domain.AggregateMax, nil, nil)
	require.NoError(t, err)

	_, err = table.Lookup(domain.LimitKey{CountyID: "06001", Year: 2022, HouseholdSize: 1, Threshold: domain.AMI30})
	var invalid *apperrors.InvalidIncomeLimitLookupError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 2022, invalid.Year)
	assert.Equal(t, 30, invalid.Threshold)
}

func TestLimitTable_NormalizesPolicy(t *testing.T) {
	rows := testutil.Limits("06001", 2021, map[domain.Threshold][]int64{domain.AMI30: {20000}})
	rows = append(rows, domain.IncomeLimit{CountyID: "06001", Year: 2021, HouseholdSize: 1, Threshold: domain.AMI30, Limit: d(22000)})

	table, err := NewLimitTable(context.Background(), rows, " MAX ", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AggregateMax, table.Policy())

	got, err := table.Lookup(domain.LimitKey{CountyID: "06001", Year: 2021, HouseholdSize: 1, Threshold: domain.AMI30})
	require.NoError(t, err)
	assert.True(t, d(22000).Equal(got))
}

func TestLimitTable_RejectsBadPolicyAndRows(t *testing.T) {
	_, err := NewLimitTable(context.Background(), nil, "average", nil, nil)
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))

	_, err = NewLimitTable(context.Background(), []domain.IncomeLimit{
		{CountyID: "06001", Year: 2021, HouseholdSize: 9, Threshold: domain.AMI30, Limit: d(1)},
	}, domain.AggregateMax, nil, nil)
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))
}

func limitsTable(t *testing.T, log *audit.Log, rows ...[]domain.IncomeLimit) *LimitTable {
	t.Helper()
	var all []domain.IncomeLimit
	for _, r := range rows {
		all = append(all, r...)
	}
	table, err := NewLimitTable(context.Background(), all, domain.AggregateMax, nil, log)
	require.NoError(t, err)
	return table
}

func TestClassifier_ThresholdsAreNested(t *testing.T) {
	log := audit.NewLog(nil)
	// published limits out of order: 30% above 50%
	table := limitsTable(t, log, testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
		domain.AMI30: {40000},
		domain.AMI50: {30000},
		domain.AMI80: {60000},
	}))
	c := NewClassifier(table, false, nil)

	for _, inc := range []int64{-100, 0, 25000, 35000, 45000, 59999, 60000, 60001} {
		unit := domain.HouseholdRecord{CountyID: "06001", SampleYear: 2021, FamilySize: 1, SizeBucket: 1, Income: d(inc)}
		got, err := c.Classify(unit)
		require.NoError(t, err)
		if got.Eligible30 {
			assert.True(t, got.Eligible50, "income %d", inc)
		}
		if got.Eligible50 {
			assert.True(t, got.Eligible80, "income %d", inc)
		}
	}
	assert.Equal(t, 1, log.CountByKind()[domain.FlagLimitsNotNested])
}

func TestClassifier_GroupQuartersSuppression(t *testing.T) {
	table := limitsTable(t, nil, testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
		domain.AMI30: {20000}, domain.AMI50: {30000}, domain.AMI80: {50000},
	}))

	tests := []struct {
		name    string
		exclude bool
		gq      domain.GroupQuartersType
		want    bool
	}{
		{"institutional excluded", true, domain.GroupQuartersInstitutional, false},
		{"institutional kept", false, domain.GroupQuartersInstitutional, true},
		{"non-institutional not affected", true, domain.GroupQuartersNonInstitutional, true},
		{"household not affected", true, domain.GroupQuartersNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(table, tt.exclude, nil)
			unit := domain.HouseholdRecord{SerialNumber: "1", CountyID: "06001", SampleYear: 2021, SizeBucket: 1, GroupQuarters: tt.gq, Income: decimal.Zero}

			out, err := c.ClassifyAll(context.Background(), []domain.HouseholdRecord{unit})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[0].Eligible30)
			assert.Equal(t, tt.want, out[0].Eligible50)
			assert.Equal(t, tt.want, out[0].Eligible80)
		})
	}
}

func TestClassifier_MissingLimitIsFatal(t *testing.T) {
	table := limitsTable(t, nil, testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
		domain.AMI30: {20000}, domain.AMI50: {30000}, domain.AMI80: {50000},
	}))
	c := NewClassifier(table, false, nil)

	_, err := c.ClassifyAll(context.Background(), []domain.HouseholdRecord{
		{SerialNumber: "1-06003-0", CountyID: "06003", SampleYear: 2021, SizeBucket: 1},
	})
	var invalid *apperrors.InvalidIncomeLimitLookupError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "06003", invalid.CountyID)
}

func TestClassifier_LargeFamilyUsesEightPersonLimit(t *testing.T) {
	table := limitsTable(t, nil, testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
		domain.AMI30: {1, 1, 1, 1, 1, 1, 1, 40000},
		domain.AMI50: {1, 1, 1, 1, 1, 1, 1, 60000},
		domain.AMI80: {1, 1, 1, 1, 1, 1, 1, 90000},
	}))
	c := NewClassifier(table, false, nil)

	got, err := c.Classify(domain.HouseholdRecord{CountyID: "06001", SampleYear: 2021, FamilySize: 11, Income: d(39000)})
	require.NoError(t, err)
	assert.True(t, got.Eligible30)
}

// A household in a PUMA split 60/40 between two counties with different
// limits is eligible in one county and not the other.
func TestPipeline_FanOutAgainstCountyLimits(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)
	log := audit.NewLog(logger)

	resolver := crosswalk.NewResolver(crosswalk.DefaultVintagePolicy, logger, log)
	require.NoError(t, resolver.Load(ctx, domain.Vintage2022, []domain.CountyAllocation{
		{PUMA: "100", CountyID: "06001", CountyName: "County A", Fraction: 0.6},
		{PUMA: "100", CountyID: "06003", CountyName: "County B", Fraction: 0.4},
	}))

	recs := []domain.SurveyRecord{
		testutil.NewSurvey("1", 1).InPUMA("06", "100").Weights(100, 50).Family(1, 1, 2).Income("HHINCOME", 20000).Build(),
		testutil.NewSurvey("1", 2).InPUMA("06", "100").Weights(100, 50).Family(1, 1, 2).Income("HHINCOME", 20000).Build(),
	}
	imputed, err := imputation.NewImputer(resolver, 1e-6, logger, log).Impute(ctx, recs)
	require.NoError(t, err)

	units, err := household.NewSplitter(household.Options{Tolerance: 1e-6}, logger, log).Build(ctx, imputed.Records)
	require.NoError(t, err)
	units = income.NewNormalizer(income.Options{}, logger, log).Normalize(ctx, units)

	table := limitsTable(t, log,
		testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
			domain.AMI30: {15000, 18000}, domain.AMI50: {25000, 30000}, domain.AMI80: {40000, 48000},
		}),
		testutil.Limits("06003", 2021, map[domain.Threshold][]int64{
			domain.AMI30: {9000, 11000}, domain.AMI50: {15000, 18000}, domain.AMI80: {24000, 28000},
		}),
	)
	classified, err := NewClassifier(table, false, logger).ClassifyAll(ctx, units)
	require.NoError(t, err)

	require.Len(t, classified, 2)
	a, b := classified[0], classified[1]
	assert.Equal(t, "06001", a.CountyID)
	assert.InDelta(t, 60, a.Weight, 1e-9)
	assert.Equal(t, 2, a.FamilySize)
	assert.True(t, a.Eligible50)

	assert.Equal(t, "06003", b.CountyID)
	assert.InDelta(t, 40, b.Weight, 1e-9)
	assert.False(t, b.Eligible50)
	assert.True(t, b.Eligible80)
}

// Splitting after a fan-out keeps each county's share of the household and
// the household total.
func TestPipeline_SplitAfterFanOutConservesWeight(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)
	log := audit.NewLog(logger)

	resolver := crosswalk.NewResolver(crosswalk.DefaultVintagePolicy, logger, log)
	require.NoError(t, resolver.Load(ctx, domain.Vintage2022, []domain.CountyAllocation{
		{PUMA: "100", CountyID: "06001", CountyName: "County A", Fraction: 0.6},
		{PUMA: "100", CountyID: "06003", CountyName: "County B", Fraction: 0.4},
	}))

	head := testutil.NewSurvey("1", 1).InPUMA("06", "100").Weights(100, 30).Family(1, 2, 2).Income("INCWAGE", 12000).Build()
	spouse := testutil.NewSurvey("1", 2).InPUMA("06", "100").Weights(100, 30).Family(1, 2, 2).Income("INCWAGE", 6000).Build()
	spouse.Person.Relate = 2
	lodger := testutil.NewSurvey("1", 3).InPUMA("06", "100").Weights(100, 40).Family(2, 2, 1).Income("INCWAGE", 30000).Build()
	lodger.Person.Relate = 12
	recs := []domain.SurveyRecord{head, spouse, lodger}

	imputed, err := imputation.NewImputer(resolver, 1e-6, logger, log).Impute(ctx, recs)
	require.NoError(t, err)
	require.Len(t, imputed.Records, 6)

	units, err := household.NewSplitter(household.Options{SplitFamilies: true, Tolerance: 1e-6}, logger, log).Build(ctx, imputed.Records)
	require.NoError(t, err)
	require.Len(t, units, 4)

	perCounty := map[string]float64{}
	total := 0.0
	for _, u := range units {
		assert.True(t, u.IsSplit())
		perCounty[u.CountyID] += u.Weight
		total += u.Weight
	}
	assert.InDelta(t, 60, perCounty["06001"], 1e-6)
	assert.InDelta(t, 40, perCounty["06003"], 1e-6)
	assert.InDelta(t, head.HouseholdWeight, total, 1e-6)

	assert.Equal(t, "06001", units[0].CountyID)
	assert.InDelta(t, 36, units[0].Weight, 1e-9)
	assert.Equal(t, 2, units[0].FamilySize)
	assert.InDelta(t, 24, units[1].Weight, 1e-9)
	assert.Equal(t, 1, units[1].FamilySize)

	units = income.NewNormalizer(income.Options{}, logger, log).Normalize(ctx, units)
	table := limitsTable(t, log,
		testutil.Limits("06001", 2021, map[domain.Threshold][]int64{
			domain.AMI30: {15000, 18000}, domain.AMI50: {25000, 30000}, domain.AMI80: {40000, 48000},
		}),
		testutil.Limits("06003", 2021, map[domain.Threshold][]int64{
			domain.AMI30: {9000, 11000}, domain.AMI50: {15000, 18000}, domain.AMI80: {24000, 28000},
		}),
	)
	classified, err := NewClassifier(table, false, logger).ClassifyAll(ctx, units)
	require.NoError(t, err)
	require.Len(t, classified, 4)
	assert.True(t, classified[0].Eligible30, "the reference family earns 18000 for two people")
	assert.False(t, classified[1].Eligible50, "the lodger earns 30000 alone")
	assert.True(t, classified[1].Eligible80)
}
