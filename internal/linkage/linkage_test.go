package linkage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hudlink/internal/audit"
	"hudlink/internal/shared/testutil"
	"hudlink/pkg/contracts/domain"
)

func eligibleUnit(county string, weight float64, at domain.Threshold, race int, inds ...domain.Indicator) domain.HouseholdRecord {
	u := domain.HouseholdRecord{
		StateFIPS:  "06",
		CountyID:   county,
		CountyName: "County " + county,
		SampleYear: 2021,
		Weight:     weight,
		Income:     decimal.NewFromInt(1000),
		Demographics: domain.Demographics{
			Race:       race,
			Indicators: domain.IndicatorSet{},
		},
	}
	for _, ind := range inds {
		u.Demographics.Indicators[ind] = true
	}
	switch at {
	case domain.AMI30:
		u.Eligible30, u.Eligible50, u.Eligible80 = true, true, true
	case domain.AMI50:
		u.Eligible50, u.Eligible80 = true, true
	case domain.AMI80:
		u.Eligible80 = true
	}
	return u
}

func TestAggregate(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	units := []domain.HouseholdRecord{
		eligibleUnit("06003", 10, domain.AMI30, 1, domain.IndicatorVeteran),
		eligibleUnit("06001", 20, domain.AMI50, 2, domain.IndicatorVeteran, domain.IndicatorRenter),
		eligibleUnit("06001", 30, domain.AMI80, 1),
		eligibleUnit("06001", 40, 0, 1),
	}

	out := Aggregate(context.Background(), units, logger)
	require.Len(t, out, 2)
	assert.Equal(t, "06001", out[0].CountyID)

	c := out[0]
	assert.Equal(t, 90.0, c.Units)
	assert.Equal(t, 3, c.UnitCount)
	assert.Equal(t, 0.0, c.At(domain.AMI30).Unadjusted)
	assert.Equal(t, 20.0, c.At(domain.AMI50).Unadjusted)
	assert.Equal(t, 50.0, c.At(domain.AMI80).Eligible)
	assert.Equal(t, 20.0, c.At(domain.AMI80).Strata[domain.StratumMinority])
	assert.Equal(t, 30.0, c.At(domain.AMI80).Strata[domain.StratumWhite])

	share, ok := c.At(domain.AMI80).IndicatorShare(domain.IndicatorVeteran)
	require.True(t, ok)
	assert.InDelta(t, 40.0, share, 1e-9)
	_, ok = c.At(domain.AMI30).IndicatorShare(domain.IndicatorVeteran)
	assert.False(t, ok)
}

func countyAgg(id, name string, eligible float64) domain.CountyEligibility {
	c := domain.CountyEligibility{StateFIPS: "06", CountyID: id, CountyName: name, Year: 2021}
	for _, t := range domain.Thresholds {
		c.Thresholds = append(c.Thresholds, domain.ThresholdAggregate{Threshold: t, Unadjusted: eligible, Eligible: eligible})
	}
	return c
}

func TestLinker_Link(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	log := audit.NewLog(logger)
	l := NewLinker(logger, log)

	counties := []domain.CountyEligibility{
		countyAgg("06001", "Alameda County", 1000),
		countyAgg("06003", "Alpine County", 0),
		countyAgg("06005", "Amador County", 50),
		countyAgg("06007", "Butte County", 100),
		countyAgg("06009", "Calaveras County", 10),
	}
	programs := []domain.ProgramRecord{
		{CountyID: "06001", ProgramLabel: "VO", TotalUnits: 400},
		{CountyID: "06003", ProgramLabel: "VO", TotalUnits: 5},
		{CountyName: "AMADOR", ProgramLabel: "Housing Choice Vouchers", TotalUnits: 80},
		{CountyID: "06007", ProgramLabel: "VO", TotalUnits: -4},
		{CountyID: "06099", ProgramLabel: "VO", TotalUnits: 12},
		{CountyID: "06001", ProgramLabel: "PH", TotalUnits: 99},
	}

	out := l.Link(context.Background(), counties, programs, []string{ProgramVouchers, ProgramLIHTC})
	require.Contains(t, out, ProgramVouchers)
	assert.NotContains(t, out, ProgramLIHTC)

	rows := out[ProgramVouchers]
	require.Len(t, rows, 5)

	alameda := rows[0].At(domain.AMI50)
	require.NotNil(t, alameda.AllocationRate)
	assert.InDelta(t, 0.4, *alameda.AllocationRate, 1e-12)
	assert.Equal(t, 600.0, *alameda.Gap)

	alpine := rows[1].At(domain.AMI50)
	assert.Nil(t, alpine.AllocationRate, "no eligible units")
	assert.Equal(t, -5.0, *alpine.Gap)

	amador := rows[2]
	assert.True(t, amador.ProgramMatched, "matched by folded name")
	assert.Equal(t, -30.0, *amador.At(domain.AMI30).Gap, "over-provision is a negative gap")

	butte := rows[3]
	assert.True(t, butte.UnitsSuppressed)
	assert.Equal(t, -4.0, *butte.ProgramUnits)
	assert.Nil(t, butte.At(domain.AMI80).Gap)
	assert.Nil(t, butte.At(domain.AMI80).AllocationRate)

	calaveras := rows[4]
	assert.False(t, calaveras.ProgramMatched)
	assert.Nil(t, calaveras.ProgramUnits)

	counts := log.CountByKind()
	assert.Equal(t, 1, counts[domain.FlagProgramMissing])
	assert.Equal(t, 1, counts[domain.FlagUnmatchedCounty])
	assert.Equal(t, 1, counts[domain.FlagUnitsSuppressed])
	assert.Equal(t, 1, counts[domain.FlagUnmatchedProgram])
}

func TestLinker_JoinsRowOfTheUnitYear(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	log := audit.NewLog(logger)
	l := NewLinker(logger, log)

	counties := []domain.CountyEligibility{
		countyAgg("06001", "Alameda County", 1000),
		countyAgg("06003", "Alpine County", 10),
	}
	programs := []domain.ProgramRecord{
		{CountyID: "06001", Year: 2020, ProgramLabel: "VO", TotalUnits: 300},
		{CountyID: "06001", Year: 2021, ProgramLabel: "VO", TotalUnits: 400},
		{CountyID: "06003", Year: 2020, ProgramLabel: "VO", TotalUnits: 7},
		{CountyName: "Alpine", Year: 2019, ProgramLabel: "VO", TotalUnits: 6},
	}

	rows := l.Link(context.Background(), counties, programs, []string{ProgramVouchers})[ProgramVouchers]
	require.Len(t, rows, 2)

	alameda := rows[0]
	require.True(t, alameda.ProgramMatched)
	assert.Equal(t, 400.0, *alameda.ProgramUnits)
	assert.InDelta(t, 0.4, *alameda.At(domain.AMI50).AllocationRate, 1e-12)

	alpine := rows[1]
	assert.False(t, alpine.ProgramMatched, "only rows of other years exist")
	assert.Nil(t, alpine.ProgramUnits)

	counts := log.CountByKind()
	assert.Equal(t, 1, counts[domain.FlagUnmatchedCounty])
	assert.Zero(t, counts[domain.FlagUnmatchedProgram], "rows of other years are not orphans")
}

func TestExpandLabels(t *testing.T) {
	got, err := ExpandLabels([]string{"hcv", "Public Housing", "VOUCHERS", "PH", "811"})
	require.NoError(t, err)
	assert.Equal(t, []string{ProgramVouchers, ProgramPublicHousing, ProgramPRAC811}, got)

	_, err = ExpandLabels([]string{"Section 9"})
	assert.Error(t, err)
}

func TestSafeLabel(t *testing.T) {
	assert.Equal(t, "section_8_nc_sr", SafeLabel("Section 8 NC/SR"))
	assert.Equal(t, "summary_of_all_hud_programs", SafeLabel("Summary of All HUD Programs"))
	assert.Equal(t, "811_prac", SafeLabel("811/PRAC"))
}
