package exporter

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hudlink/internal/crosswalk"
	"hudlink/internal/linkage"
	"hudlink/internal/operations"
	"hudlink/pkg/contracts/domain"
)

func ptr(f float64) *float64 { return &f }

func readCSV(t *testing.T, path string) []map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	var out []map[string]string
	for _, rec := range records[1:] {
		row := make(map[string]string, len(rec))
		for i, h := range records[0] {
			row[h] = rec[i]
		}
		out = append(out, row)
	}
	return out
}

func testOutput() *operations.Output {
	unit := domain.NewUnit("CA", 2021)
	household := domain.HouseholdRecord{
		SerialNumber:    "2021000000001",
		SourceSerial:    "2021000000001",
		SampleYear:      2021,
		StateFIPS:       "06",
		CountyID:        "06001",
		CountyName:      "Alameda County",
		PUMA:            "00101",
		Vintage:         domain.Vintage2012,
		HouseholdWeight: 25,
		Weight:          15.000000000000002,
		PersonWeight:    25,
		FamilySize:      2,
		NumFamilies:     1,
		Income:          decimal.NewFromInt(52000),
		IncomeSource:    "HHINCOME",
		IncomeComponents: map[string]decimal.Decimal{
			domain.IncomeHousehold: decimal.NewFromInt(52000),
		},
		QualityFlags: []string{"a", "b"},
		Demographics: domain.Demographics{
			Race:       1,
			Sex:        2,
			Age:        45,
			Indicators: domain.IndicatorSet{domain.IndicatorFemaleHead: true},
			Additional: map[string]string{"TENURE_X": "a"},
		},
		SizeBucket: 2,
		Eligible50: true,
		Eligible80: true,
	}

	agg50 := domain.ThresholdAggregate{
		Threshold:  domain.AMI50,
		Unadjusted: 60,
		Removed:    10,
		Eligible:   50,
		Strata:     map[domain.Stratum]float64{domain.StratumWhite: 45, domain.StratumMinority: 15},
		Indicators: map[domain.Indicator]float64{domain.IndicatorFemaleHead: 15},
	}
	summary := domain.CountySummary{
		StateFIPS:         "06",
		CountyID:          "06001",
		CountyName:        "Alameda County",
		Year:              2021,
		ProgramLabel:      linkage.ProgramVouchers,
		Units:             100,
		ProgramMatched:    true,
		ProgramUnits:      ptr(30),
		ProgramAttributes: map[string]float64{"pct_occupied": 95},
		Thresholds: []domain.ThresholdLinkage{
			{Threshold: domain.ThresholdAggregate{Threshold: domain.AMI30}},
			{Threshold: agg50, AllocationRate: ptr(0.6), Gap: ptr(20)},
			{Threshold: domain.ThresholdAggregate{Threshold: domain.AMI80}},
		},
	}

	return &operations.Output{
		RunID:      "run-1",
		Unit:       unit,
		Options:    operations.Options{AdditionalVariables: []string{"TENURE_X"}},
		Households: []domain.HouseholdRecord{household},
		Summaries:  map[string][]domain.CountySummary{linkage.ProgramVouchers: {summary}},
		Labels:     []string{linkage.ProgramVouchers},
		Flags: []domain.DataQualityFlag{
			{Kind: domain.FlagUnmatchedCounty, Stage: "linkage", Key: "06003", Message: "no program row"},
		},
		Corrections: []crosswalk.Correction{
			{StateFIPS: "06", PUMA: "101", Vintage: domain.Vintage2012, SourceSum: 0.999, Magnitude: 0.001},
		},
	}
}

func TestFileNames(t *testing.T) {
	unit := domain.NewUnit("fl", 2023)
	assert.Equal(t, "FL_2023_eligibility_HH.csv", EligibilityFileName(unit, operations.ModeHousehold))
	assert.Equal(t, "FL_2023_section_8_nc_sr_linked_summary_FAM.csv", SummaryFileName(unit, linkage.ProgramSection8NCSR, operations.ModeFamily))
	assert.Equal(t, "FL_2023_audit.csv", AuditFileName(unit))
	assert.Equal(t, "FL_2023_summary_HH.xlsx", WorkbookFileName(unit, operations.ModeHousehold))
}

func TestExport_WritesUnitFiles(t *testing.T) {
	dir := t.TempDir()
	out := testOutput()

	files, err := NewExporter(Options{}, nil).Export(context.Background(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CA_2021_eligibility_HH.csv",
		"CA_2021_housing_choice_vouchers_linked_summary_HH.csv",
		"CA_2021_audit.csv",
	}, files)

	elig := readCSV(t, filepath.Join(dir, files[0]))
	require.Len(t, elig, 1)
	row := elig[0]
	assert.Equal(t, "06001", row["county_id"])
	assert.Equal(t, "Alameda County", row["County_Name"])
	assert.Equal(t, "15", row["weight"])
	assert.Equal(t, "52000", row["income"])
	assert.Equal(t, "52000", row[domain.IncomeHousehold])
	assert.Equal(t, "", row[domain.IncomeFamily])
	assert.Equal(t, "1", row["elig_female_head"])
	assert.Equal(t, "0", row["elig_male_head"])
	assert.Equal(t, "a", row["TENURE_X"])
	assert.Equal(t, "0", row["Eligibility_30%"])
	assert.Equal(t, "1", row["Eligibility_50%"])
	assert.Equal(t, "0", row["Weighted_Eligibility_Count_30%"])
	assert.Equal(t, "15", row["Weighted_Eligibility_Count_50%"])
	assert.Equal(t, "a;b", row["quality_flags"])
	assert.Equal(t, "household", row["gq"])

	sum := readCSV(t, filepath.Join(dir, files[1]))
	require.Len(t, sum, 1)
	s := sum[0]
	assert.Equal(t, "30", s["total_units"])
	assert.Equal(t, "50", s["Weighted_Eligibility_Count_50%"])
	assert.Equal(t, "60", s["Unadjusted_Eligibility_Count_50%"])
	assert.Equal(t, "10", s["Incarcerated_Removed_50%"])
	assert.Equal(t, "45", s["Weighted_white_Count_50%"])
	assert.Equal(t, "15", s["Weighted_elig_female_head_Count_50%"])
	assert.Equal(t, "25", s["% Eligible elig_female_head at 50%"])
	assert.Equal(t, "", s["% Eligible elig_female_head at 30%"])
	assert.Equal(t, "20", s["housing_choice_vouchers_gap_50%"])
	assert.Equal(t, "0.6", s["housing_choice_vouchers_allocation_rate_50%"])
	assert.Equal(t, "", s["housing_choice_vouchers_gap_30%"])
	assert.Equal(t, "95", s["pct_occupied"])

	audit := readCSV(t, filepath.Join(dir, files[2]))
	require.Len(t, audit, 2)
	assert.Equal(t, string(domain.FlagUnmatchedCounty), audit[0]["kind"])
	assert.Equal(t, "crosswalk_correction", audit[1]["kind"])
	assert.Equal(t, "2012/06/101", audit[1]["key"])
}

func TestExport_Workbook(t *testing.T) {
	dir := t.TempDir()
	out := testOutput()

	files, err := NewExporter(Options{Workbook: true}, nil).Export(context.Background(), dir, out)
	require.NoError(t, err)
	require.Len(t, files, 4)
	assert.Equal(t, "CA_2021_summary_HH.xlsx", files[3])

	f, err := excelize.OpenFile(filepath.Join(dir, files[3]))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"housing_choice_vouchers", "audit"}, f.GetSheetList())

	rows, err := f.GetRows("housing_choice_vouchers")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "statefip", rows[0][0])
	assert.Equal(t, "06", rows[1][0])

	rows, err = f.GetRows("audit")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestExport_NoProgramsStillWritesEligibility(t *testing.T) {
	dir := t.TempDir()
	out := testOutput()
	out.Labels = nil

	files, err := NewExporter(Options{}, nil).Export(context.Background(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"CA_2021_eligibility_HH.csv", "CA_2021_audit.csv"}, files)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.3", formatFloat(0.1+0.2))
	assert.Equal(t, "1250", formatFloat(1250))
	assert.Equal(t, "-4", formatFloat(-4))
	assert.Equal(t, "", formatOptional(nil))
	assert.Equal(t, "2.5", formatOptional(ptr(2.5)))
	assert.Equal(t, "1", formatFlag(true))
	assert.Equal(t, "false", formatBool(false))
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, "06001", cellValue("06001"))
	assert.Equal(t, 0.5, cellValue("0.5"))
	assert.Equal(t, 0.0, cellValue("0"))
	assert.Equal(t, 1250.0, cellValue("1250"))
	assert.Equal(t, "Alameda", cellValue("Alameda"))
	assert.Equal(t, "", cellValue(""))
}

func TestSummarySheetName(t *testing.T) {
	assert.Equal(t, "summary_of_all_hud_programs", SummarySheetName(linkage.ProgramAllHUD))
	long := SummarySheetName("A program label that is far longer than excel allows")
	assert.Len(t, long, maxSheetName)
}

func TestStreamWriter(t *testing.T) {
	w := NewCSVWriter(filepath.Join(t.TempDir(), "nested"), nil)
	stream, err := w.CreateStreamWriter("s.csv", []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, stream.WriteRecord([]string{"1", "x,y"}))
	require.NoError(t, stream.WriteRecord([]string{"2", ""}))
	assert.Equal(t, 2, stream.Rows())
	require.NoError(t, stream.Close())

	rows := readCSV(t, stream.Path())
	require.Len(t, rows, 2)
	assert.Equal(t, "x,y", rows[0]["b"])
}
