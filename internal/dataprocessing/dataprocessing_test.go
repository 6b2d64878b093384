package dataprocessing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hudlink/internal/config"
	apperrors "hudlink/internal/errors"
	"hudlink/internal/linkage"
	"hudlink/internal/shared/testutil"
	"hudlink/pkg/contracts/domain"
)

func csvTable(t *testing.T, content string) *Table {
	t.Helper()
	tbl, err := ReadCSV("test.csv", strings.NewReader(content))
	require.NoError(t, err)
	return tbl
}

// limitsHeader returns fips,County_Name,il30_p1..il80_p8
func limitsHeader() []string {
	return append([]string{"fips", "County_Name"}, LimitsRequiredColumns()...)
}

// limitsRow fills every limit column: il30 sizes start at base, il50 at
// 2*base, il80 at 3*base, each size adding 1000.
func limitsRow(fips, name string, base int) []string {
	row := []string{fips, name}
	for i := range domain.Thresholds {
		for size := 1; size <= domain.MaxHouseholdSize; size++ {
			row = append(row, fmt.Sprint((i+1)*base+(size-1)*1000))
		}
	}
	return row
}

func limitsCSV(rows ...[]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(limitsHeader(), ",") + "\n")
	for _, r := range rows {
		b.WriteString(strings.Join(r, ",") + "\n")
	}
	return b.String()
}

func TestReadCSV(t *testing.T) {
	tbl := csvTable(t, "\ufeffName, Value\n\nalpha,\"1,250\"\n ,\nbeta,x\n")

	assert.True(t, tbl.Has("NAME", "value"))
	assert.Equal(t, []string{"name", "value"}, tbl.Columns())
	require.Len(t, tbl.Rows, 2)

	var got []float64
	err := tbl.Each(func(r Row) error {
		v, ok, err := r.Float("value")
		if err != nil {
			return err
		}
		assert.True(t, ok)
		got = append(got, v)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "line 5")
	assert.Equal(t, []float64{1250}, got)

	err = tbl.Require("name", "missing", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing, other")

	_, err = ReadCSV("empty.csv", strings.NewReader(""))
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))
}

func TestRowInt(t *testing.T) {
	tbl := csvTable(t, "a,b,c\n3.0,2.5,\n")
	row := Row{t: tbl, cells: tbl.Rows[0], number: 2}

	v, ok, err := row.Int("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, _, err = row.Int("b")
	assert.Error(t, err)

	_, ok, err = row.Int("c")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = row.Int("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadSheet_FindsHeaderBelowTitle(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "FY2021 Income Limits"))

	header := limitsHeader()
	require.NoError(t, f.SetSheetRow(sheet, "A2", &header))
	row := limitsRow("0600199999", "Alameda County", 30000)
	require.NoError(t, f.SetSheetRow(sheet, "A3", &row))

	tbl, err := ReadSheet("limits.xlsx", f, LimitsRequiredColumns()...)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.FirstLine())
	require.Len(t, tbl.Rows, 1)
	assert.Contains(t, tbl.Name, sheet)

	_, err = ReadSheet("limits.xlsx", f, "not_a_column")
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))
}

const surveyCSV = `YEAR,MULTYEAR,SERIAL,CBSERIAL,PERNUM,STATEFIP,COUNTYFIP,PUMA,HHWT,PERWT,NFAMS,FAMUNIT,FAMSIZE,GQ,RELATE,AGE,SEX,RACE,HISPAN,HHINCOME,INCWAGE,TENURE_X
2021,2019,1,2021000000001,1,6,1,00101,25.0,25,1,1,2,1,1,45,2,1,0,"52,000",40000,a
2021,2019,1,2021000000001,2,6,1,00101,25.0,22,1,1,2,1,2,44,1,1,0,"52,000",12000,a
2021,2021,7,2021000000007,1,6,0,00101,10,10,1,1,1,3,1,30,1,2,0,9999999,0,b
`

func TestParseSurvey(t *testing.T) {
	recs, err := ParseSurvey(csvTable(t, surveyCSV), []string{"TENURE_X"})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	r := recs[0]
	assert.Equal(t, "2021000000001", r.Serial)
	assert.Equal(t, 1, r.PersonNumber)
	assert.Equal(t, 2021, r.SampleYear)
	assert.Equal(t, 2019, r.ReferenceYear())
	assert.Equal(t, "06", r.StateFIPS)
	assert.Equal(t, "06001", r.DirectCountyID())
	assert.Equal(t, "00101", r.PUMA)
	assert.Equal(t, 25.0, r.HouseholdWeight)
	assert.Equal(t, 2, r.FamilySize)
	assert.Equal(t, 2, r.Person.Sex)
	assert.Equal(t, 45, r.Person.Age)
	assert.Equal(t, 52000.0, r.Income[domain.IncomeHousehold])
	assert.Equal(t, 40000.0, r.Income[domain.IncomeWage])
	assert.Equal(t, "a", r.Additional["TENURE_X"])
	assert.Equal(t, domain.GroupQuartersNone, r.GroupQuarters)

	assert.False(t, recs[2].HasCounty())
	assert.Equal(t, domain.GroupQuartersInstitutional, recs[2].GroupQuarters)
	assert.Equal(t, 9999999.0, recs[2].Income[domain.IncomeHousehold])
}

func TestParseSurvey_Errors(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		additional []string
		wantErr    string
	}{
		{
			name:    "missing required column",
			content: "YEAR,SERIAL,STATEFIP,PUMA\n2021,1,6,100\n",
			wantErr: "HHWT",
		},
		{
			name:    "no serial",
			content: "YEAR,STATEFIP,PUMA,HHWT\n2021,6,100,1\n",
			wantErr: "SERIAL",
		},
		{
			name:       "missing additional column",
			content:    "YEAR,SERIAL,STATEFIP,PUMA,HHWT\n2021,1,6,100,1\n",
			additional: []string{"TENURE_X"},
			wantErr:    "TENURE_X",
		},
		{
			name:    "zero household weight",
			content: "YEAR,SERIAL,STATEFIP,PUMA,HHWT\n2021,1,6,100,0\n",
			wantErr: "line 2",
		},
		{
			name:    "non numeric age",
			content: "YEAR,SERIAL,STATEFIP,PUMA,HHWT,AGE\n2021,1,6,100,1,old\n",
			wantErr: "AGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSurvey(csvTable(t, tt.content), tt.additional)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGroupQuartersType(t *testing.T) {
	tests := []struct {
		header string
		value  string
		want   domain.GroupQuartersType
	}{
		{"GQTYPE", "0", domain.GroupQuartersNone},
		{"GQTYPE", "1", domain.GroupQuartersInstitutional},
		{"GQTYPE", "4", domain.GroupQuartersInstitutional},
		{"GQTYPE", "6", domain.GroupQuartersNonInstitutional},
		{"GQ", "1", domain.GroupQuartersNone},
		{"GQ", "3", domain.GroupQuartersInstitutional},
		{"GQ", "4", domain.GroupQuartersNonInstitutional},
		{"GQ", "", domain.GroupQuartersNone},
	}

	for _, tt := range tests {
		t.Run(tt.header+"="+tt.value, func(t *testing.T) {
			tbl := csvTable(t, tt.header+",X\n"+tt.value+",x\n")
			got, err := groupQuarters(Row{t: tbl, cells: tbl.Rows[0], number: 2})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const geocorrCSV = `state,puma22,county,cntyname,afact
State code,PUMA (2022),County code,County name,Allocation factor
06,00101,06001,Alameda CA,0.6
06,00101,06003,Alpine CA,0.4
32,00100,32003,Clark NV,1.0
`

func TestParseCrosswalk_Geocorr(t *testing.T) {
	rows, err := ParseCrosswalk(csvTable(t, geocorrCSV), domain.Vintage2022, "06")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.CountyAllocation{
		PUMA: "00101", Vintage: domain.Vintage2022, CountyID: "06001", CountyName: "Alameda CA", Fraction: 0.6,
	}, rows[0])
	assert.Equal(t, "06003", rows[1].CountyID)

	idx := NewCountyIndex(rows)
	id, ok := idx.Lookup("Alpine County")
	assert.True(t, ok)
	assert.Equal(t, "06003", id)
	_, ok = idx.Lookup("Clark County")
	assert.False(t, ok)
}

func TestParseCrosswalk_ProcessedLayout(t *testing.T) {
	content := "State code,PUMA,County code,State abbr.,County_Name,allocation factor\n6,101,1,CA,Alameda,1\n"
	rows, err := ParseCrosswalk(csvTable(t, content), domain.Vintage2012, "06")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "06001", rows[0].CountyID)
	assert.Equal(t, "101", rows[0].PUMA)
	assert.Equal(t, domain.Vintage2012, rows[0].Vintage)
}

func TestParseCrosswalk_Errors(t *testing.T) {
	_, err := ParseCrosswalk(csvTable(t, "puma,county\n1,06001\n"), domain.Vintage2022, "06")
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))

	content := "state,puma22,county,afact\n06,101,06001,0.5\n06,101,06003,bad\n"
	_, err = ParseCrosswalk(csvTable(t, content), domain.Vintage2022, "06")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	content = "state,puma22,county,afact\n06,101,06001,1.5\n"
	_, err = ParseCrosswalk(csvTable(t, content), domain.Vintage2022, "06")
	assert.Error(t, err)
}

func TestParseIncomeLimits(t *testing.T) {
	content := limitsCSV(
		limitsRow("0600199999", "Alameda County", 30000),
		limitsRow("", "Alpine County", 20000),
		limitsRow("", "Nowhere", 10000),
		limitsRow("3200399999", "Clark County", 25000),
	)
	counties := NewCountyIndex([]domain.CountyAllocation{{CountyID: "06003", CountyName: "Alpine CA"}})

	limits, unmatched, err := ParseIncomeLimits(csvTable(t, content), domain.NewUnit("CA", 2021), "06", counties)
	require.NoError(t, err)
	assert.Len(t, limits, 2*len(domain.Thresholds)*domain.MaxHouseholdSize)
	assert.Equal(t, []string{"Nowhere"}, unmatched)

	byKey := make(map[domain.LimitKey]domain.IncomeLimit)
	for _, l := range limits {
		byKey[domain.LimitKey{CountyID: l.CountyID, Year: l.Year, HouseholdSize: l.HouseholdSize, Threshold: l.Threshold}] = l
	}
	l, ok := byKey[domain.LimitKey{CountyID: "06001", Year: 2021, HouseholdSize: 4, Threshold: domain.AMI50}]
	require.True(t, ok)
	assert.Equal(t, "63000", l.Limit.String())
	_, ok = byKey[domain.LimitKey{CountyID: "06003", Year: 2021, HouseholdSize: 1, Threshold: domain.AMI30}]
	assert.True(t, ok)
}

func TestParseIncomeLimits_Errors(t *testing.T) {
	unit := domain.NewUnit("CA", 2021)

	_, _, err := ParseIncomeLimits(csvTable(t, "fips,il30_p1\n0600199999,100\n"), unit, "06", nil)
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))

	_, _, err = ParseIncomeLimits(csvTable(t, limitsCSV(limitsRow("3200399999", "Clark County", 1000))), unit, "06", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no income limits")

	row := limitsRow("0600199999", "Alameda County", 30000)
	row[5] = ""
	_, _, err = ParseIncomeLimits(csvTable(t, limitsCSV(row)), unit, "06", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is blank")
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "0600199999", digitsOnly("0600199999"))
	assert.Equal(t, "0600199999", digitsOnly("600199999"))
	assert.Equal(t, "0600199999", digitsOnly("600199999.0"))
	assert.Equal(t, "06001", digitsOnly("6001"))
	assert.Equal(t, "", digitsOnly(""))
	assert.Equal(t, "06", padDigits("6", 2))
	assert.Equal(t, "06", padDigits("06", 2))
	assert.Equal(t, "12", padDigits("12.0", 2))
}

func TestParseIncarceration(t *testing.T) {
	content := `State,County_Name,Ttl_Incarc,Ttl_White_Incarc,Ttl_Minority_Incarc
CA,Alameda County,100,40,60
NV,Clark County,5,,
06,Alpine County,3,,
`
	recs, err := ParseIncarceration(csvTable(t, content), domain.NewUnit("CA", 2021), "06")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, domain.IncarcerationRecord{CountyName: "Alameda County", Stratum: domain.StratumTotal, Count: 100}, recs[0])
	assert.Equal(t, domain.StratumMinority, recs[2].Stratum)
	assert.Equal(t, 60.0, recs[2].Count)
	assert.Equal(t, "Alpine County", recs[3].CountyName)

	_, err = ParseIncarceration(csvTable(t, "State,County_Name,Ttl_Incarc\nCA,0,4\n"), domain.NewUnit("CA", 2021), "06")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "county name is 0")

	_, err = ParseIncarceration(csvTable(t, "State,County_Name,Ttl_Incarc\nCA,Alameda,-1\n"), domain.NewUnit("CA", 2021), "06")
	assert.Error(t, err)
}

func TestParsePrograms(t *testing.T) {
	content := `gsl,states,entities,sumlevel,program_label,program,sub_program,name,code,total_units,pct_occupied,people_total
5,CA California,x,4,VO,3,,Alameda County,06001,"1,200",95,3000
5,CA California,x,4,PH,2,,Alpine County,06003,-4,-4,-4
5,NV Nevada,x,4,VO,3,,Clark County,32003,10,1,1
5,CA California,x,4,LIHTC,9,,Inyo County,,5,,
`
	recs, err := ParsePrograms(csvTable(t, content), domain.NewUnit("CA", 2021), "06")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, linkage.ProgramVouchers, recs[0].ProgramLabel)
	assert.Equal(t, "06001", recs[0].CountyID)
	assert.Equal(t, 2021, recs[0].Year)
	assert.Equal(t, 1200.0, recs[0].TotalUnits)
	assert.Equal(t, map[string]float64{"pct_occupied": 95, "people_total": 3000}, recs[0].Attributes)

	assert.Equal(t, linkage.ProgramPublicHousing, recs[1].ProgramLabel)
	assert.True(t, recs[1].Suppressed())

	assert.Equal(t, "", recs[2].CountyID)
	assert.Equal(t, "Inyo County", recs[2].CountyName)
	assert.Equal(t, linkage.ProgramLIHTC, recs[2].ProgramLabel)
	assert.Nil(t, recs[2].Attributes)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ca_2021_survey.csv"), surveyCSV)
	writeFile(t, filepath.Join(dir, "geocorr2022.csv"), geocorrCSV)
	writeFile(t, filepath.Join(dir, "incarceration.csv"), "State,County_Name,Ttl_Incarc\nCA,Alameda County,100\n")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := limitsHeader()
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	row := limitsRow("", "Alameda County", 30000)
	require.NoError(t, f.SetSheetRow(sheet, "A2", &row))
	require.NoError(t, f.SaveAs(filepath.Join(dir, "il2021.xlsx")))
	require.NoError(t, f.Close())

	paths := config.PathsConfig{
		DataDir:       dir,
		OutputDir:     filepath.Join(dir, "out"),
		Survey:        "{data_dir}/{state}_{year}_survey.csv",
		Crosswalk2022: "{data_dir}/geocorr2022.csv",
		IncomeLimits:  "{data_dir}/il{year}.xlsx",
		Incarceration: "{data_dir}/incarceration.csv",
	}
	logger, handler := testutil.NewTestLogger(t)
	src := NewFileSource(paths, []string{"TENURE_X"}, logger)

	in, err := src.Load(context.Background(), domain.NewUnit("ca", 2021))
	require.NoError(t, err)
	assert.Len(t, in.Survey, 3)
	assert.Len(t, in.Crosswalks[domain.Vintage2022], 2)
	assert.NotContains(t, in.Crosswalks, domain.Vintage2012)
	assert.Len(t, in.IncomeLimits, len(domain.Thresholds)*domain.MaxHouseholdSize)
	assert.Equal(t, "06001", in.IncomeLimits[0].CountyID)
	assert.Len(t, in.Incarceration, 1)
	assert.Nil(t, in.Programs)
	assert.True(t, handler.ContainsMessage("inputs loaded"))
}

func TestFileSource_MissingFile(t *testing.T) {
	dir := t.TempDir()
	paths := config.PathsConfig{
		DataDir:       dir,
		Survey:        "{data_dir}/absent.csv",
		Crosswalk2022: "{data_dir}/absent_cw.csv",
		IncomeLimits:  "{data_dir}/absent_il.csv",
	}
	src := NewFileSource(paths, nil, nil)

	_, err := src.Load(context.Background(), domain.NewUnit("CA", 2021))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "not found")

	_, err = src.Load(context.Background(), domain.NewUnit("ZZ", 2021))
	assert.Equal(t, apperrors.KindInput, apperrors.KindOf(err))
}
