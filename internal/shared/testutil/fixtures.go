package testutil

import (
	"github.com/shopspring/decimal"

	"hudlink/pkg/contracts/domain"
)

// SurveyBuilder assembles a domain.SurveyRecord for tests.
type SurveyBuilder struct {
	rec domain.SurveyRecord
}

// NewSurvey starts a person row of household serial in 2021 with no county.
func NewSurvey(serial string, pernum int) *SurveyBuilder {
	return &SurveyBuilder{rec: domain.SurveyRecord{
		Serial:          serial,
		PersonNumber:    pernum,
		SampleYear:      2021,
		StateFIPS:       "06",
		PUMA:            "00100",
		HouseholdWeight: 100,
		PersonWeight:    100,
		NumFamilies:     1,
		FamilyUnit:      1,
		FamilySize:      1,
		Person:          domain.PersonAttributes{Relate: 1, Age: 40, Sex: 1, Race: 1},
		Income:          map[string]float64{},
	}}
}

// Year sets the sample year and clears MULTYEAR.
func (b *SurveyBuilder) Year(year int) *SurveyBuilder {
	b.rec.SampleYear = year
	b.rec.MultiYear = 0
	return b
}

// MultiYear marks the row as part of a 5-year product.
func (b *SurveyBuilder) MultiYear(sample, reference int) *SurveyBuilder {
	b.rec.SampleYear = sample
	b.rec.MultiYear = reference
	return b
}

// InPUMA places the row in a state PUMA.
func (b *SurveyBuilder) InPUMA(state, puma string) *SurveyBuilder {
	b.rec.StateFIPS = state
	b.rec.PUMA = puma
	return b
}

// InCounty sets the survey's own county code.
func (b *SurveyBuilder) InCounty(countyFIPS string) *SurveyBuilder {
	b.rec.CountyFIPS = countyFIPS
	return b
}

// Weights sets the household and person weights.
func (b *SurveyBuilder) Weights(hhwt, perwt float64) *SurveyBuilder {
	b.rec.HouseholdWeight = hhwt
	b.rec.PersonWeight = perwt
	return b
}

// Family places the person in family unit famunit of a household with nfams families.
func (b *SurveyBuilder) Family(famunit, nfams, famsize int) *SurveyBuilder {
	b.rec.FamilyUnit = famunit
	b.rec.NumFamilies = nfams
	b.rec.FamilySize = famsize
	return b
}

// Income sets one raw income column.
func (b *SurveyBuilder) Income(field string, value float64) *SurveyBuilder {
	b.rec.Income[field] = value
	return b
}

// Person replaces the demographic codes.
func (b *SurveyBuilder) Person(p domain.PersonAttributes) *SurveyBuilder {
	b.rec.Person = p
	return b
}

// GroupQuarters sets the living arrangement.
func (b *SurveyBuilder) GroupQuarters(gq domain.GroupQuartersType) *SurveyBuilder {
	b.rec.GroupQuarters = gq
	return b
}

// Build returns a copy of the record.
func (b *SurveyBuilder) Build() domain.SurveyRecord {
	rec := b.rec
	rec.Income = make(map[string]float64, len(b.rec.Income))
	for k, v := range b.rec.Income {
		rec.Income[k] = v
	}
	return rec
}

// Located wraps a record as already assigned to county with its full weight.
func Located(rec domain.SurveyRecord, countyID string) domain.LocatedRecord {
	return domain.LocatedRecord{
		SurveyRecord:     rec,
		CountyID:         countyID,
		Vintage:          domain.Vintage2012,
		AllocationFactor: 1,
		AllocatedWeight:  rec.HouseholdWeight,
	}
}

// Limits builds income limit rows for one county and year. values[t] holds the
// limit for household sizes 1..len(values[t]).
func Limits(countyID string, year int, values map[domain.Threshold][]int64) []domain.IncomeLimit {
	var out []domain.IncomeLimit
	for _, t := range domain.Thresholds {
		for i, v := range values[t] {
			out = append(out, domain.IncomeLimit{
				CountyID:      countyID,
				Year:          year,
				HouseholdSize: i + 1,
				Threshold:     t,
				Limit:         decimal.NewFromInt(v),
			})
		}
	}
	return out
}
