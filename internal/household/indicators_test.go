package household

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hudlink/internal/shared/testutil"
	"hudlink/pkg/contracts/domain"
)

func person(p domain.PersonAttributes) domain.LocatedRecord {
	rec := testutil.NewSurvey("1", 1).Person(p).Build()
	rec.Additional = map[string]string{"UHRSWORK": "40"}
	return testutil.Located(rec, "06001")
}

func TestBuildDemographics_HeadIndicators(t *testing.T) {
	tests := []struct {
		name  string
		head  domain.PersonAttributes
		set   []domain.Indicator
		unset []domain.Indicator
	}{
		{
			name: "single mother renting",
			head: domain.PersonAttributes{Relate: 1, Sex: 2, Age: 30, Race: 2, MaritalStatus: 6, NumChildren: 2, Ownership: 2},
			set: []domain.Indicator{domain.IndicatorFemaleHead, domain.IndicatorFemaleHeadChild,
				domain.IndicatorOneAdult, domain.IndicatorBlackNonHispanic, domain.IndicatorMinority, domain.IndicatorRenter},
			unset: []domain.Indicator{domain.IndicatorMaleHead, domain.IndicatorTwoAdults, domain.IndicatorOwner},
		},
		{
			name:  "senior white owner, mortgage paid",
			head:  domain.PersonAttributes{Relate: 1, Sex: 1, Age: 80, Race: 1, MaritalStatus: 1, Ownership: 1, Mortgage: 1},
			set:   []domain.Indicator{domain.IndicatorMaleHead, domain.IndicatorAge62Plus, domain.IndicatorAge75Plus, domain.IndicatorWhiteNonHispanic, domain.IndicatorOwner, domain.IndicatorMortgagePaid},
			unset: []domain.Indicator{domain.IndicatorMinority, domain.IndicatorMaleHeadChild, domain.IndicatorRenter},
		},
		{
			name:  "hispanic non-citizen",
			head:  domain.PersonAttributes{Relate: 1, Sex: 1, Age: 40, Race: 1, Hispanic: 2, Citizen: 3},
			set:   []domain.Indicator{domain.IndicatorHispanic, domain.IndicatorMinority, domain.IndicatorNonCitizen},
			unset: []domain.Indicator{domain.IndicatorWhiteNonHispanic},
		},
		{
			name:  "split family without reference person has no head flags",
			head:  domain.PersonAttributes{Relate: 12, Sex: 2, Age: 70, Race: 4},
			set:   []domain.Indicator{domain.IndicatorAsianNonHispanic},
			unset: []domain.Indicator{domain.IndicatorFemaleHead, domain.IndicatorAge62Plus},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := BuildDemographics([]domain.LocatedRecord{person(tt.head)}, nil)
			for _, ind := range tt.set {
				assert.True(t, d.Indicators.Has(ind), "expected %s", ind)
			}
			for _, ind := range tt.unset {
				assert.False(t, d.Indicators.Has(ind), "unexpected %s", ind)
			}
		})
	}
}

func TestBuildDemographics_AnyMemberIndicators(t *testing.T) {
	head := person(domain.PersonAttributes{Relate: 1, Age: 45, Race: 1, EducD: 63})
	child := person(domain.PersonAttributes{Relate: 3, Age: 12, DiffRem: 2})
	vet := person(domain.PersonAttributes{Relate: 2, Age: 50, VetStatus: 2, EmpStat: 1, EducD: 114})

	d := BuildDemographics([]domain.LocatedRecord{head, child, vet}, []string{"UHRSWORK"})

	assert.True(t, d.Indicators.Has(domain.IndicatorDisabCognitive))
	assert.True(t, d.Indicators.Has(domain.IndicatorDisabAny))
	assert.True(t, d.Disability)
	assert.True(t, d.Veteran)
	assert.True(t, d.Indicators.Has(domain.IndicatorEmployed))
	assert.True(t, d.Indicators.Has(domain.IndicatorHighSchool))
	assert.True(t, d.Indicators.Has(domain.IndicatorGraduateSchool))
	assert.False(t, d.Indicators.Has(domain.IndicatorBachelor))
	assert.Equal(t, "45_61", d.AgeBand)
	assert.Equal(t, "40", d.Additional["UHRSWORK"])
	assert.Equal(t, domain.StratumWhite, d.Stratum())
}
