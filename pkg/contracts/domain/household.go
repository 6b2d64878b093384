package domain

import (
	"github.com/shopspring/decimal"
)

// Indicator names a binary demographic characteristic of a household or family unit
type Indicator string

// Head-of-household indicators
const (
	IndicatorTwoAdults         Indicator = "2adults"
	IndicatorOneAdult          Indicator = "1adult"
	IndicatorFemaleHead        Indicator = "female_head"
	IndicatorFemaleHeadChild   Indicator = "female_head_child"
	IndicatorMaleHead          Indicator = "male_head"
	IndicatorMaleHeadChild     Indicator = "male_head_child"
	IndicatorAge62Plus         Indicator = "age62plus"
	IndicatorAge75Plus         Indicator = "age75plus"
	IndicatorMinority          Indicator = "minority"
	IndicatorWhiteNonHispanic  Indicator = "white_nonhsp"
	IndicatorBlackNonHispanic  Indicator = "black_nonhsp"
	IndicatorNativeNonHispanic Indicator = "native_american_nonhsp"
	IndicatorAsianNonHispanic  Indicator = "asian_nonhsp"
	IndicatorMixedNonHispanic  Indicator = "mixed_nonhsp"
	IndicatorOtherRace         Indicator = "otherrace"
	IndicatorHispanic          Indicator = "hispanic"
	IndicatorNonCitizen        Indicator = "noncitizen"
	IndicatorOwner             Indicator = "owner"
	IndicatorRenter            Indicator = "renter"
	IndicatorMortgagePaid      Indicator = "mortgage_paid"
)

// Any-member indicators
const (
	IndicatorDisabHearingVision Indicator = "disab_hearing_vision"
	IndicatorDisabAmbulatory    Indicator = "disab_ambulatory"
	IndicatorDisabCognitive     Indicator = "disab_cognitive"
	IndicatorDisabIndependent   Indicator = "disab_independent_living"
	IndicatorDisabAny           Indicator = "disab_any"
	IndicatorVeteran            Indicator = "veteran"
	IndicatorHighSchool         Indicator = "hs_complete"
	IndicatorBachelor           Indicator = "bachelor_complete"
	IndicatorGraduateSchool     Indicator = "grad_school"
	IndicatorEmployed           Indicator = "employed"
)

// AllIndicators lists every indicator in output column order
var AllIndicators = []Indicator{
	IndicatorTwoAdults, IndicatorOneAdult,
	IndicatorFemaleHead, IndicatorFemaleHeadChild, IndicatorMaleHead, IndicatorMaleHeadChild,
	IndicatorMinority, IndicatorWhiteNonHispanic, IndicatorBlackNonHispanic,
	IndicatorNativeNonHispanic, IndicatorAsianNonHispanic, IndicatorMixedNonHispanic,
	IndicatorOtherRace, IndicatorHispanic,
	IndicatorNonCitizen, IndicatorOwner, IndicatorRenter, IndicatorMortgagePaid,
	IndicatorVeteran,
	IndicatorDisabHearingVision, IndicatorDisabAmbulatory, IndicatorDisabCognitive,
	IndicatorDisabIndependent, IndicatorDisabAny,
	IndicatorAge62Plus, IndicatorAge75Plus,
	IndicatorHighSchool, IndicatorBachelor, IndicatorGraduateSchool,
	IndicatorEmployed,
}

// IndicatorSet holds the indicators that are true for a unit
type IndicatorSet map[Indicator]bool

// Has reports whether the indicator is set
func (s IndicatorSet) Has(ind Indicator) bool {
	return s[ind]
}

// Stratum is the demographic key incarceration counts are reported by
type Stratum string

const (
	StratumTotal    Stratum = "total"
	StratumWhite    Stratum = "white"
	StratumMinority Stratum = "minority"
)

// RaceStrata lists the strata that partition the total
var RaceStrata = []Stratum{StratumWhite, StratumMinority}

// Demographics carries the protected-class fields of a unit. Raw codes are copied
// from the reference person; Indicators are derived from all members.
type Demographics struct {
	Race       int               `json:"race"`
	Hispanic   int               `json:"hispan"`
	Sex        int               `json:"sex"`
	Age        int               `json:"age"`
	AgeBand    string            `json:"age_band"`
	Tenure     string            `json:"tenure"`
	Citizen    int               `json:"citizen"`
	Veteran    bool              `json:"veteran"`
	Disability bool              `json:"disability"`
	Indicators IndicatorSet      `json:"indicators"`
	Additional map[string]string `json:"additional,omitempty"`
}

// Stratum returns the race stratum of the reference person
func (d Demographics) Stratum() Stratum {
	if d.Race == 1 {
		return StratumWhite
	}
	return StratumMinority
}

// HouseholdRecord is one unit of analysis: a whole household, or one family of a
// split multi-family household, located in one county.
type HouseholdRecord struct {
	SerialNumber    string            `json:"serial_number"`
	SourceSerial    string            `json:"source_serial"`
	FamilyIndex     int               `json:"family_index"`
	SampleYear      int               `json:"year"`
	StateFIPS       string            `json:"statefip"`
	CountyID        string            `json:"county_id"`
	CountyName      string            `json:"county_name"`
	PUMA            string            `json:"puma"`
	Vintage         Vintage           `json:"vintage"`
	Imputed         bool              `json:"imputed"`
	HouseholdWeight float64           `json:"household_weight"`
	Weight          float64           `json:"weight"`
	PersonWeight    float64           `json:"person_weight"`
	FamilySize      int               `json:"family_size"`
	NumFamilies     int               `json:"nfams_before_split"`
	GroupQuarters   GroupQuartersType `json:"gq"`
	Members         []LocatedRecord   `json:"-"`

	Income           decimal.Decimal            `json:"income"`
	IncomeSource     string                     `json:"income_source"`
	IncomeComponents map[string]decimal.Decimal `json:"income_components,omitempty"`
	QualityFlags     []string                   `json:"quality_flags,omitempty"`

	Demographics Demographics `json:"demographics"`

	SizeBucket int  `json:"size_bucket"`
	Eligible30 bool `json:"eligible_30"`
	Eligible50 bool `json:"eligible_50"`
	Eligible80 bool `json:"eligible_80"`
}

// IsSplit reports whether the unit is one family of a decomposed household
func (h HouseholdRecord) IsSplit() bool {
	return h.FamilyIndex > 0
}

// EligibleAt returns the eligibility flag for a threshold
func (h HouseholdRecord) EligibleAt(t Threshold) bool {
	switch t {
	case AMI30:
		return h.Eligible30
	case AMI50:
		return h.Eligible50
	case AMI80:
		return h.Eligible80
	default:
		return false
	}
}
