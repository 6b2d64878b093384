package domain

import (
	"strings"
)

// GroupQuartersType classifies the living arrangement of a survey record
type GroupQuartersType int

const (
	// GroupQuartersNone is a conventional household
	GroupQuartersNone GroupQuartersType = iota
	// GroupQuartersInstitutional covers prisons, nursing homes and other institutions
	GroupQuartersInstitutional
	// GroupQuartersNonInstitutional covers dorms, barracks, shelters
	GroupQuartersNonInstitutional
)

// String returns the string representation of the group quarters type
func (g GroupQuartersType) String() string {
	switch g {
	case GroupQuartersNone:
		return "household"
	case GroupQuartersInstitutional:
		return "institutional"
	case GroupQuartersNonInstitutional:
		return "non_institutional"
	default:
		return "unknown"
	}
}

// Person income fields reported on every survey row
const (
	IncomeHousehold  = "HHINCOME"
	IncomeFamily     = "FTOTINC"
	IncomeWage       = "INCWAGE"
	IncomeSocialSec  = "INCSS"
	IncomeWelfare    = "INCWELFR"
	IncomeInvestment = "INCINVST"
	IncomeRetirement = "INCRETIR"
	IncomeSupplement = "INCSUPP"
	IncomeOther      = "INCOTHER"
	IncomeEarned     = "INCEARN"
)

// IncomeFields lists every raw income column in export order
var IncomeFields = []string{
	IncomeHousehold, IncomeFamily, IncomeWage, IncomeSocialSec, IncomeWelfare,
	IncomeInvestment, IncomeRetirement, IncomeSupplement, IncomeOther, IncomeEarned,
}

// PersonIncomeFields are the individual-level components summed into a family total.
// INCEARN is left out because it already contains INCWAGE.
var PersonIncomeFields = []string{
	IncomeWage, IncomeSocialSec, IncomeWelfare, IncomeInvestment,
	IncomeRetirement, IncomeSupplement, IncomeOther,
}

// PersonAttributes holds the IPUMS-coded demographic fields of one person
type PersonAttributes struct {
	Relate        int `json:"relate"`   // RELATE: 1 head, 2 spouse
	Age           int `json:"age"`      // AGE
	Sex           int `json:"sex"`      // SEX: 1 male, 2 female
	Race          int `json:"race"`     // RACE
	Hispanic      int `json:"hispan"`   // HISPAN: 0 not hispanic
	MaritalStatus int `json:"marst"`    // MARST: 1 married, spouse present
	NumChildren   int `json:"nchild"`   // NCHILD
	Citizen       int `json:"citizen"`  // CITIZEN: 3 not a citizen
	Ownership     int `json:"ownershp"` // OWNERSHP: 1 owned, 2 rented
	Mortgage      int `json:"mortgage"` // MORTGAGE: 1 no, owned free and clear
	VetStatus     int `json:"vetstat"`  // VETSTAT: 2 veteran
	DiffSens      int `json:"diffsens"` // DIFFSENS: 2 vision or hearing difficulty
	DiffPhys      int `json:"diffphys"` // DIFFPHYS: 2 ambulatory difficulty
	DiffRem       int `json:"diffrem"`  // DIFFREM: 2 cognitive difficulty
	DiffMob       int `json:"diffmob"`  // DIFFMOB: 2 independent living difficulty
	EducD         int `json:"educd"`    // EDUCD
	EmpStat       int `json:"empstat"`  // EMPSTAT: 1 employed
}

// SurveyRecord is one person row of a survey microdata extract.
// Household-level columns (weights, PUMA, county) repeat on every member row.
type SurveyRecord struct {
	Serial          string             `json:"serial" validate:"required"`
	PersonNumber    int                `json:"pernum" validate:"min=0"`
	SampleYear      int                `json:"year" validate:"required,min=2000"`
	MultiYear       int                `json:"multyear"`
	StateFIPS       string             `json:"statefip" validate:"required,len=2,numeric"`
	CountyFIPS      string             `json:"countyfip"`
	PUMA            string             `json:"puma" validate:"required"`
	HouseholdWeight float64            `json:"hhwt" validate:"gt=0"`
	PersonWeight    float64            `json:"perwt" validate:"min=0"`
	NumFamilies     int                `json:"nfams"`
	FamilyUnit      int                `json:"famunit"`
	FamilySize      int                `json:"famsize"`
	GroupQuarters   GroupQuartersType  `json:"gq"`
	Person          PersonAttributes   `json:"person"`
	Income          map[string]float64 `json:"income,omitempty"`
	Additional      map[string]string  `json:"additional,omitempty"`
}

// ReferenceYear returns the year the record was collected in. Multi-year products
// carry it in MULTYEAR; single-year products leave it empty.
func (r SurveyRecord) ReferenceYear() int {
	if r.MultiYear > 0 {
		return r.MultiYear
	}
	return r.SampleYear
}

// HasCounty reports whether the survey identified the county directly
func (r SurveyRecord) HasCounty() bool {
	code := strings.TrimLeft(strings.TrimSpace(r.CountyFIPS), "0")
	return code != ""
}

// DirectCountyID returns the five digit county FIPS code built from the record's own fields
func (r SurveyRecord) DirectCountyID() string {
	if !r.HasCounty() {
		return ""
	}
	return CountyID(r.StateFIPS, r.CountyFIPS)
}

// LocatedRecord is a survey record after county assignment. A record whose PUMA spans
// several counties appears once per county with its weight scaled by the allocation factor.
type LocatedRecord struct {
	SurveyRecord
	CountyID         string  `json:"county_id"`
	CountyName       string  `json:"county_name"`
	Vintage          Vintage `json:"vintage"`
	AllocationFactor float64 `json:"allocation_factor"`
	AllocatedWeight  float64 `json:"allocated_hhwt"`
	Imputed          bool    `json:"imputed"`
}

// CountyID joins a state and county FIPS code into the five digit county identifier
func CountyID(stateFIPS, countyFIPS string) string {
	state := strings.TrimSpace(stateFIPS)
	county := strings.TrimSpace(countyFIPS)
	for len(state) < 2 {
		state = "0" + state
	}
	for len(county) < 3 {
		county = "0" + county
	}
	return state + county
}
