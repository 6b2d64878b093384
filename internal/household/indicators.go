package household

import (
	"hudlink/pkg/contracts/domain"
)

// IPUMS codes the indicators test against.
const (
	relateHead       = 1
	sexMale          = 1
	sexFemale        = 2
	raceWhite        = 1
	raceBlack        = 2
	raceNative       = 3
	raceOther        = 7
	marstMarried     = 1
	citizenNon       = 3
	ownershpOwned    = 1
	ownershpRented   = 2
	mortgageFree     = 1
	difficultyYes    = 2
	vetstatVeteran   = 2
	empstatEmployed  = 1
	educdHighSchool  = 62
	educdBachelor    = 101
	hispanNone       = 0
	ageSenior        = 62
	ageElderly       = 75
	ageYoungAdultMax = 24
	ageMidlifeMin    = 45
)

// BuildDemographics derives the unit's demographic fields. Raw codes and the
// head-of-household indicators come from members[0], the reference person;
// disability, veteran, education and employment indicators are set when any
// member qualifies.
func BuildDemographics(members []domain.LocatedRecord, additional []string) domain.Demographics {
	if len(members) == 0 {
		return domain.Demographics{Indicators: domain.IndicatorSet{}}
	}
	head := members[0].Person
	set := domain.IndicatorSet{}

	hasChild := head.NumChildren > 0
	isHead := head.Relate == relateHead
	set[domain.IndicatorTwoAdults] = head.MaritalStatus == marstMarried && hasChild
	set[domain.IndicatorOneAdult] = head.MaritalStatus != marstMarried && hasChild
	set[domain.IndicatorFemaleHead] = isHead && head.Sex == sexFemale
	set[domain.IndicatorFemaleHeadChild] = isHead && head.Sex == sexFemale && hasChild
	set[domain.IndicatorMaleHead] = isHead && head.Sex == sexMale
	set[domain.IndicatorMaleHeadChild] = isHead && head.Sex == sexMale && hasChild
	set[domain.IndicatorAge62Plus] = isHead && head.Age >= ageSenior
	set[domain.IndicatorAge75Plus] = isHead && head.Age >= ageElderly

	notHispanic := head.Hispanic == hispanNone
	set[domain.IndicatorMinority] = !notHispanic || head.Race != raceWhite
	set[domain.IndicatorWhiteNonHispanic] = notHispanic && head.Race == raceWhite
	set[domain.IndicatorBlackNonHispanic] = notHispanic && head.Race == raceBlack
	set[domain.IndicatorNativeNonHispanic] = notHispanic && head.Race == raceNative
	set[domain.IndicatorAsianNonHispanic] = notHispanic && head.Race >= 4 && head.Race <= 6
	set[domain.IndicatorMixedNonHispanic] = notHispanic && (head.Race == 8 || head.Race == 9)
	set[domain.IndicatorOtherRace] = notHispanic && head.Race == raceOther
	set[domain.IndicatorHispanic] = !notHispanic

	set[domain.IndicatorNonCitizen] = head.Citizen == citizenNon
	set[domain.IndicatorOwner] = head.Ownership == ownershpOwned
	set[domain.IndicatorRenter] = head.Ownership == 0 || head.Ownership == ownershpRented
	set[domain.IndicatorMortgagePaid] = head.Mortgage == mortgageFree

	for _, m := range members {
		p := m.Person
		if p.DiffSens == difficultyYes {
			set[domain.IndicatorDisabHearingVision] = true
		}
		if p.DiffPhys == difficultyYes {
			set[domain.IndicatorDisabAmbulatory] = true
		}
		if p.DiffRem == difficultyYes {
			set[domain.IndicatorDisabCognitive] = true
		}
		if p.DiffMob == difficultyYes {
			set[domain.IndicatorDisabIndependent] = true
		}
		if p.VetStatus == vetstatVeteran {
			set[domain.IndicatorVeteran] = true
		}
		if p.EducD >= educdHighSchool {
			set[domain.IndicatorHighSchool] = true
		}
		if p.EducD == educdBachelor {
			set[domain.IndicatorBachelor] = true
		}
		if p.EducD > educdBachelor {
			set[domain.IndicatorGraduateSchool] = true
		}
		if p.EmpStat == empstatEmployed {
			set[domain.IndicatorEmployed] = true
		}
	}
	set[domain.IndicatorDisabAny] = set[domain.IndicatorDisabHearingVision] ||
		set[domain.IndicatorDisabAmbulatory] ||
		set[domain.IndicatorDisabCognitive] ||
		set[domain.IndicatorDisabIndependent]

	var extra map[string]string
	if len(additional) > 0 {
		extra = make(map[string]string, len(additional))
		for _, name := range additional {
			extra[name] = members[0].Additional[name]
		}
	}

	return domain.Demographics{
		Race:       head.Race,
		Hispanic:   head.Hispanic,
		Sex:        head.Sex,
		Age:        head.Age,
		AgeBand:    ageBand(head.Age),
		Tenure:     tenure(head.Ownership),
		Citizen:    head.Citizen,
		Veteran:    set[domain.IndicatorVeteran],
		Disability: set[domain.IndicatorDisabAny],
		Indicators: set,
		Additional: extra,
	}
}

func ageBand(age int) string {
	switch {
	case age <= ageYoungAdultMax:
		return "under_25"
	case age < ageMidlifeMin:
		return "25_44"
	case age < ageSenior:
		return "45_61"
	case age < ageElderly:
		return "62_74"
	default:
		return "75_plus"
	}
}

func tenure(ownership int) string {
	switch ownership {
	case ownershpOwned:
		return "owner"
	case ownershpRented:
		return "renter"
	default:
		return "not_applicable"
	}
}
