package dataprocessing

import (
	"strings"

	"hudlink/pkg/contracts/domain"
)

var (
	incarcerationState  = []string{"State", "state_abbr"}
	incarcerationName   = []string{"County_Name", "county_name", "county"}
	incarcerationFIPS   = []string{"fips", "county_fips"}
	incarcerationCounts = []struct {
		stratum domain.Stratum
		column  string
	}{
		{domain.StratumTotal, "Ttl_Incarc"},
		{domain.StratumWhite, "Ttl_White_Incarc"},
		{domain.StratumMinority, "Ttl_Minority_Incarc"},
	}
)

// ParseIncarceration reads county incarceration counts for one state. The
// State column may hold the postal abbreviation or the FIPS code.
func ParseIncarceration(t *Table, unit domain.Unit, stateFIPS string) ([]domain.IncarcerationRecord, error) {
	if err := t.Require(incarcerationCounts[0].column); err != nil {
		return nil, err
	}
	if t.Index(incarcerationName...) < 0 && t.Index(incarcerationFIPS...) < 0 {
		return nil, t.Require(incarcerationName[0])
	}

	var out []domain.IncarcerationRecord
	err := t.Each(func(row Row) error {
		if st := row.Str(incarcerationState...); st != "" && !sameState(st, unit.State, stateFIPS) {
			return nil
		}
		name := row.Str(incarcerationName...)
		if name == "0" {
			return row.errorf("county name is 0")
		}
		countyID := ""
		if fips := digitsOnly(row.Str(incarcerationFIPS...)); len(fips) >= 5 {
			countyID = fips[:5]
		}
		for _, c := range incarcerationCounts {
			v, ok, err := row.Float(c.column)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			rec := domain.IncarcerationRecord{CountyID: countyID, CountyName: name, Stratum: c.stratum, Count: v}
			if err := validate.Struct(rec); err != nil {
				return row.errorf("invalid incarceration count: %v", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sameState(cell, abbrev, fips string) bool {
	if strings.EqualFold(strings.TrimSpace(cell), abbrev) {
		return true
	}
	return fips != "" && padDigits(cell, 2) == fips
}
