package domain

import (
	"fmt"
	"strings"
)

var stateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06", "CO": "08", "CT": "09",
	"DE": "10", "DC": "11", "FL": "12", "GA": "13", "HI": "15", "ID": "16", "IL": "17",
	"IN": "18", "IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23", "MD": "24",
	"MA": "25", "MI": "26", "MN": "27", "MS": "28", "MO": "29", "MT": "30", "NE": "31",
	"NV": "32", "NH": "33", "NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44", "SC": "45", "SD": "46",
	"TN": "47", "TX": "48", "UT": "49", "VT": "50", "VA": "51", "WA": "53", "WV": "54",
	"WI": "55", "WY": "56", "PR": "72",
}

// StateFIPS returns the two-digit FIPS code of a postal abbreviation, in any case.
func StateFIPS(abbrev string) (string, error) {
	fips, ok := stateFIPS[strings.ToUpper(strings.TrimSpace(abbrev))]
	if !ok {
		return "", fmt.Errorf("unknown state abbreviation %q", abbrev)
	}
	return fips, nil
}

// IsStateAbbrev reports whether s is a known postal abbreviation
func IsStateAbbrev(s string) bool {
	_, err := StateFIPS(s)
	return err == nil
}

// Unit identifies one state and survey year processed as a single unit of work
type Unit struct {
	State string `json:"state" validate:"required,len=2"`
	Year  int    `json:"year" validate:"required,min=2000,max=2100"`
}

// NewUnit normalizes the abbreviation to upper case
func NewUnit(state string, year int) Unit {
	return Unit{State: strings.ToUpper(strings.TrimSpace(state)), Year: year}
}

// String returns "FL_2023"
func (u Unit) String() string {
	return fmt.Sprintf("%s_%d", u.State, u.Year)
}

// FIPS returns the state FIPS code of the unit
func (u Unit) FIPS() (string, error) {
	return StateFIPS(u.State)
}
