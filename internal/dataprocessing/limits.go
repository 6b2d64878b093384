package dataprocessing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "hudlink/internal/errors"
	"hudlink/pkg/contracts/domain"
)

// Income limit columns. HUD publishes one row per county with il30_p1 through
// il80_p8.
var (
	limitsFIPS = []string{"fips", "fips2010", "county_fips"}
	limitsName = []string{"County_Name", "county_name", "countyname", "county_town_name"}
	limitsYear = []string{"year", "fy"}
)

func limitColumn(th domain.Threshold, size int) string {
	return fmt.Sprintf("il%d_p%d", int(th), size)
}

// LimitsRequiredColumns must be present in an income limit sheet
func LimitsRequiredColumns() []string {
	cols := make([]string, 0, len(domain.Thresholds)*domain.MaxHouseholdSize)
	for _, th := range domain.Thresholds {
		for size := 1; size <= domain.MaxHouseholdSize; size++ {
			cols = append(cols, limitColumn(th, size))
		}
	}
	return cols
}

// ParseIncomeLimits reads county income limits. The county comes from the
// first five digits of a FIPS column, else from the county name via counties.
// Rows for other states, and rows whose county cannot be identified, are
// returned in unmatched. Duplicated counties are kept; the limit table
// aggregates them.
func ParseIncomeLimits(t *Table, unit domain.Unit, stateFIPS string, counties CountyIndex) (limits []domain.IncomeLimit, unmatched []string, err error) {
	if err := t.Require(LimitsRequiredColumns()...); err != nil {
		return nil, nil, err
	}
	if t.Index(limitsFIPS...) < 0 && t.Index(limitsName...) < 0 {
		return nil, nil, t.Require(limitsFIPS[0])
	}

	err = t.Each(func(row Row) error {
		name := row.Str(limitsName...)
		countyID := ""
		if fips := digitsOnly(row.Str(limitsFIPS...)); len(fips) >= 5 {
			countyID = fips[:5]
		} else if id, ok := counties.Lookup(name); ok {
			countyID = id
		}
		if countyID == "" {
			unmatched = append(unmatched, name)
			return nil
		}
		if stateFIPS != "" && countyID[:2] != stateFIPS {
			return nil
		}

		year := unit.Year
		if y, ok, err := row.Int(limitsYear...); err != nil {
			return err
		} else if ok {
			year = y
		}

		for _, th := range domain.Thresholds {
			for size := 1; size <= domain.MaxHouseholdSize; size++ {
				col := limitColumn(th, size)
				v, ok, err := row.Float(col)
				if err != nil {
					return err
				}
				if !ok {
					return row.errorf("county %s: %s is blank", countyID, col)
				}
				lim := domain.IncomeLimit{
					CountyID:      countyID,
					CountyName:    name,
					Year:          year,
					HouseholdSize: size,
					Threshold:     th,
					Limit:         decimal.NewFromFloat(v),
				}
				if err := validate.Struct(lim); err != nil {
					return row.errorf("invalid income limit: %v", err)
				}
				limits = append(limits, lim)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(limits) == 0 {
		return nil, unmatched, apperrors.NewInputError(fmt.Sprintf("%s has no income limits for state %s", t.Name, unit.State), nil)
	}
	return limits, unmatched, nil
}

// digitsOnly extracts the digits of a FIPS cell. HUD's ten digit codes read
// from a numeric cell lose their leading zero; it is restored.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range integerText(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 9 || len(d) == 4 {
		d = "0" + d
	}
	return d
}
