package dataprocessing

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hudlink/pkg/contracts/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Crosswalk column aliases: the processed hudlink layout first, then the raw
// MCDC Geocorr names.
var (
	crosswalkState  = []string{"State code", "state"}
	crosswalkPUMA   = []string{"PUMA", "puma22", "puma12"}
	crosswalkCounty = []string{"County code", "county"}
	crosswalkName   = []string{"County_Name", "CountyName", "cntyname"}
	crosswalkFactor = []string{"allocation factor", "afact"}
)

// ParseCrosswalk reads PUMA-to-county allocation rows for one state. Rows of
// other states are skipped so national Geocorr files can be used as is.
// Geocorr places a label row under the header; it is skipped too.
func ParseCrosswalk(t *Table, vintage domain.Vintage, stateFIPS string) ([]domain.CountyAllocation, error) {
	for _, aliases := range [][]string{crosswalkPUMA, crosswalkCounty, crosswalkFactor} {
		if t.Index(aliases...) < 0 {
			return nil, t.Require(aliases[0])
		}
	}

	var rows []domain.CountyAllocation
	err := t.Each(func(row Row) error {
		factor, ok, err := row.Float(crosswalkFactor...)
		if err != nil && row.Number() == t.FirstLine() {
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			return row.errorf("missing allocation factor")
		}

		county := padDigits(row.Str(crosswalkCounty...), 3)
		state := padDigits(row.Str(crosswalkState...), 2)
		if len(county) < 5 {
			if state == "" {
				state = stateFIPS
			}
			county = domain.CountyID(state, county)
		}
		if stateFIPS != "" && county[:2] != stateFIPS {
			return nil
		}

		alloc := domain.CountyAllocation{
			PUMA:       row.Str(crosswalkPUMA...),
			Vintage:    vintage,
			CountyID:   county,
			CountyName: row.Str(crosswalkName...),
			Fraction:   factor,
		}
		if err := validate.Struct(alloc); err != nil {
			return row.errorf("invalid crosswalk row: %v", err)
		}
		rows = append(rows, alloc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountyIndex maps folded county names to county IDs for inputs that only
// carry names
type CountyIndex map[string]string

// NewCountyIndex indexes the county names of crosswalk rows
func NewCountyIndex(allocs ...[]domain.CountyAllocation) CountyIndex {
	idx := make(CountyIndex)
	for _, rows := range allocs {
		for _, a := range rows {
			if a.CountyName == "" {
				continue
			}
			idx[domain.FoldCountyName(stripStateSuffix(a.CountyName))] = a.CountyID
		}
	}
	return idx
}

// Lookup returns the county ID of a name
func (c CountyIndex) Lookup(name string) (string, bool) {
	id, ok := c[domain.FoldCountyName(stripStateSuffix(name))]
	return id, ok
}

// stripStateSuffix drops Geocorr's trailing state abbreviation: "Alameda CA"
func stripStateSuffix(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, ' '); i > 0 && domain.IsStateAbbrev(name[i+1:]) && strings.ToUpper(name[i+1:]) == name[i+1:] {
		return strings.TrimSpace(name[:i])
	}
	return name
}
