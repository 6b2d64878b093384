package domain

// Vintage identifies the PUMA boundary generation a crosswalk was built for
type Vintage int

const (
	// Vintage2012 maps 2010-census PUMAs (MCDC Geocorr 2012)
	Vintage2012 Vintage = 2012
	// Vintage2022 maps 2020-census PUMAs (MCDC Geocorr 2022)
	Vintage2022 Vintage = 2022
)

// Vintages lists the supported crosswalk vintages, oldest first
var Vintages = []Vintage{Vintage2012, Vintage2022}

// String returns the string representation of the vintage
func (v Vintage) String() string {
	switch v {
	case Vintage2012:
		return "2012"
	case Vintage2022:
		return "2022"
	default:
		return "unknown"
	}
}

// IsValid checks if the vintage is supported
func (v Vintage) IsValid() bool {
	return v == Vintage2012 || v == Vintage2022
}

// CountyAllocation is one crosswalk row: the share of a PUMA's population living in a county
type CountyAllocation struct {
	PUMA       string  `json:"puma" validate:"required"`
	Vintage    Vintage `json:"vintage" validate:"required"`
	CountyID   string  `json:"county_id" validate:"required,len=5,numeric"`
	CountyName string  `json:"county_name"`
	Fraction   float64 `json:"allocation_factor" validate:"gte=0,lte=1"`
}
