package domain

// ProgramRecord is one county row of the HUD Picture of Subsidized Households
type ProgramRecord struct {
	CountyID     string             `json:"county_id"`
	CountyName   string             `json:"county_name" validate:"required_without=CountyID"`
	Year         int                `json:"year"`
	ProgramLabel string             `json:"program_label" validate:"required"`
	TotalUnits   float64            `json:"total_units"`
	Attributes   map[string]float64 `json:"attributes,omitempty"`
}

// Suppressed reports whether HUD withheld the unit count. HUD publishes negative
// codes in place of counts that are too small or unavailable.
func (p ProgramRecord) Suppressed() bool {
	return p.TotalUnits < 0
}
