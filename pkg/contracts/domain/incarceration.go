package domain

// IncarcerationRecord is a county-level count of incarcerated people in one stratum.
// Sources without FIPS codes are matched on the folded county name.
type IncarcerationRecord struct {
	CountyID   string  `json:"county_id" validate:"omitempty,len=5,numeric"`
	CountyName string  `json:"county_name" validate:"required_without=CountyID"`
	Stratum    Stratum `json:"stratum" validate:"required,oneof=total white minority"`
	Count      float64 `json:"count" validate:"gte=0"`
}
