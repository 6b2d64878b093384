package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Threshold is an income limit expressed as a percentage of area median income
type Threshold int

const (
	AMI30 Threshold = 30
	AMI50 Threshold = 50
	AMI80 Threshold = 80
)

// Thresholds lists the nested thresholds, strictest first
var Thresholds = []Threshold{AMI30, AMI50, AMI80}

// String returns the string representation of the threshold
func (t Threshold) String() string {
	return fmt.Sprintf("%d%%", int(t))
}

// Index returns the position of the threshold in Thresholds, or -1
func (t Threshold) Index() int {
	for i, th := range Thresholds {
		if th == t {
			return i
		}
	}
	return -1
}

// MaxHouseholdSize is the largest household size income limits are published for.
// Larger units are looked up at this size.
const MaxHouseholdSize = 8

// IncomeLimit is one published dollar limit
type IncomeLimit struct {
	CountyID      string          `json:"county_id" validate:"required,len=5,numeric"`
	CountyName    string          `json:"county_name"`
	Year          int             `json:"year" validate:"required"`
	HouseholdSize int             `json:"household_size" validate:"min=1,max=8"`
	Threshold     Threshold       `json:"threshold" validate:"oneof=30 50 80"`
	Limit         decimal.Decimal `json:"limit"`
}

// LimitKey identifies one income limit lookup
type LimitKey struct {
	CountyID      string
	Year          int
	HouseholdSize int
	Threshold     Threshold
}

// String returns the string representation of the key
func (k LimitKey) String() string {
	return fmt.Sprintf("county=%s year=%d size=%d threshold=%s", k.CountyID, k.Year, k.HouseholdSize, k.Threshold)
}

// AggregationPolicy resolves several published limits for the same key into one
type AggregationPolicy string

const (
	AggregateMax    AggregationPolicy = "max"
	AggregateMin    AggregationPolicy = "min"
	AggregateMean   AggregationPolicy = "mean"
	AggregateMedian AggregationPolicy = "median"
	AggregateMode   AggregationPolicy = "mode"
)

// ParseAggregationPolicy converts a configuration value into a policy
func ParseAggregationPolicy(s string) (AggregationPolicy, error) {
	p := AggregationPolicy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case AggregateMax, AggregateMin, AggregateMean, AggregateMedian, AggregateMode:
		return p, nil
	}
	return "", fmt.Errorf("unknown income limit aggregation %q (want max, min, mean, median or mode)", s)
}
