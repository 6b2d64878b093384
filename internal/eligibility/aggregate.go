package eligibility

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"hudlink/pkg/contracts/domain"
)

// Aggregate collapses several published limits for one key into one value.
// Mean and median results are rounded to cents; mode ties resolve to the
// smallest value.
func Aggregate(policy domain.AggregationPolicy, values []decimal.Decimal) (decimal.Decimal, error) {
	if len(values) == 0 {
		return decimal.Zero, fmt.Errorf("aggregate %s: no values", policy)
	}
	if len(values) == 1 {
		return values[0], nil
	}

	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	switch policy {
	case domain.AggregateMax:
		return sorted[len(sorted)-1], nil
	case domain.AggregateMin:
		return sorted[0], nil
	case domain.AggregateMean:
		return decimal.Sum(sorted[0], sorted[1:]...).Div(decimal.NewFromInt(int64(len(sorted)))).Round(2), nil
	case domain.AggregateMedian:
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid], nil
		}
		return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2)).Round(2), nil
	case domain.AggregateMode:
		best, bestCount := sorted[0], 0
		for i := 0; i < len(sorted); {
			j := i
			for j < len(sorted) && sorted[j].Equal(sorted[i]) {
				j++
			}
			if j-i > bestCount {
				best, bestCount = sorted[i], j-i
			}
			i = j
		}
		return best, nil
	}
	return decimal.Zero, fmt.Errorf("unknown aggregation policy %q", policy)
}
