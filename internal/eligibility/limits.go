package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"hudlink/internal/audit"
	apperrors "hudlink/internal/errors"
	"hudlink/pkg/contracts/domain"
)

const stage = "eligibility"

// LimitTable resolves income limits by county, year, household size and threshold.
type LimitTable struct {
	policy domain.AggregationPolicy
	limits map[domain.LimitKey]decimal.Decimal
	names  map[string]string
}

// NewLimitTable indexes limit rows. Keys published more than once are
// collapsed with policy and flagged once per county. Counties whose limits
// are not nested (30% <= 50% <= 80%) are flagged too.
func NewLimitTable(ctx context.Context, rows []domain.IncomeLimit, policy domain.AggregationPolicy, logger *slog.Logger, log *audit.Log) (*LimitTable, error) {
	policy, err := domain.ParseAggregationPolicy(string(policy))
	if err != nil {
		return nil, apperrors.NewConfigError("income limit aggregation", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	grouped := make(map[domain.LimitKey][]decimal.Decimal)
	names := make(map[string]string)
	for _, row := range rows {
		size := row.HouseholdSize
		if size < 1 || size > domain.MaxHouseholdSize || row.Threshold.Index() < 0 {
			return nil, apperrors.NewInputError(fmt.Sprintf("income limit for county %s: invalid size %d or threshold %d", row.CountyID, size, row.Threshold), nil)
		}
		key := domain.LimitKey{CountyID: row.CountyID, Year: row.Year, HouseholdSize: size, Threshold: row.Threshold}
		grouped[key] = append(grouped[key], row.Limit)
		if row.CountyName != "" {
			names[row.CountyID] = row.CountyName
		}
	}

	t := &LimitTable{policy: policy, limits: make(map[domain.LimitKey]decimal.Decimal, len(grouped)), names: names}
	aggregated := make(map[string]int)
	for key, values := range grouped {
		v, err := Aggregate(policy, values)
		if err != nil {
			return nil, err
		}
		if len(values) > 1 {
			aggregated[fmt.Sprintf("%s/%d", key.CountyID, key.Year)] = len(values)
		}
		t.limits[key] = v
	}

	for _, k := range sortedKeys(aggregated) {
		log.Flag(ctx, domain.FlagLimitsAggregated, stage, k,
			fmt.Sprintf("%d limits published for the same key; resolved with %s", aggregated[k], policy))
	}
	for _, k := range t.unnested() {
		log.Flag(ctx, domain.FlagLimitsNotNested, stage, k, "30%/50%/80% limits are not ascending; eligibility is made cumulative")
	}

	logger.InfoContext(ctx, "income limits indexed",
		"stage", stage,
		"rows", len(rows),
		"keys", len(t.limits),
		"aggregation", string(policy),
		"aggregated_counties", len(aggregated),
	)
	return t, nil
}

// Lookup returns the limit for a key. A missing key yields
// *errors.InvalidIncomeLimitLookupError.
func (t *LimitTable) Lookup(key domain.LimitKey) (decimal.Decimal, error) {
	v, ok := t.limits[key]
	if !ok {
		return decimal.Zero, &apperrors.InvalidIncomeLimitLookupError{
			CountyID:      key.CountyID,
			Year:          key.Year,
			HouseholdSize: key.HouseholdSize,
			Threshold:     int(key.Threshold),
		}
	}
	return v, nil
}

// CountyName returns the name published with a county's limits.
func (t *LimitTable) CountyName(countyID string) string {
	return t.names[countyID]
}

// Policy returns the aggregation policy the table was built with.
func (t *LimitTable) Policy() domain.AggregationPolicy {
	return t.policy
}

// Len returns the number of resolved keys.
func (t *LimitTable) Len() int {
	return len(t.limits)
}

func (t *LimitTable) unnested() []string {
	bad := make(map[string]int)
	for key := range t.limits {
		if key.Threshold != domain.AMI30 {
			continue
		}
		l30 := t.limits[key]
		k50, k80 := key, key
		k50.Threshold, k80.Threshold = domain.AMI50, domain.AMI80
		l50, ok50 := t.limits[k50]
		l80, ok80 := t.limits[k80]
		if (ok50 && l30.GreaterThan(l50)) || (ok50 && ok80 && l50.GreaterThan(l80)) {
			bad[fmt.Sprintf("%s/%d", key.CountyID, key.Year)]++
		}
	}
	return sortedKeys(bad)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
