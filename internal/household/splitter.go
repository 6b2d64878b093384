// Package household turns located person rows into units of analysis: one
// per household and county, or one per family when multi-family households
// are split.
package household

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"hudlink/internal/audit"
	apperrors "hudlink/internal/errors"
	"hudlink/pkg/contracts/domain"
)

const stage = "household"

// Options controls unit construction.
type Options struct {
	// SplitFamilies decomposes multi-family households into one unit per family.
	SplitFamilies bool
	// Tolerance bounds the drift allowed between a household's weight and
	// the sum of its families' weights.
	Tolerance float64
	// AdditionalVariables are copied from the reference person onto the unit.
	AdditionalVariables []string
}

// Splitter builds HouseholdRecords from located person rows.
type Splitter struct {
	opts   Options
	logger *slog.Logger
	audit  *audit.Log
}

// NewSplitter creates a splitter.
func NewSplitter(opts Options, logger *slog.Logger, log *audit.Log) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{opts: opts, logger: logger.With(slog.String("stage", stage)), audit: log}
}

type householdKey struct {
	serial string
	county string
}

// Build groups person rows by household and county and emits the units in
// (county, serial, family) order.
func (s *Splitter) Build(ctx context.Context, records []domain.LocatedRecord) ([]domain.HouseholdRecord, error) {
	groups := make(map[householdKey][]domain.LocatedRecord)
	var order []householdKey
	for _, r := range records {
		k := householdKey{serial: r.Serial, county: r.CountyID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	units := make([]domain.HouseholdRecord, 0, len(order))
	split := 0
	for _, k := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.Split(ctx, groups[k])
		if err != nil {
			return nil, err
		}
		if len(out) > 1 {
			split++
		}
		units = append(units, out...)
	}

	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if a.CountyID != b.CountyID {
			return a.CountyID < b.CountyID
		}
		if a.SourceSerial != b.SourceSerial {
			return serialLess(a.SourceSerial, b.SourceSerial)
		}
		return a.FamilyIndex < b.FamilyIndex
	})

	s.logger.InfoContext(ctx, "units built",
		"rows_in", len(records),
		"households", len(order),
		"split_households", split,
		"rows_out", len(units),
		"split_enabled", s.opts.SplitFamilies,
	)
	return units, nil
}

// Split turns the members of one household in one county into units. With
// splitting disabled, or fewer than two families present, it returns a single
// unit carrying the household weight. Otherwise each family receives the
// household weight scaled by its share of the household's person weight.
func (s *Splitter) Split(ctx context.Context, members []domain.LocatedRecord) ([]domain.HouseholdRecord, error) {
	if len(members) == 0 {
		return nil, nil
	}
	members = sortedMembers(members)
	families := groupFamilies(members)
	weight := members[0].AllocatedWeight

	if !s.opts.SplitFamilies || len(families) < 2 {
		unit := s.newUnit(members, 0, weight, weight, len(families))
		return []domain.HouseholdRecord{unit}, nil
	}

	shares := personWeightShares(families)
	if shares == nil {
		shares = memberCountShares(families, len(members))
		s.audit.Flag(ctx, domain.FlagZeroPersonWeight, stage, serialNumber(members[0].Serial, members[0].CountyID, 0),
			"household person weights sum to zero; families weighted by member count")
	}

	units := make([]domain.HouseholdRecord, 0, len(families))
	total := 0.0
	for i, fam := range families {
		w := weight * shares[i]
		total += w
		units = append(units, s.newUnit(fam.members, fam.index, w, weight, len(families)))
	}

	if math.Abs(total-weight) > s.opts.Tolerance*math.Max(1, math.Abs(weight)) {
		return nil, &apperrors.WeightInvariantViolationError{
			Stage:     stage,
			Key:       "household " + members[0].Serial + " county " + members[0].CountyID,
			Expected:  weight,
			Actual:    total,
			Tolerance: s.opts.Tolerance,
		}
	}
	return units, nil
}

type family struct {
	index   int
	members []domain.LocatedRecord
}

// groupFamilies partitions members by FAMUNIT; code 0 belongs to the first family.
func groupFamilies(members []domain.LocatedRecord) []family {
	byUnit := make(map[int][]domain.LocatedRecord)
	for _, m := range members {
		u := m.FamilyUnit
		if u < 1 {
			u = 1
		}
		byUnit[u] = append(byUnit[u], m)
	}
	out := make([]family, 0, len(byUnit))
	for u, ms := range byUnit {
		out = append(out, family{index: u, members: ms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

func personWeightShares(families []family) []float64 {
	sums := make([]float64, len(families))
	total := 0.0
	for i, f := range families {
		for _, m := range f.members {
			sums[i] += m.PersonWeight
		}
		total += sums[i]
	}
	if total <= 0 {
		return nil
	}
	for i := range sums {
		sums[i] /= total
	}
	return sums
}

func memberCountShares(families []family, n int) []float64 {
	shares := make([]float64, len(families))
	for i, f := range families {
		shares[i] = float64(len(f.members)) / float64(n)
	}
	return shares
}

func (s *Splitter) newUnit(members []domain.LocatedRecord, famIndex int, weight, householdWeight float64, nfams int) domain.HouseholdRecord {
	head := members[0]
	personWeight := 0.0
	for _, m := range members {
		personWeight += m.PersonWeight
	}
	// FAMSIZE of the reference person counts only the reference family, so
	// unrelated members do not enlarge the unit
	size := head.FamilySize
	if size < 1 {
		size = len(members)
	}
	bucket := size
	if bucket > domain.MaxHouseholdSize {
		bucket = domain.MaxHouseholdSize
	}

	return domain.HouseholdRecord{
		SerialNumber:    serialNumber(head.Serial, head.CountyID, famIndex),
		SourceSerial:    head.Serial,
		FamilyIndex:     famIndex,
		SampleYear:      head.SampleYear,
		StateFIPS:       head.StateFIPS,
		CountyID:        head.CountyID,
		CountyName:      head.CountyName,
		PUMA:            head.PUMA,
		Vintage:         head.Vintage,
		Imputed:         head.Imputed,
		HouseholdWeight: householdWeight,
		Weight:          weight,
		PersonWeight:    personWeight,
		FamilySize:      size,
		NumFamilies:     nfams,
		GroupQuarters:   head.GroupQuarters,
		Members:         members,
		Demographics:    BuildDemographics(members, s.opts.AdditionalVariables),
		SizeBucket:      bucket,
	}
}

// serialNumber derives the unit id. Family index 0 marks an unsplit household.
func serialNumber(serial, countyID string, famIndex int) string {
	return fmt.Sprintf("%s-%s-%d", serial, countyID, famIndex)
}

// sortedMembers orders members reference person first, then spouse, then by
// person number. The first element is the unit's reference person.
func sortedMembers(members []domain.LocatedRecord) []domain.LocatedRecord {
	out := make([]domain.LocatedRecord, len(members))
	copy(out, members)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := relatePriority(out[i].Person.Relate), relatePriority(out[j].Person.Relate)
		if pi != pj {
			return pi < pj
		}
		return out[i].PersonNumber < out[j].PersonNumber
	})
	return out
}

func relatePriority(relate int) int {
	switch relate {
	case 1:
		return 0
	case 2:
		return 1
	default:
		return 2
	}
}

// serialLess orders numeric serials numerically and everything else lexically.
func serialLess(a, b string) bool {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
