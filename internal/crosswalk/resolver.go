// Package crosswalk resolves survey PUMAs to counties using population-weighted
// PUMA-to-county allocation tables. Two boundary vintages are loaded side by
// side; VintagePolicy decides which one a survey record is read against.
package crosswalk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"hudlink/internal/audit"
	apperrors "hudlink/internal/errors"
	"hudlink/pkg/contracts/domain"
)

const stage = "crosswalk"

// normalizationEpsilon is the smallest drift worth recording as a correction.
const normalizationEpsilon = 1e-12

// VintagePolicy selects the crosswalk vintage for a survey record.
//
// Records whose reference year (MULTYEAR, else YEAR) is before Cutover are read
// against the 2012 vintage and later ones against 2022. Products whose sample
// year is FullRecodeYear or later were released entirely on 2020-census PUMAs,
// so every record of such a product uses the 2022 vintage.
type VintagePolicy struct {
	Cutover        int
	FullRecodeYear int
}

// DefaultVintagePolicy matches the ACS switch to 2020-census PUMAs.
var DefaultVintagePolicy = VintagePolicy{Cutover: 2020, FullRecodeYear: 2023}

// Select returns the vintage for a record of sample year YEAR and reference
// year MULTYEAR (zero for single-year products).
func (p VintagePolicy) Select(sampleYear, multiYear int) domain.Vintage {
	if sampleYear >= p.FullRecodeYear {
		return domain.Vintage2022
	}
	ref := sampleYear
	if multiYear > 0 {
		ref = multiYear
	}
	if ref >= p.Cutover {
		return domain.Vintage2022
	}
	return domain.Vintage2012
}

// Correction records how far a PUMA's source fractions were from summing to one.
type Correction struct {
	StateFIPS string
	PUMA      string
	Vintage   domain.Vintage
	SourceSum float64
	Magnitude float64
}

type pumaKey struct {
	vintage domain.Vintage
	state   string
	puma    string
}

// Resolver answers PUMA lookups against the loaded vintages. It is built once
// per state/year unit and is read-only after loading.
type Resolver struct {
	policy      VintagePolicy
	entries     map[pumaKey][]domain.CountyAllocation
	countyNames map[string]string
	corrections []Correction
	logger      *slog.Logger
	audit       *audit.Log
}

// NewResolver creates an empty resolver.
func NewResolver(policy VintagePolicy, logger *slog.Logger, log *audit.Log) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		policy:      policy,
		entries:     make(map[pumaKey][]domain.CountyAllocation),
		countyNames: make(map[string]string),
		logger:      logger.With(slog.String("stage", stage)),
		audit:       log,
	}
}

// NormalizePUMA strips whitespace and leading zeros so "00100" and "100" match.
func NormalizePUMA(puma string) string {
	p := strings.TrimLeft(strings.TrimSpace(puma), "0")
	if p == "" {
		return "0"
	}
	return p
}

// Load adds one vintage's rows. Rows repeating a (PUMA, county) pair are
// dropped after the first. Fractions are rescaled per PUMA to sum to exactly
// one and every rescale is recorded as a Correction and audit flag.
func (r *Resolver) Load(ctx context.Context, vintage domain.Vintage, rows []domain.CountyAllocation) error {
	if !vintage.IsValid() {
		return apperrors.NewInputError(fmt.Sprintf("unsupported crosswalk vintage %d", vintage), nil)
	}

	grouped := make(map[pumaKey][]domain.CountyAllocation)
	seen := make(map[string]bool)
	for i, row := range rows {
		if len(row.CountyID) != 5 {
			return apperrors.NewInputError(fmt.Sprintf("crosswalk %s row %d: county id %q is not five digits", vintage, i+1, row.CountyID), nil)
		}
		if row.Fraction < 0 || math.IsNaN(row.Fraction) || math.IsInf(row.Fraction, 0) {
			return apperrors.NewInputError(fmt.Sprintf("crosswalk %s row %d: invalid allocation factor %v", vintage, i+1, row.Fraction), nil)
		}
		row.Vintage = vintage
		row.PUMA = NormalizePUMA(row.PUMA)
		key := pumaKey{vintage: vintage, state: row.CountyID[:2], puma: row.PUMA}

		dup := fmt.Sprintf("%d/%s/%s/%s", vintage, key.state, key.puma, row.CountyID)
		if seen[dup] {
			r.audit.Flag(ctx, domain.FlagCrosswalkDuplicate, stage, dup, "repeated PUMA/county row dropped")
			continue
		}
		seen[dup] = true

		grouped[key] = append(grouped[key], row)
		if row.CountyName != "" {
			r.countyNames[row.CountyID] = row.CountyName
		}
	}

	for key, allocs := range grouped {
		sum := 0.0
		for _, a := range allocs {
			sum += a.Fraction
		}
		if sum <= 0 {
			return apperrors.NewInputError(fmt.Sprintf("crosswalk %s PUMA %s/%s: allocation factors sum to zero", vintage, key.state, key.puma), nil)
		}
		for i := range allocs {
			allocs[i].Fraction /= sum
		}

		if drift := math.Abs(sum - 1); drift > normalizationEpsilon {
			c := Correction{StateFIPS: key.state, PUMA: key.puma, Vintage: vintage, SourceSum: sum, Magnitude: drift}
			r.corrections = append(r.corrections, c)
			r.audit.Flag(ctx, domain.FlagCrosswalkNormalized, stage,
				fmt.Sprintf("%s/%s/%s", vintage, key.state, key.puma),
				fmt.Sprintf("allocation factors summed to %.9f, rescaled", sum))
		}

		sort.SliceStable(allocs, func(i, j int) bool {
			if allocs[i].Fraction != allocs[j].Fraction {
				return allocs[i].Fraction > allocs[j].Fraction
			}
			return allocs[i].CountyID < allocs[j].CountyID
		})
		r.entries[key] = allocs
	}

	sort.Slice(r.corrections, func(i, j int) bool {
		a, b := r.corrections[i], r.corrections[j]
		if a.Vintage != b.Vintage {
			return a.Vintage < b.Vintage
		}
		if a.StateFIPS != b.StateFIPS {
			return a.StateFIPS < b.StateFIPS
		}
		return a.PUMA < b.PUMA
	})

	r.logger.InfoContext(ctx, "crosswalk loaded",
		"vintage", vintage.String(),
		"rows", len(rows),
		"pumas", len(grouped),
		"corrections", len(r.corrections),
	)
	return nil
}

// Resolve returns the counties a PUMA allocates to, largest share first.
// The returned slice is a copy. A PUMA absent from the vintage yields
// *errors.MissingCrosswalkEntryError.
func (r *Resolver) Resolve(stateFIPS, puma string, vintage domain.Vintage) ([]domain.CountyAllocation, error) {
	state := domain.CountyID(stateFIPS, "")[:2]
	allocs, ok := r.entries[pumaKey{vintage: vintage, state: state, puma: NormalizePUMA(puma)}]
	if !ok {
		return nil, &apperrors.MissingCrosswalkEntryError{StateFIPS: state, PUMA: puma, Vintage: int(vintage)}
	}
	out := make([]domain.CountyAllocation, len(allocs))
	copy(out, allocs)
	return out, nil
}

// ResolveRecord resolves a survey record against the vintage its years select.
func (r *Resolver) ResolveRecord(rec domain.SurveyRecord) (domain.Vintage, []domain.CountyAllocation, error) {
	vintage := r.policy.Select(rec.SampleYear, rec.MultiYear)
	allocs, err := r.Resolve(rec.StateFIPS, rec.PUMA, vintage)
	return vintage, allocs, err
}

// Policy returns the vintage selection policy.
func (r *Resolver) Policy() VintagePolicy {
	return r.policy
}

// CountyName returns the crosswalk name of a county, or "".
func (r *Resolver) CountyName(countyID string) string {
	return r.countyNames[countyID]
}

// Corrections returns the normalization corrections made while loading.
func (r *Resolver) Corrections() []Correction {
	out := make([]Correction, len(r.corrections))
	copy(out, r.corrections)
	return out
}

// MaxCorrection returns the largest correction magnitude, or zero.
func (r *Resolver) MaxCorrection() float64 {
	m := 0.0
	for _, c := range r.corrections {
		m = math.Max(m, c.Magnitude)
	}
	return m
}

// PUMACount returns the number of PUMAs loaded for a vintage.
func (r *Resolver) PUMACount(vintage domain.Vintage) int {
	n := 0
	for k := range r.entries {
		if k.vintage == vintage {
			n++
		}
	}
	return n
}
