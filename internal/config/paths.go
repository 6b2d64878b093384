package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"hudlink/pkg/contracts/domain"
)

// InputFiles are the resolved source files of one state/year unit
type InputFiles struct {
	Survey        string `json:"survey"`
	Crosswalk2012 string `json:"crosswalk_2012"`
	Crosswalk2022 string `json:"crosswalk_2022"`
	IncomeLimits  string `json:"income_limits"`
	Programs      string `json:"programs,omitempty"`
	Incarceration string `json:"incarceration,omitempty"`
}

// Inputs resolves the file templates for a unit
func (p PathsConfig) Inputs(unit domain.Unit) InputFiles {
	r := strings.NewReplacer(
		"{data_dir}", p.DataDir,
		"{state}", strings.ToLower(unit.State),
		"{STATE}", strings.ToUpper(unit.State),
		"{year}", fmt.Sprint(unit.Year),
	)
	resolve := func(tmpl string) string {
		if tmpl == "" {
			return ""
		}
		return filepath.Clean(r.Replace(tmpl))
	}
	return InputFiles{
		Survey:        resolve(p.Survey),
		Crosswalk2012: resolve(p.Crosswalk2012),
		Crosswalk2022: resolve(p.Crosswalk2022),
		IncomeLimits:  resolve(p.IncomeLimits),
		Programs:      resolve(p.Programs),
		Incarceration: resolve(p.Incarceration),
	}
}

// UnitDir returns <output_dir>/<STATE>/<STATE>_<YEAR>
func (p PathsConfig) UnitDir(unit domain.Unit) string {
	state := strings.ToUpper(unit.State)
	return filepath.Join(p.OutputDir, state, fmt.Sprintf("%s_%d", state, unit.Year))
}
