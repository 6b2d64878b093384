package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"hudlink/pkg/contracts/domain"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// UnitOutput is a committed unit directory and its files
type UnitOutput struct {
	Unit    domain.Unit `json:"unit"`
	Dir     string      `json:"dir"`
	ModTime time.Time   `json:"mod_time"`
	Files   []FileInfo  `json:"files"`
}

// Discovery lists committed outputs under the output directory
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// ListUnits returns every <STATE>/<STATE>_<YEAR> directory, ordered by state
// then year. Staging and replaced directories are ignored.
func (d *Discovery) ListUnits() ([]UnitOutput, error) {
	states, err := os.ReadDir(d.basePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.basePath, err)
	}

	var out []UnitOutput
	for _, st := range states {
		if !st.IsDir() || !domain.IsStateAbbrev(st.Name()) {
			continue
		}
		stateDir := filepath.Join(d.basePath, st.Name())
		entries, err := os.ReadDir(stateDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", stateDir, err)
		}
		for _, e := range entries {
			unit, ok := parseUnitDir(st.Name(), e.Name())
			if !e.IsDir() || !ok {
				continue
			}
			dir := filepath.Join(stateDir, e.Name())
			files, err := d.FindFiles(dir)
			if err != nil {
				return nil, err
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, UnitOutput{Unit: unit, Dir: dir, ModTime: info.ModTime(), Files: files})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Unit.State != out[j].Unit.State {
			return out[i].Unit.State < out[j].Unit.State
		}
		return out[i].Unit.Year < out[j].Unit.Year
	})
	return out, nil
}

// FindUnit returns the committed output of one unit
func (d *Discovery) FindUnit(unit domain.Unit) (UnitOutput, bool, error) {
	units, err := d.ListUnits()
	if err != nil {
		return UnitOutput{}, false, err
	}
	for _, u := range units {
		if u.Unit == unit {
			return u, true, nil
		}
	}
	return UnitOutput{}, false, nil
}

// parseUnitDir accepts "FL_2023" under "FL"
func parseUnitDir(state, name string) (domain.Unit, bool) {
	prefix := state + "_"
	if !strings.HasPrefix(name, prefix) {
		return domain.Unit{}, false
	}
	year, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil {
		return domain.Unit{}, false
	}
	return domain.NewUnit(state, year), true
}

// FindFiles lists the regular files of a directory sorted by name
func (d *Discovery) FindFiles(dir string) ([]FileInfo, error) {
	fullPath := dir
	if !filepath.IsAbs(dir) {
		fullPath = filepath.Join(d.basePath, dir)
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, entry.Name()),
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// FindFilesByPattern finds files matching a glob pattern
func (d *Discovery) FindFilesByPattern(dir string, pattern string) ([]FileInfo, error) {
	files, err := d.FindFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	for _, f := range files {
		ok, err := filepath.Match(pattern, f.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}
