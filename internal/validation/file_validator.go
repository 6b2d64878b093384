package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hudlink/internal/config"
	apperrors "hudlink/internal/errors"
	"hudlink/pkg/contracts/domain"
)

// Input roles as reported by CheckUnit
const (
	RoleSurvey        = "survey"
	RoleCrosswalk2012 = "crosswalk_2012"
	RoleCrosswalk2022 = "crosswalk_2022"
	RoleIncomeLimits  = "income_limits"
	RolePrograms      = "programs"
	RoleIncarceration = "incarceration"
)

var tableExtensions = map[string]bool{".csv": true, ".xlsx": true, ".xlsm": true}

// FileCheck is the preflight result of one input file
type FileCheck struct {
	Role  string `json:"role"`
	Path  string `json:"path"`
	Size  int64  `json:"size,omitempty"`
	Error string `json:"error,omitempty"`
}

// UnitCheck lists every configured input of a unit
type UnitCheck struct {
	Unit  domain.Unit `json:"unit"`
	Files []FileCheck `json:"files"`
}

// OK reports whether every input passed
func (c UnitCheck) OK() bool {
	for _, f := range c.Files {
		if f.Error != "" {
			return false
		}
	}
	return true
}

// FileValidator checks unit inputs and the output directory before a run
type FileValidator struct {
	paths  config.PathsConfig
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(paths config.PathsConfig, logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		paths:  paths,
		logger: logger.With(slog.String("component", "validation")),
	}
}

// CheckUnit resolves the unit's input templates and validates each
// configured file. Unconfigured optional inputs are omitted.
func (v *FileValidator) CheckUnit(unit domain.Unit) UnitCheck {
	in := v.paths.Inputs(unit)
	check := UnitCheck{Unit: unit}
	for _, f := range []struct {
		role, path string
	}{
		{RoleSurvey, in.Survey},
		{RoleCrosswalk2012, in.Crosswalk2012},
		{RoleCrosswalk2022, in.Crosswalk2022},
		{RoleIncomeLimits, in.IncomeLimits},
		{RolePrograms, in.Programs},
		{RoleIncarceration, in.Incarceration},
	} {
		if f.path == "" {
			continue
		}
		fc := FileCheck{Role: f.role, Path: f.path}
		size, err := v.ValidateTable(f.path)
		if err != nil {
			fc.Error = err.Error()
		}
		fc.Size = size
		check.Files = append(check.Files, fc)
	}

	if !check.OK() {
		v.logger.Warn("unit inputs incomplete", slog.String("unit", unit.String()))
	}
	return check
}

// CheckUnits runs CheckUnit for every unit
func (v *FileValidator) CheckUnits(units []domain.Unit) []UnitCheck {
	checks := make([]UnitCheck, 0, len(units))
	for _, u := range units {
		checks = append(checks, v.CheckUnit(u))
	}
	return checks
}

// ValidateTable checks that path is a readable CSV or workbook and returns
// its size. Office lock files (~$name.xlsx) are rejected.
func (v *FileValidator) ValidateTable(path string) (int64, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !tableExtensions[ext] {
		return 0, apperrors.NewInputError(fmt.Sprintf("%s is not a CSV or Excel file (extension %q)", path, ext), nil)
	}
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return 0, apperrors.NewInputError(fmt.Sprintf("%s is a temporary Excel file", path), nil)
	}
	return v.ValidateFile(path)
}

// ValidateFile checks that path exists, is a regular file and can be opened
func (v *FileValidator) ValidateFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, apperrors.NewInputError(fmt.Sprintf("input file not found: %s", path), err)
	}
	if err != nil {
		return 0, apperrors.NewStorageError(fmt.Sprintf("failed to stat %s", path), err)
	}
	if info.IsDir() {
		return 0, apperrors.NewInputError(fmt.Sprintf("%s is a directory, not a file", path), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, apperrors.NewStorageError(fmt.Sprintf("%s is not readable", path), err)
	}
	file.Close()

	v.logger.Debug("file validated", slog.String("file", path), slog.Int64("size", info.Size()))
	return info.Size(), nil
}

// ValidateOutputDirectory creates dir if needed and verifies it is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if dir == "" {
		return apperrors.NewConfigError("output directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to create output directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, ".write_test-*")
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	name := tmp.Name()
	tmp.Close()
	os.Remove(name)
	return nil
}

// ValidateInputDirectory requires dir to exist and be a directory
func (v *FileValidator) ValidateInputDirectory(dir string) error {
	if dir == "" {
		return apperrors.NewConfigError("data directory not configured", nil)
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return apperrors.NewInputError(fmt.Sprintf("data directory %s does not exist", dir), err)
	}
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to stat directory %s", dir), err)
	}
	if !info.IsDir() {
		return apperrors.NewInputError(fmt.Sprintf("%s is not a directory", dir), nil)
	}
	return nil
}
