package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hudlink/internal/errors"
	"hudlink/internal/linkage"
	"hudlink/pkg/contracts/domain"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Pipeline.States = []string{"FL"}
	cfg.Pipeline.Years = []int{2023}
	return cfg
}

func TestDefault_IsValidWithoutUnits(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Units())

	assert.NoError(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown state", func(c *Config) { c.Pipeline.States = []string{"XX"} }, "state_abbrev"},
		{"year out of range", func(c *Config) { c.Pipeline.Years = []int{1990} }, "Years"},
		{"bad aggregation", func(c *Config) { c.Pipeline.IncomeLimitAgg = "sum" }, "IncomeLimitAgg"},
		{"zero tolerance", func(c *Config) { c.Pipeline.WeightTolerance = 0 }, "WeightTolerance"},
		{"recode before cutover", func(c *Config) { c.Pipeline.FullRecodeYear = 2019 }, "FullRecodeYear"},
		{"unknown program", func(c *Config) { c.Pipeline.ProgramLabels = []string{"Section 9"} }, "program_labels"},
		{"no workers", func(c *Config) { c.Workers.Count = 0 }, "Count"},
		{"store without table", func(c *Config) { c.Store.DSN = "postgres://x"; c.Store.Table = "" }, "Table"},
		{"file log without path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "FilePath"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.States = []string{" fl", "", "ca "}
	cfg.Pipeline.ProgramLabels = []string{"hcv", "PH", "Housing Choice Vouchers"}
	cfg.Pipeline.IncomeLimitAgg = " Median "
	cfg.Normalize()

	assert.Equal(t, []string{"FL", "CA"}, cfg.Pipeline.States)
	assert.Equal(t, []string{linkage.ProgramVouchers, linkage.ProgramPublicHousing}, cfg.Pipeline.ProgramLabels)
	assert.Equal(t, "median", cfg.Pipeline.IncomeLimitAgg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Layering(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "hudlink.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
pipeline:
  states: [fl, ct]
  years: [2022, 2023]
  program_labels: [HCV]
  income_limit_agg: min
  split_households_into_families: true
paths:
  data_dir: /srv/data
server:
  read_timeout: 5s
`), 0o644))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("HUDLINK_WORKERS_COUNT=3\nHUDLINK_PIPELINE_INCOME_LIMIT_AGG=mean\n"), 0o644))

	t.Setenv("HUDLINK_PIPELINE_INCOME_LIMIT_AGG", "median")
	t.Setenv("HUDLINK_PIPELINE_INCOME_FLOOR", "0")

	t.Cleanup(func() { os.Unsetenv("HUDLINK_WORKERS_COUNT") })

	cfg, err := Load(LoadOptions{ConfigFile: yamlPath, EnvFile: envPath})
	require.NoError(t, err)

	assert.Equal(t, []string{"FL", "CT"}, cfg.Pipeline.States)
	assert.Equal(t, []int{2022, 2023}, cfg.Pipeline.Years)
	assert.Equal(t, []string{linkage.ProgramVouchers}, cfg.Pipeline.ProgramLabels)
	assert.True(t, cfg.Pipeline.SplitHouseholds)
	assert.Equal(t, "median", cfg.Pipeline.IncomeLimitAgg, "process env wins over .env and yaml")
	assert.Equal(t, 3, cfg.Workers.Count, ".env fills unset variables")
	require.NotNil(t, cfg.Pipeline.IncomeFloor)
	assert.Equal(t, 0.0, *cfg.Pipeline.IncomeFloor)
	assert.Equal(t, "/srv/data", cfg.Paths.DataDir)
	assert.Equal(t, DefaultOutputDir, cfg.Paths.OutputDir, "defaults survive a partial file")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Pipeline.IncarcerationStratified)
	assert.Len(t, cfg.Units(), 4)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hudlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  stats: [fl]\n"), 0o644))

	_, err := Load(LoadOptions{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
}

func TestLoad_OverridesWinAndAreValidated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hudlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  states: [fl]\n  years: [2021]\n"), 0o644))
	missingEnv := filepath.Join(dir, "missing.env")

	cfg, err := Load(LoadOptions{ConfigFile: path, EnvFile: missingEnv, Overrides: func(c *Config) {
		c.Pipeline.States = []string{"ri"}
		c.Workers.Count = 4
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"RI"}, cfg.Pipeline.States)
	assert.Equal(t, []int{2021}, cfg.Pipeline.Years)
	assert.Equal(t, 4, cfg.Workers.Count)

	_, err = Load(LoadOptions{ConfigFile: path, EnvFile: missingEnv, Overrides: func(c *Config) {
		c.Workers.Count = 0
	}})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
}

func TestPaths(t *testing.T) {
	p := Default().Paths
	p.DataDir = "data"
	p.OutputDir = "out"
	unit := domain.NewUnit("fl", 2023)

	in := p.Inputs(unit)
	assert.Equal(t, filepath.Join("data", "fl", "fl_ipums_2023.csv"), in.Survey)
	assert.Equal(t, filepath.Join("data", "fl", "fl_geocorr_puma_2012.csv"), in.Crosswalk2012)
	assert.Equal(t, filepath.Join("data", "fl", "fl_income_limits", "fl_2023_income_limits.csv"), in.IncomeLimits)
	assert.Equal(t, filepath.Join("data", "fl", "fl_hud_pic_sub_housing", "fl_hud_hcv_picsubhhds_2023.csv"), in.Programs)

	p.Incarceration = ""
	assert.Empty(t, p.Inputs(unit).Incarceration)

	assert.Equal(t, filepath.Join("out", "FL", "FL_2023"), p.UnitDir(unit))
}
