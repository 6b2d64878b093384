package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hudlink/internal/config"
)

func writeConfig(t *testing.T) (cfgPath, envPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "hudlink.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: error\ntelemetry:\n  enable_metrics: false\n"), 0o644))
	return cfgPath, filepath.Join(dir, "missing.env")
}

func TestParseFlags_OnlyGivenFlagsOverride(t *testing.T) {
	f, err := parseFlags([]string{"-states", "fl, ca", "-years", "2022,2023", "-split", "-workers", "3"}, &bytes.Buffer{})
	require.NoError(t, err)
	apply, err := f.overrides()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Pipeline.ExcludeGroupQuarters = true
	cfg.Pipeline.IncomeLimitAgg = "median"
	apply(cfg)

	assert.Equal(t, []string{"fl", "ca"}, cfg.Pipeline.States)
	assert.Equal(t, []int{2022, 2023}, cfg.Pipeline.Years)
	assert.True(t, cfg.Pipeline.SplitHouseholds)
	assert.Equal(t, 3, cfg.Workers.Count)
	assert.True(t, cfg.Pipeline.ExcludeGroupQuarters, "unset flags keep the configured value")
	assert.Equal(t, "median", cfg.Pipeline.IncomeLimitAgg)
}

func TestRun_UsageErrors(t *testing.T) {
	cfgPath, envPath := writeConfig(t)
	tests := []struct {
		name string
		args []string
	}{
		{"bad year", []string{"-years", "twenty"}},
		{"no states configured", []string{"-years", "2023"}},
		{"unknown state", []string{"-states", "ZZ", "-years", "2023"}},
		{"stray argument", []string{"-states", "FL", "-years", "2023", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := append([]string{"-config", cfgPath, "-env", envPath}, tt.args...)
			assert.Equal(t, exitUsage, run(context.Background(), args, &stdout, &stderr))
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRun_MissingInputsFailUnits(t *testing.T) {
	cfgPath, envPath := writeConfig(t)
	out := filepath.Join(t.TempDir(), "out")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgPath, "-env", envPath,
		"-states", "FL,RI", "-years", "2023",
		"-data-dir", t.TempDir(), "-out", out, "-workers", "2",
	}, &stdout, &stderr)

	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stdout.String(), "2 units, 2 failed")
	assert.Contains(t, stdout.String(), "FL_2023")
	assert.Contains(t, stdout.String(), "RI_2023")

	_, err := os.Stat(filepath.Join(out, "FL", "FL_2023"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_CheckReportsMissingInputs(t *testing.T) {
	cfgPath, envPath := writeConfig(t)
	data := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgPath, "-env", envPath, "-check",
		"-states", "FL", "-years", "2023", "-data-dir", data, "-out", filepath.Join(data, "out"),
	}, &stdout, &stderr)

	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stdout.String(), "FL_2023 missing")
	assert.Contains(t, stdout.String(), "survey")
	assert.NoDirExists(t, filepath.Join(data, "out"), "check never writes outputs")
}
