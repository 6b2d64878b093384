// Package shared holds helpers used by more than one hudlink package.
//
// The testutil subpackage provides a capturing slog handler and builders for
// survey, crosswalk and income-limit fixtures:
//
//	logger, logs := testutil.NewTestLogger(t)
//	rec := testutil.NewSurvey("1001", 1).InPUMA("06", "03701").Weights(100, 100).Build()
package shared
