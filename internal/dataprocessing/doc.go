// Package dataprocessing reads the input files of a state/year unit: the
// survey microdata extract, the two PUMA-to-county crosswalk vintages, HUD
// income limits, the HUD Picture of Subsidized Households program file and
// county incarceration counts.
//
// Every file is read into a header-indexed Table, from CSV or from the first
// matching worksheet of an xlsx workbook, and parsed into the domain types.
// Rows are validated against the domain struct tags. A malformed row or
// missing column is an input error naming the file and line.
//
// FileSource implements operations.Source over the configured path templates:
//
//	src := dataprocessing.NewFileSource(cfg.Paths, cfg.Pipeline.AdditionalVariables, logger)
//	in, err := src.Load(ctx, domain.NewUnit("FL", 2023))
package dataprocessing
