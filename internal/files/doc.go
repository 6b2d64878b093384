// Package files manages the output directory.
//
// Manager is the operations.Sink for files: a unit's tables are exported into
// a staging directory by Prepare and renamed into <out>/<STATE>/<STATE>_<YEAR>
// only when the export step commits, after every sink has prepared. A failed
// or cancelled unit leaves the previous output untouched.
//
// Discovery lists committed unit directories and their files.
//
//	sink := files.NewManager(cfg.Paths, nil, logger)
//	registry, err := operations.NewPipeline(source, sink)
//
//	units, err := files.NewDiscovery(cfg.Paths.OutputDir).ListUnits()
package files
