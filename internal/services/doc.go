// Package services sits between the transports (HTTP API, CLI) and the
// operations manager.
//
// RunService turns a run request (states × years plus option overrides) into
// one operations.Request per unit, executes the units with bounded
// concurrency and keeps a status record per run:
//
//	runs := services.NewRunService(cfg.Pipeline, cfg.Workers.Count, manager, logger)
//	status, err := runs.Start(ctx, services.RunRequest{States: []string{"FL"}, Years: []int{2023}})
//
// Each unit either completes and is committed by the export step, or fails or
// is cancelled and leaves no output behind. One unit's failure is recorded on
// its UnitStatus and does not affect the other units of the run.
//
// HealthService backs the liveness and readiness endpoints.
package services
