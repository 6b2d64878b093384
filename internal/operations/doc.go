// Package operations runs one state/year unit through the eligibility
// pipeline as a sequence of registered steps.
//
// Core Components:
//
// Step: one stage of the pipeline. Steps declare the steps they depend on and
// read and write the unit's Dataset.
//
// Registry: holds the steps and orders them by dependency.
//
// Manager: executes a unit. Steps run sequentially with per-step timeouts;
// storage failures are retried, data integrity faults abort the unit and
// every later step is skipped, so a unit that fails never reaches its sinks.
//
// OperationState: the status, step states, audit log and intermediate
// Dataset of one unit.
//
// Example usage:
//
//	registry, err := operations.NewPipeline(source, fileSink)
//	manager := operations.NewManager(registry, operations.NewConfig(), tracer, logger)
//	opts, err := operations.OptionsFromConfig(cfg.Pipeline)
//	resp, out, err := manager.Execute(ctx, operations.Request{
//		Unit:    domain.NewUnit("FL", 2023),
//		Options: opts,
//	})
package operations
