// Package app wires hudlink together: configuration, logging, OpenTelemetry,
// the state/year unit pipeline with its file and Postgres sinks, the run
// service and the HTTP router.
//
// Both binaries build on it. The batch CLI calls New and drives
// RunService.RunAll directly; the server calls NewApplication and Run:
//
//	application, err := app.NewApplication(ctx, config.LoadOptions{})
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// Run blocks until SIGINT or SIGTERM, then stops accepting requests, cancels
// active runs and flushes telemetry. Initialization errors are returned to
// the caller; the package never exits the process.
package app
