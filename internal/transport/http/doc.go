// Package http implements the HTTP handlers of the run API.
//
// Handlers stay thin: they decode and validate requests, call the services
// layer and render either JSON or an RFC 7807 problem through the errors
// package. Routes are mounted by the app package:
//
//	POST   /api/v1/runs               start a run, 202 with its initial status
//	GET    /api/v1/runs               list runs, newest first
//	GET    /api/v1/runs/{id}          run status with per-unit results
//	DELETE /api/v1/runs/{id}          cancel a running run
//	GET    /api/v1/outputs            committed state/year output directories
//	GET    /api/v1/outputs/{state}/{year}
//	GET    /api/v1/inputs/{state}/{year}  input preflight for one unit
//	GET    /healthz, /readyz
package http
