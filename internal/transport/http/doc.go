// Package http serves the local status endpoints of a running licensebeat
// process.
//
// Routes:
//
//	GET /healthz  200 while the process is registered and heartbeating, 503 otherwise
//	GET /status   JSON snapshot of the lifecycle
//	GET /metrics  Prometheus exposition, when the exporter is enabled
//
// Errors are rendered as JSON through go-chi/render using the APIError
// values from internal/errors.
package http
