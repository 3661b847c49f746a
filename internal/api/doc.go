// Package api hosts the HTTP server, middleware and REST handlers. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/intel to process targets synchronously.
//   - GET /v1/intel and /v1/intel/{id} to read stored records.
package api
