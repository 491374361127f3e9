// Package api hosts the operational HTTP server that runs beside a crawl.
// Routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the progress of the crawl in this process.
package api
