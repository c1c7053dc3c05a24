// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - POST /api/v1/scrape/ and /api/v1/scrape/stop to control the crawl run.
//   - GET /api/v1/scrape/progress for the run snapshot.
//   - GET and POST /api/v1/flares/ to list stored flares or ingest one row.
//   - GET /healthz, /readyz and /metrics for health checks and Prometheus.
package api
