// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /api/crossword?date=YYYY-MM-DD returns an assembled puzzle; without
//     a date the latest puzzle is returned.
//   - GET /api/latest-crossword is kept for existing front ends.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
