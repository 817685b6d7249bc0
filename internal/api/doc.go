// Package api hosts the HTTP server, middleware, and REST handlers for the
// notification center. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/notifications for listing, adding, reading and removing entries.
//   - GET /v1/notifications/stream for a live websocket feed.
//   - GET /v1/archive for the optional Postgres audit trail.
package api
