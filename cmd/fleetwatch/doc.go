// Package main hosts the fleetwatch service entrypoint.
//
// Architecture overview:
//   - Store: internal/notify.Store holds the session's notifications newest-first with an O(1) unread counter,
//     bounded by store.max_entries. Every mutation emits an Event to stream subscribers and to the event hub.
//   - Generator: internal/generator seeds the startup set and, every generator.interval, adds one random canned
//     event with probability generator.probability.
//   - HTTP API: internal/api.Server exposes health, metrics, the notification REST surface, feed exports, the
//     archive, and a WebSocket stream that sends a snapshot followed by one frame per event.
//   - Event fanout: internal/events.Hub batches store events for the log, Prometheus, alert and archive sinks.
//     Alerts go to an in-memory publisher or Google Cloud Pub/Sub; the archive is a Postgres audit trail.
//   - Exports: feed snapshots are written as JSON to memory, a local directory, or a GCS bucket.
//
// Quick checklist:
//   - Configure env vars: FLEETWATCH_SERVER_PORT, FLEETWATCH_GENERATOR_INTERVAL, FLEETWATCH_AUTH_API_KEY,
//     FLEETWATCH_ALERTS_PUBLISHER, FLEETWATCH_PUBSUB_PROJECT_ID, FLEETWATCH_ARCHIVE_DSN and FLEETWATCH_EXPORT_BACKEND.
//   - Run locally: go run ./cmd/fleetwatch serve --config config.yaml (or rely solely on env overrides).
//   - Check a config file without starting anything: go run ./cmd/fleetwatch validate --config config.yaml.
//   - The process reacts to SIGINT/SIGTERM by stopping the generator, draining HTTP, closing streams and flushing
//     pending events to the sinks.
package main
