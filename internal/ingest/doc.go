// Package ingest is the telemetry pipeline.
//
// For each sensors/{id}/data message it parses the payload, records a
// self-reported address, updates the latest-state cache, archives the
// reading, and then either defers to an active override or asks the
// decision engine and dispatches the result. A sensors/{id}/button message
// toggles a 24h override.
//
// Each device has its own worker so events for one device never interleave.
package ingest
