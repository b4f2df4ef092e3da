// Package reconcile runs the background loops that keep the fleet in
// line with the coordinator: address discovery and validation, clock
// synchronisation, schedule redistribution and stale-data cleanup.
//
// Every loop records its state in a TaskStatus. A failed pass is logged,
// counted and followed by a back-off sleep before the loop waits for its
// next tick.
package reconcile
