// Package eventlog journals automatic decisions, override changes and
// manual commands to a Kafka topic, keyed by device id so that one
// device's history stays ordered within a partition.
//
// The journal is optional. Delivery is best effort: the hot path only
// enqueues, and a full buffer drops events rather than slowing ingestion.
//
//	j := eventlog.New(cfg.Kafka, logger)
//	go j.Run(ctx)
//	j.Record(eventlog.Event{Type: eventlog.TypeOverride, DeviceID: "node1", Status: "off", Class: "24h"})
package eventlog
