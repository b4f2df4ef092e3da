// Package influxdb archives room telemetry and automatic decisions to
// InfluxDB v2 for later analysis.
//
// The archive is optional and write-only: nothing in the control path reads
// it back. Writes are non-blocking and batched; asynchronous failures are
// delivered to the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // archive off
//	}
//	client.WriteTelemetry("node1", true, 20, 21.5, 0.15, time.Now())
package influxdb
