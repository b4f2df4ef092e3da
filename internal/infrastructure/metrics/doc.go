// Package metrics exports coordinator counters and gauges to Prometheus.
//
// Domain packages never import this package. Each declares the narrow
// recorder interface it needs (dispatch outcomes, task runs, ...) and
// *Metrics satisfies all of them.
package metrics
