package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the coordinator.
const (
	MeasurementTelemetry = "room_telemetry"
	MeasurementDecision  = "room_decision"
)

// WriteTelemetry archives one telemetry snapshot.
//
// The write is non-blocking; points are batched and sent asynchronously.
func (c *Client) WriteTelemetry(deviceID string, occupied bool, illuminance, temperature, usageKWh float64, at time.Time) {
	occupancy := 0
	if occupied {
		occupancy = 1
	}
	c.writePoint(write.NewPoint(
		MeasurementTelemetry,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"occupancy":   occupancy,
			"illuminance": illuminance,
			"temperature": temperature,
			"usage_kwh":   usageKWh,
		},
		at,
	))
}

// WriteDecision archives an automatic decision and its energy delta.
func (c *Client) WriteDecision(deviceID, action, strategy string, energyDeltaKWh float64, at time.Time) {
	c.writePoint(write.NewPoint(
		MeasurementDecision,
		map[string]string{
			"device_id": deviceID,
			"action":    action,
			"strategy":  strategy,
		},
		map[string]any{"energy_delta_kwh": energyDeltaKWh},
		at,
	))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
