package telemetry

import "time"

// Snapshot is one immutable telemetry reading from a device.
type Snapshot struct {
	DeviceID string

	// ReportedID is the device_id carried in the payload, if any. The topic
	// is authoritative; a mismatch is only logged.
	ReportedID string

	Occupied    bool
	Illuminance float64 // lux
	Temperature float64 // °C, zero when not reported
	Usage       float64 // kWh over the reporting interval

	// Address is the reachable address the device reported for itself.
	Address string

	Environment Environment
	ReceivedAt  time.Time
}

// Environment holds the optional outdoor features some nodes forward.
// Nil means the node did not report the value.
type Environment struct {
	SolarSurplus *float64
	CloudCover   *float64
	Visibility   *float64
}

// HourOfDay is the local hour the snapshot was received.
func (s Snapshot) HourOfDay() int {
	return s.ReceivedAt.Hour()
}
