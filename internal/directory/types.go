package directory

import "time"

// Transport selects how a device is commanded.
type Transport string

const (
	// TransportBus publishes plain status tokens on the message bus.
	TransportBus Transport = "bus"
	// TransportRR sends request/response calls to the device address.
	TransportRR Transport = "rr"
)

// Source records where an address came from, highest priority first.
type Source string

const (
	SourceTelemetry  Source = "telemetry"
	SourceDiscovered Source = "discovered"
	SourceStatic     Source = "static"
)

// Address is a resolved way to reach a device.
type Address struct {
	DeviceID  string
	Value     string
	Transport Transport
	Source    Source
	LastSeen  time.Time
}

// Mapping is a discovered id to address row.
type Mapping struct {
	DeviceID string
	Address  string
	LastSeen time.Time
}

// StaticEntry is one row of the fallback table.
type StaticEntry struct {
	DeviceID  string    `yaml:"id"`
	Address   string    `yaml:"address"`
	Transport Transport `yaml:"transport"`
}
