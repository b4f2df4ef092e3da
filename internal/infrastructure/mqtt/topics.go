package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots used by room-control nodes and the coordinator.
const (
	// TopicPrefixSensors carries telemetry and button presses from nodes.
	TopicPrefixSensors = "sensors"

	// TopicPrefixActuators carries plain "on"/"off" commands to nodes.
	TopicPrefixActuators = "actuators"

	// TopicPrefixDevices carries per-device coordinator state such as overrides.
	TopicPrefixDevices = "devices"

	// TopicPrefixSystem is the base for coordinator system topics.
	TopicPrefixSystem = "roomctl/system"
)

// Actuator names addressed under actuators/{id}/.
const (
	ActuatorLED     = "led"
	ActuatorHeating = "heating"
)

// Sensor message kinds published under sensors/{id}/.
const (
	SensorKindData   = "data"
	SensorKindButton = "button"
)

// Topics provides builders for the coordinator's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ActuatorCommand("node1", mqtt.ActuatorLED)
//	// Returns: "actuators/node1/led"
type Topics struct{}

// SensorData returns the telemetry topic for a device.
//
// Example: sensors/node1/data
func (Topics) SensorData(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixSensors, deviceID, SensorKindData)
}

// SensorButton returns the button press topic for a device.
//
// Example: sensors/node1/button
func (Topics) SensorButton(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixSensors, deviceID, SensorKindButton)
}

// ActuatorCommand returns the command topic for one actuator of a device.
//
// Example: actuators/node1/led
func (Topics) ActuatorCommand(deviceID, actuator string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixActuators, deviceID, actuator)
}

// DeviceOverride returns the topic announcing a device's override state.
//
// Example: devices/node1/override
func (Topics) DeviceOverride(deviceID string) string {
	return fmt.Sprintf("%s/%s/override", TopicPrefixDevices, deviceID)
}

// SystemStatus returns the coordinator status topic used for LWT.
//
// Example: roomctl/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllSensorData returns a pattern matching telemetry from every device.
//
// Pattern: sensors/+/data
func (Topics) AllSensorData() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixSensors, SensorKindData)
}

// AllSensorButtons returns a pattern matching button presses from every device.
//
// Pattern: sensors/+/button
func (Topics) AllSensorButtons() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixSensors, SensorKindButton)
}

// ParseSensorTopic splits sensors/{id}/{kind} into its parts.
// ok is false for any topic outside that shape.
func ParseSensorTopic(topic string) (deviceID, kind string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixSensors || parts[1] == "" {
		return "", "", false
	}
	switch parts[2] {
	case SensorKindData, SensorKindButton:
		return parts[1], parts[2], true
	default:
		return "", "", false
	}
}
