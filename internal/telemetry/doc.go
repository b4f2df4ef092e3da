// Package telemetry decodes device sensor payloads into immutable snapshots,
// keeps the latest snapshot per device, and archives readings.
//
// Nodes publish JSON on sensors/{id}/data. Parse accepts the payload
// variants seen across firmware generations:
//
//	{"occupancy": 1, "lux": 20, "room_usage": 0.15}
//	{"device_id": "node-a", "occupancy": true, "illuminance": "42.5",
//	 "room_usage_wh": 150, "temperature": 21.5, "ip": "fd00::1"}
//
// Occupancy, illuminance and usage are required. Everything else is optional.
package telemetry
