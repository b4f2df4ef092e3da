package telemetry

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func TestParse_Variants(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		occupied bool
		lux      float64
		usage    float64
		address  string
	}{
		{
			name:     "numeric occupancy with lux",
			payload:  `{"occupancy": 1, "lux": 20, "room_usage": 0.15}`,
			occupied: true, lux: 20, usage: 0.15,
		},
		{
			name:     "boolean occupancy with illuminance",
			payload:  `{"occupancy": false, "illuminance": 80.5, "usage": 0.4}`,
			occupied: false, lux: 80.5, usage: 0.4,
		},
		{
			name:     "watt-hours converted",
			payload:  `{"occupancy": 0, "lux": 10, "room_usage_wh": 250}`,
			occupied: false, lux: 10, usage: 0.25,
		},
		{
			name:     "numeric strings",
			payload:  `{"occupancy": "1", "lux": " 42 ", "room_usage": "0.2"}`,
			occupied: true, lux: 42, usage: 0.2,
		},
		{
			name:     "ip field",
			payload:  `{"occupancy": 1, "lux": 5, "room_usage": 0, "ip": "fd00::212:4b00:1"}`,
			occupied: true, lux: 5, usage: 0, address: "fd00::212:4b00:1",
		},
		{
			name:     "address field",
			payload:  `{"occupancy": 1, "lux": 5, "room_usage": 0, "address": "coap://[fd00::2]"}`,
			occupied: true, lux: 5, usage: 0, address: "coap://[fd00::2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse("node-a", []byte(tt.payload), testNow)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if s.DeviceID != "node-a" {
				t.Errorf("DeviceID = %q, want node-a", s.DeviceID)
			}
			if s.Occupied != tt.occupied {
				t.Errorf("Occupied = %v, want %v", s.Occupied, tt.occupied)
			}
			if s.Illuminance != tt.lux {
				t.Errorf("Illuminance = %v, want %v", s.Illuminance, tt.lux)
			}
			if s.Usage != tt.usage {
				t.Errorf("Usage = %v, want %v", s.Usage, tt.usage)
			}
			if s.Address != tt.address {
				t.Errorf("Address = %q, want %q", s.Address, tt.address)
			}
			if !s.ReceivedAt.Equal(testNow) {
				t.Errorf("ReceivedAt = %v, want %v", s.ReceivedAt, testNow)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `occupancy=1`},
		{"missing occupancy", `{"lux": 20, "room_usage": 0.1}`},
		{"missing illuminance", `{"occupancy": 1, "room_usage": 0.1}`},
		{"missing usage", `{"occupancy": 1, "lux": 20}`},
		{"negative lux", `{"occupancy": 1, "lux": -1, "room_usage": 0.1}`},
		{"negative usage", `{"occupancy": 1, "lux": 1, "room_usage": -0.1}`},
		{"non-numeric string", `{"occupancy": "yes", "lux": 1, "room_usage": 0.1}`},
		{"array occupancy", `{"occupancy": [1], "lux": 1, "room_usage": 0.1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("node-a", []byte(tt.payload), testNow)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Parse() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestParse_EmptyDeviceID(t *testing.T) {
	_, err := Parse("", []byte(`{"occupancy": 1, "lux": 20, "room_usage": 0.1}`), testNow)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Parse() error = %v, want ErrMalformedPayload", err)
	}
}

func TestParse_OptionalFields(t *testing.T) {
	payload := `{"device_id": "other", "occupancy": 1, "lux": 20, "room_usage": 0.1,
		"temperature": 21.5, "solar_surplus": 0.3, "cloudCover": 0.8}`

	s, err := Parse("node-a", []byte(payload), testNow)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.DeviceID != "node-a" {
		t.Errorf("DeviceID = %q, topic id must win", s.DeviceID)
	}
	if s.ReportedID != "other" {
		t.Errorf("ReportedID = %q, want other", s.ReportedID)
	}
	if s.Temperature != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", s.Temperature)
	}
	if s.Environment.SolarSurplus == nil || *s.Environment.SolarSurplus != 0.3 {
		t.Errorf("SolarSurplus = %v, want 0.3", s.Environment.SolarSurplus)
	}
	if s.Environment.CloudCover == nil || *s.Environment.CloudCover != 0.8 {
		t.Errorf("CloudCover = %v, want 0.8", s.Environment.CloudCover)
	}
	if s.Environment.Visibility != nil {
		t.Errorf("Visibility = %v, want nil", *s.Environment.Visibility)
	}
}

func TestSnapshot_HourOfDay(t *testing.T) {
	s := Snapshot{ReceivedAt: time.Date(2026, 3, 2, 23, 5, 0, 0, time.Local)}
	if got := s.HourOfDay(); got != 23 {
		t.Errorf("HourOfDay() = %d, want 23", got)
	}
}
