package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// whPerKWh converts room_usage_wh readings.
const whPerKWh = 1000

// payload mirrors the JSON nodes publish on sensors/{id}/data. Several
// firmware generations use different names for the same reading.
type payload struct {
	DeviceID    string   `json:"device_id"`
	Occupancy   *flexNum `json:"occupancy"`
	Lux         *flexNum `json:"lux"`
	Illuminance *flexNum `json:"illuminance"`
	RoomUsage   *flexNum `json:"room_usage"`
	Usage       *flexNum `json:"usage"`
	RoomUsageWh *flexNum `json:"room_usage_wh"`
	Temperature *flexNum `json:"temperature"`
	IP          string   `json:"ip"`
	Address     string   `json:"address"`

	SolarSurplus *flexNum `json:"solar_surplus"`
	CloudCover   *flexNum `json:"cloudCover"`
	Visibility   *flexNum `json:"visibility"`
}

// Parse decodes a telemetry payload for deviceID.
//
// Parameters:
//   - deviceID: Device id taken from the topic
//   - data: Raw JSON payload
//   - receivedAt: Wall-clock receipt time
//
// Returns:
//   - Snapshot: The decoded reading
//   - error: ErrMalformedPayload wrapping the reason when the payload is
//     not JSON or lacks occupancy, illuminance or usage
func Parse(deviceID string, data []byte, receivedAt time.Time) (Snapshot, error) {
	if deviceID == "" {
		return Snapshot{}, fmt.Errorf("%w: empty device id", ErrMalformedPayload)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if p.Occupancy == nil {
		return Snapshot{}, fmt.Errorf("%w: missing occupancy", ErrMalformedPayload)
	}

	lux := firstOf(p.Lux, p.Illuminance)
	if lux == nil {
		return Snapshot{}, fmt.Errorf("%w: missing illuminance", ErrMalformedPayload)
	}
	if *lux < 0 {
		return Snapshot{}, fmt.Errorf("%w: negative illuminance %v", ErrMalformedPayload, float64(*lux))
	}

	var usage float64
	switch {
	case p.RoomUsage != nil:
		usage = float64(*p.RoomUsage)
	case p.Usage != nil:
		usage = float64(*p.Usage)
	case p.RoomUsageWh != nil:
		usage = float64(*p.RoomUsageWh) / whPerKWh
	default:
		return Snapshot{}, fmt.Errorf("%w: missing usage", ErrMalformedPayload)
	}
	if usage < 0 {
		return Snapshot{}, fmt.Errorf("%w: negative usage %v", ErrMalformedPayload, usage)
	}

	s := Snapshot{
		DeviceID:    deviceID,
		ReportedID:  p.DeviceID,
		Occupied:    *p.Occupancy != 0,
		Illuminance: float64(*lux),
		Usage:       usage,
		Address:     strings.TrimSpace(firstString(p.IP, p.Address)),
		ReceivedAt:  receivedAt,
		Environment: Environment{
			SolarSurplus: p.SolarSurplus.float(),
			CloudCover:   p.CloudCover.float(),
			Visibility:   p.Visibility.float(),
		},
	}
	if p.Temperature != nil {
		s.Temperature = float64(*p.Temperature)
	}
	return s, nil
}

func firstOf(values ...*flexNum) *flexNum {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexNum accepts a JSON number, a numeric string or a boolean.
type flexNum float64

func (f *flexNum) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("true")):
		*f = 1
		return nil
	case bytes.Equal(b, []byte("false")):
		*f = 0
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		return f.set(v)
	default:
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		return f.set(v)
	}
}

func (f *flexNum) set(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a finite number: %v", v)
	}
	*f = flexNum(v)
	return nil
}

func (f *flexNum) float() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
