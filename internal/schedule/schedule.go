package schedule

import (
	"fmt"
	"math"
	"time"
)

// Length is the number of hourly set-points in a week, Monday 00:00 first.
const Length = 7 * 24

// Set-point bounds accepted by node firmware. Unset means no target for
// that hour.
const (
	Unset       = 0
	MinSetpoint = 10
	MaxSetpoint = 30
)

// Schedule is a device's weekly heating plan.
type Schedule struct {
	DeviceID  string
	Setpoints []float64
	UpdatedAt time.Time
	// LastBroadcast is nil until the schedule was confirmed by the device.
	LastBroadcast *time.Time

	// version distinguishes successive Sets for the same device.
	version uint64
}

// Validate checks length and set-point range.
func Validate(setpoints []float64) error {
	if len(setpoints) != Length {
		return fmt.Errorf("%w: got %d values, want %d", ErrInvalidLength, len(setpoints), Length)
	}
	for i, v := range setpoints {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at hour %d", ErrInvalidSetpoint, i)
		}
		if v == Unset {
			continue
		}
		if v < MinSetpoint || v > MaxSetpoint {
			return fmt.Errorf("%w: %v at hour %d", ErrInvalidSetpoint, v, i)
		}
	}
	return nil
}

// Due reports whether the schedule should be sent again at now.
func (s Schedule) Due(now time.Time, interval time.Duration) bool {
	return s.LastBroadcast == nil || now.Sub(*s.LastBroadcast) >= interval
}

func (s Schedule) clone() Schedule {
	c := s
	c.Setpoints = append([]float64(nil), s.Setpoints...)
	if s.LastBroadcast != nil {
		t := *s.LastBroadcast
		c.LastBroadcast = &t
	}
	return c
}
