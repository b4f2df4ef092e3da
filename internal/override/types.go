package override

import (
	"fmt"
	"time"
)

// Statuses an override can force.
const (
	StatusOn  = "on"
	StatusOff = "off"
)

// Class is the lifetime policy of an override.
type Class string

// Override classes. ClassDisabled removes any override instead of creating one.
const (
	Class1h        Class = "1h"
	Class4h        Class = "4h"
	Class12h       Class = "12h"
	Class24h       Class = "24h"
	ClassPermanent Class = "permanent"
	ClassDisabled  Class = "disabled"
)

var classDurations = map[Class]time.Duration{
	Class1h:  time.Hour,
	Class4h:  4 * time.Hour,
	Class12h: 12 * time.Hour,
	Class24h: 24 * time.Hour,
}

// ParseClass validates a class name.
func ParseClass(s string) (Class, error) {
	c := Class(s)
	switch c {
	case ClassPermanent, ClassDisabled:
		return c, nil
	}
	if _, ok := classDurations[c]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidClass, s)
}

// expiry returns the expiry for an override of class c set at now, or nil
// for a permanent override.
func (c Class) expiry(now time.Time) *time.Time {
	d, ok := classDurations[c]
	if !ok {
		return nil
	}
	t := now.Add(d)
	return &t
}

// Override is a manual instruction that suppresses automatic control of
// one device until it expires or is cleared.
type Override struct {
	DeviceID string
	Status   string
	Class    Class
	// ExpiresAt is nil for permanent overrides.
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

// Expired reports whether the override has lapsed at now.
func (o Override) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

func validStatus(s string) bool {
	return s == StatusOn || s == StatusOff
}
