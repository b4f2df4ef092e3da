package schedule

import "errors"

// Domain errors for schedules.
var (
	ErrInvalidLength   = errors.New("schedule: wrong number of set-points")
	ErrInvalidSetpoint = errors.New("schedule: set-point out of range")
	ErrInvalidDevice   = errors.New("schedule: device id is required")
	ErrNotFound        = errors.New("schedule: not found")
	ErrUnknownPreset   = errors.New("schedule: unknown preset")
)
