package override

import "errors"

// Domain errors for override operations.
var (
	ErrInvalidDevice = errors.New("override: device id is required")
	ErrInvalidStatus = errors.New("override: status must be on or off")
	ErrInvalidClass  = errors.New("override: unknown class")
)
