package directory

import "errors"

// Domain errors for the directory.
var (
	ErrNotResolved      = errors.New("directory: device address not resolved")
	ErrInvalidStatic    = errors.New("directory: invalid static table")
	ErrIdentityMismatch = errors.New("directory: node reported a different device id")
	ErrNoNeighborURL    = errors.New("directory: neighbor url not configured")
)
