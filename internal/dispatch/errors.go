package dispatch

import "errors"

// Dispatch errors.
var (
	ErrInvalidStatus    = errors.New("dispatch: status must be on or off")
	ErrInvalidActuator  = errors.New("dispatch: unknown actuator")
	ErrUnknownTransport = errors.New("dispatch: unknown transport")
	ErrNoTransport      = errors.New("dispatch: transport not available")
)
