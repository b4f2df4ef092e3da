package nodeclient

import "errors"

// Errors returned by node requests.
var (
	ErrInvalidAddress   = errors.New("nodeclient: invalid address")
	ErrRequestFailed    = errors.New("nodeclient: request failed")
	ErrUnexpectedStatus = errors.New("nodeclient: unexpected status")
	ErrNoIdentity       = errors.New("nodeclient: node did not report a device id")
)
