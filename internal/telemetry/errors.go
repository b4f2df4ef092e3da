package telemetry

import "errors"

// ErrMalformedPayload is returned for telemetry that cannot drive a decision.
var ErrMalformedPayload = errors.New("telemetry: malformed payload")
