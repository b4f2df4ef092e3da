package decision

import "errors"

// ErrInvalidModel is returned for a model file with the wrong shape.
var ErrInvalidModel = errors.New("decision: invalid model")
