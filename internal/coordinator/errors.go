package coordinator

import "errors"

// ErrNoReconciler is returned when background tasks are not running.
var ErrNoReconciler = errors.New("coordinator: background tasks not configured")
