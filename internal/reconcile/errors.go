package reconcile

import "errors"

var (
	// ErrPartialSweep reports that some devices in a sweep failed.
	ErrPartialSweep = errors.New("reconcile: some devices failed")

	// ErrUnhealthy reports that one or more dependencies failed a check.
	ErrUnhealthy = errors.New("reconcile: dependency unhealthy")

	// ErrTaskPanicked wraps a recovered panic.
	ErrTaskPanicked = errors.New("reconcile: task panicked")
)
