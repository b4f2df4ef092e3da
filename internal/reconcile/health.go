package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// HealthChecker is a dependency that can report whether it is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthRecorder receives the outcome of each dependency check.
type HealthRecorder interface {
	SetDependencyUp(dependency string, up bool)
}

// AddHealthCheck registers a dependency with the health loop. Call before Run.
func (r *Reconciler) AddHealthCheck(name string, c HealthChecker) {
	r.checks[name] = c
}

// SetHealthRecorder sets the sink for dependency health.
func (r *Reconciler) SetHealthRecorder(rec HealthRecorder) {
	r.healthRecord = rec
}

// CheckHealth runs every registered check once. A failing dependency is
// recorded as down and does not stop the remaining checks.
func (r *Reconciler) CheckHealth(ctx context.Context) error {
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		err := r.checks[name].HealthCheck(ctx)
		if r.healthRecord != nil {
			r.healthRecord.SetDependencyUp(name, err == nil)
		}
		if err != nil {
			r.logger.Warn("dependency unhealthy", "dependency", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrUnhealthy, errors.Join(errs...))
	}
	return nil
}
