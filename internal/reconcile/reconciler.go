package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/roomctl-core/internal/directory"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/config"
	"github.com/nerrad567/roomctl-core/internal/schedule"
)

// Directory is the address table the loops maintain.
type Directory interface {
	Discover(ctx context.Context) (directory.DiscoverResult, error)
	Validate(ctx context.Context) (int, error)
	PruneStale(ctx context.Context) (int64, error)
	DiscoveryRequests() <-chan struct{}
	Resolve(deviceID string) (directory.Address, bool)
	All() []directory.Address
}

// NodeClient pushes clock and schedule state to devices.
type NodeClient interface {
	PutTimeSync(ctx context.Context, addr string, t time.Time) error
	PutSchedule(ctx context.Context, addr string, setpoints []float64) error
}

// Schedules is the weekly schedule table.
type Schedules interface {
	Due(interval time.Duration) []schedule.Schedule
	MarkBroadcast(ctx context.Context, sent schedule.Schedule)
}

// TelemetryPruner trims the reading archive.
type TelemetryPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Recorder receives task outcomes.
type Recorder interface {
	ObserveTask(task string, err error, finished time.Time)
}

// Logger defines the logging interface used by the Reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reconciler runs the background maintenance loops. Each loop is
// independent: a failing pass is recorded, the loop backs off, and the
// other loops carry on.
type Reconciler struct {
	cfg       config.ReconcileConfig
	directory Directory
	nodes     NodeClient
	schedules Schedules
	archive   TelemetryPruner

	logger   Logger
	recorder Recorder
	now      func() time.Time

	tasks     *tracker
	clockSync chan struct{}

	checks       map[string]HealthChecker
	healthRecord HealthRecorder
}

// New creates a reconciler. archive may be nil.
func New(cfg config.ReconcileConfig, dir Directory, nodes NodeClient, schedules Schedules, archive TelemetryPruner) *Reconciler {
	return &Reconciler{
		cfg:       cfg,
		directory: dir,
		nodes:     nodes,
		schedules: schedules,
		archive:   archive,
		logger:    noopLogger{},
		now:       time.Now,
		tasks:     newTracker(TaskDiscovery, TaskValidate, TaskClockSync, TaskSchedule, TaskCleanup, TaskHealth),
		clockSync: make(chan struct{}, 1),
		checks:    make(map[string]HealthChecker),
	}
}

// SetLogger sets the logger.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRecorder sets the metrics sink.
func (r *Reconciler) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SetClock replaces the time source. Intended for tests.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// TriggerClockSync asks the clock loop for an immediate sweep. Requests
// made while one is pending are merged.
func (r *Reconciler) TriggerClockSync() {
	select {
	case r.clockSync <- struct{}{}:
	default:
	}
}

// Tasks returns the status of every loop, sorted by name.
func (r *Reconciler) Tasks() []TaskStatus {
	return r.tasks.all()
}

// Task returns one loop's status.
func (r *Reconciler) Task(name string) (TaskStatus, bool) {
	return r.tasks.get(name)
}

// Run starts every loop and blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.discoveryLoop(ctx) })
	g.Go(func() error {
		return r.periodic(ctx, TaskValidate, r.cfg.ValidateInterval, r.Validate)
	})
	g.Go(func() error { return r.clockLoop(ctx) })
	g.Go(func() error {
		return r.periodic(ctx, TaskSchedule, r.cfg.ScheduleCheckInterval, r.BroadcastSchedules)
	})
	g.Go(func() error {
		return r.periodic(ctx, TaskCleanup, r.cfg.CleanupInterval, r.Cleanup)
	})
	g.Go(func() error {
		return r.periodic(ctx, TaskHealth, r.cfg.HealthInterval, r.CheckHealth)
	})
	return g.Wait()
}

// discoveryLoop runs at startup, on every interval and whenever the
// directory fails to resolve a device. Demand-driven runs respect the
// minimum gap since the previous run.
func (r *Reconciler) discoveryLoop(ctx context.Context) error {
	var last time.Time
	run := func() {
		last = r.now()
		if err := r.runTask(ctx, TaskDiscovery, r.Discover); err != nil {
			sleep(ctx, r.cfg.FailureBackoff)
		}
	}

	run()

	ticker := time.NewTicker(r.cfg.DiscoveryInterval)
	defer ticker.Stop()
	requests := r.directory.DiscoveryRequests()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		case <-requests:
			if gap := r.now().Sub(last); gap < r.cfg.DiscoveryMinGap {
				r.logger.Debug("discovery request rate limited", "since_last", gap)
				continue
			}
			r.logger.Info("on-demand discovery for unresolved device")
			run()
		}
	}
}

// clockLoop waits the initial delay, then sweeps hourly and on trigger.
func (r *Reconciler) clockLoop(ctx context.Context) error {
	run := func() {
		if err := r.runTask(ctx, TaskClockSync, r.SyncClocks); err != nil {
			sleep(ctx, r.cfg.FailureBackoff)
		}
	}

	initial := time.NewTimer(r.cfg.ClockSyncInitialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-initial.C:
	case <-r.clockSync:
	}
	run()

	ticker := time.NewTicker(r.cfg.ClockSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		case <-r.clockSync:
			run()
		}
	}
}

func (r *Reconciler) periodic(ctx context.Context, name string, every time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.runTask(ctx, name, fn); err != nil {
				sleep(ctx, r.cfg.FailureBackoff)
			}
		}
	}
}

// runTask executes fn with state tracking. Panics are converted to
// failures so one bad pass cannot take the process down.
func (r *Reconciler) runTask(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	r.tasks.start(name, r.now())
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, p)
		}
		if ctx.Err() != nil && err != nil {
			// Shutdown, not a failure.
			err = nil
		}
		r.tasks.finish(name, err)
		if r.recorder != nil {
			r.recorder.ObserveTask(name, err, r.now())
		}
		if err != nil {
			r.logger.Warn("background task failed", "task", name, "error", err)
		}
	}()
	return fn(ctx)
}

// Discover runs one discovery pass.
func (r *Reconciler) Discover(ctx context.Context) error {
	res, err := r.directory.Discover(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("discovery complete",
		"candidates", res.Candidates, "identified", res.Identified, "failed", res.Failed)
	return nil
}

// Validate re-probes discovered mappings.
func (r *Reconciler) Validate(ctx context.Context) error {
	removed, err := r.directory.Validate(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		r.logger.Info("removed mismatched mappings", "count", removed)
	}
	return nil
}

// SyncClocks sends the current time to every device reachable over the
// request/response transport. A failing device does not stop the sweep.
func (r *Reconciler) SyncClocks(ctx context.Context) error {
	now := r.now()
	var errs []error
	synced := 0
	for _, addr := range r.directory.All() {
		if addr.Transport != directory.TransportRR {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.nodes.PutTimeSync(ctx, addr.Value, now); err != nil {
			r.logger.Warn("clock sync failed", "device_id", addr.DeviceID, "address", addr.Value, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", addr.DeviceID, err))
			continue
		}
		synced++
	}
	r.logger.Info("clock sync complete", "synced", synced, "failed", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialSweep, errors.Join(errs...))
	}
	return nil
}

// BroadcastSchedules sends every schedule that has never been sent or was
// last sent longer ago than the resend interval.
func (r *Reconciler) BroadcastSchedules(ctx context.Context) error {
	var errs []error
	for _, s := range r.schedules.Due(r.cfg.ScheduleResendInterval) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		addr, ok := r.directory.Resolve(s.DeviceID)
		if !ok {
			r.logger.Debug("schedule target not resolved", "device_id", s.DeviceID)
			continue
		}
		if addr.Transport != directory.TransportRR {
			continue
		}
		if err := r.nodes.PutSchedule(ctx, addr.Value, s.Setpoints); err != nil {
			r.logger.Warn("schedule broadcast failed", "device_id", s.DeviceID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.DeviceID, err))
			continue
		}
		r.schedules.MarkBroadcast(ctx, s)
		r.logger.Info("schedule broadcast", "device_id", s.DeviceID)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialSweep, errors.Join(errs...))
	}
	return nil
}

// Cleanup drops stale discovered mappings and expired archived readings.
func (r *Reconciler) Cleanup(ctx context.Context) error {
	var errs []error

	removed, err := r.directory.PruneStale(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if removed > 0 {
		r.logger.Info("pruned stale mappings", "count", removed)
	}

	if r.archive != nil && r.cfg.TelemetryRetention > 0 {
		cutoff := r.now().Add(-r.cfg.TelemetryRetention)
		n, err := r.archive.Prune(ctx, cutoff)
		if err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			r.logger.Info("pruned archived telemetry", "count", n)
		}
	}

	return errors.Join(errs...)
}
