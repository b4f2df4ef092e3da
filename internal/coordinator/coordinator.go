package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/roomctl-core/internal/decision"
	"github.com/nerrad567/roomctl-core/internal/directory"
	"github.com/nerrad567/roomctl-core/internal/dispatch"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/eventlog"
	"github.com/nerrad567/roomctl-core/internal/override"
	"github.com/nerrad567/roomctl-core/internal/reconcile"
	"github.com/nerrad567/roomctl-core/internal/schedule"
	"github.com/nerrad567/roomctl-core/internal/telemetry"
)

// Overrides is the override manager surface the control API uses.
type Overrides interface {
	Set(ctx context.Context, deviceID, status string, class override.Class) (override.Override, error)
	Clear(ctx context.Context, deviceID string) bool
	Get(ctx context.Context, deviceID string) (override.Override, bool)
	List(ctx context.Context) []override.Override
	Count() int
}

// Dispatcher delivers manual commands and override transitions.
type Dispatcher interface {
	SendCommand(ctx context.Context, deviceID, actuator, status string) (dispatch.Result, error)
	ApplyOverride(ctx context.Context, deviceID string, n dispatch.Notice) error
	ReleaseOverride(ctx context.Context, deviceID string) error
	LastSent(deviceID string) (string, bool)
}

// Directory lists resolved device addresses.
type Directory interface {
	All() []directory.Address
}

// Schedules is the weekly schedule table.
type Schedules interface {
	Set(ctx context.Context, deviceID string, setpoints []float64) (schedule.Schedule, error)
	Get(deviceID string) (schedule.Schedule, error)
}

// Tasks is the background reconciler.
type Tasks interface {
	TriggerClockSync()
	Tasks() []reconcile.TaskStatus
}

// Journal receives audit events.
type Journal interface {
	Record(e eventlog.Event)
}

// DecisionWriter archives decisions as time series.
type DecisionWriter interface {
	WriteDecision(deviceID, action, strategy string, energyDeltaKWh float64, at time.Time)
}

// Recorder receives decision metrics.
type Recorder interface {
	ObserveDecision(strategy, action string, energyDelta float64, ambientAdjusted bool)
}

// Logger defines the logging interface used by the Coordinator.
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

// Deps are the collaborators of a Coordinator. Journal, Series, Recorder,
// Tasks and Logger are optional.
type Deps struct {
	Overrides  Overrides
	Dispatcher Dispatcher
	Directory  Directory
	Schedules  Schedules
	Cache      *telemetry.LatestCache
	UsesModel  bool

	Tasks    Tasks
	Journal  Journal
	Series   DecisionWriter
	Recorder Recorder
	Logger   Logger
}

// EnergyStats accumulates decision accounting since startup.
type EnergyStats struct {
	TotalDecisions     int     `json:"total_decisions"`
	EnergySaved        float64 `json:"energy_saved"`
	AmbientAdjustments int     `json:"ambient_adjustments"`
	ModelOptimizations int     `json:"model_optimizations"`
}

// Status is the coordinator health summary.
type Status struct {
	Strategy        string                 `json:"strategy"`
	Energy          EnergyStats            `json:"energy"`
	ActiveOverrides int                    `json:"active_overrides"`
	Overrides       []override.Override    `json:"overrides"`
	Devices         int                    `json:"devices"`
	Tasks           []reconcile.TaskStatus `json:"tasks"`
}

// Device is everything the coordinator knows about one device.
type Device struct {
	DeviceID string              `json:"device_id"`
	Address  *directory.Address  `json:"address,omitempty"`
	Latest   *telemetry.Snapshot `json:"latest,omitempty"`
	Override *override.Override  `json:"override,omitempty"`
	LastSent string              `json:"last_sent,omitempty"`
	Schedule bool                `json:"has_schedule"`
}

// Coordinator is the control surface of the engine. It also observes
// decisions from the telemetry pipeline and turns override changes into
// device commands.
type Coordinator struct {
	deps   Deps
	logger Logger

	mu     sync.Mutex
	energy EnergyStats
}

// New creates a coordinator.
func New(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if deps.Cache == nil {
		deps.Cache = telemetry.NewLatestCache()
	}
	return &Coordinator{deps: deps, logger: logger}
}

// SetOverride installs a manual override. class is one of 1h, 4h, 12h,
// 24h, permanent or disabled; disabled clears any override.
func (c *Coordinator) SetOverride(ctx context.Context, deviceID, status, class string) (override.Override, error) {
	cl, err := override.ParseClass(class)
	if err != nil {
		return override.Override{}, err
	}
	return c.deps.Overrides.Set(ctx, deviceID, status, cl)
}

// ClearOverride returns deviceID to automatic control. It reports whether
// an override existed.
func (c *Coordinator) ClearOverride(ctx context.Context, deviceID string) bool {
	return c.deps.Overrides.Clear(ctx, deviceID)
}

// SendCommand sends a manual actuator command. It bypasses deduplication
// and does not create an override.
func (c *Coordinator) SendCommand(ctx context.Context, deviceID, actuator, status string) (dispatch.Result, error) {
	res, err := c.deps.Dispatcher.SendCommand(ctx, deviceID, actuator, status)
	if c.deps.Journal != nil && err == nil {
		c.deps.Journal.Record(eventlog.Event{
			Type:     eventlog.TypeCommand,
			DeviceID: deviceID,
			Action:   actuator,
			Status:   status,
		})
	}
	return res, err
}

// SetSchedule stores a 168-value weekly schedule. The background loop
// delivers it to the device.
func (c *Coordinator) SetSchedule(ctx context.Context, deviceID string, setpoints []float64) (schedule.Schedule, error) {
	return c.deps.Schedules.Set(ctx, deviceID, setpoints)
}

// GetSchedule returns the schedule stored for deviceID.
func (c *Coordinator) GetSchedule(deviceID string) (schedule.Schedule, error) {
	return c.deps.Schedules.Get(deviceID)
}

// SchedulePreset expands a named preset into a full week.
func (c *Coordinator) SchedulePreset(name string) ([]float64, error) {
	p, err := schedule.LookupPreset(name)
	if err != nil {
		return nil, err
	}
	return p.Week(), nil
}

// TriggerClockSync requests an immediate clock sweep.
func (c *Coordinator) TriggerClockSync() error {
	if c.deps.Tasks == nil {
		return ErrNoReconciler
	}
	c.deps.Tasks.TriggerClockSync()
	return nil
}

// GetDevices lists every device seen through telemetry, the directory or
// an override, sorted by id.
func (c *Coordinator) GetDevices(ctx context.Context) []Device {
	devices := make(map[string]*Device)
	entry := func(id string) *Device {
		d, ok := devices[id]
		if !ok {
			d = &Device{DeviceID: id}
			devices[id] = d
		}
		return d
	}

	for _, a := range c.deps.Directory.All() {
		entry(a.DeviceID).Address = &a
	}
	for _, id := range c.deps.Cache.DeviceIDs() {
		if s, ok := c.deps.Cache.Get(id); ok {
			entry(id).Latest = &s
		}
	}
	for _, o := range c.deps.Overrides.List(ctx) {
		entry(o.DeviceID).Override = &o
	}

	out := make([]Device, 0, len(devices))
	for id, d := range devices {
		if s, ok := c.deps.Dispatcher.LastSent(id); ok {
			d.LastSent = s
		}
		if _, err := c.deps.Schedules.Get(id); err == nil {
			d.Schedule = true
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Status summarises decisions, overrides and background tasks.
func (c *Coordinator) Status(ctx context.Context) Status {
	overrides := c.deps.Overrides.List(ctx)

	st := Status{
		Strategy:        string(decision.StrategyRules),
		Energy:          c.Energy(),
		ActiveOverrides: len(overrides),
		Overrides:       overrides,
		Devices:         c.deps.Cache.Len(),
	}
	if c.deps.UsesModel {
		st.Strategy = string(decision.StrategyModel)
	}
	if c.deps.Tasks != nil {
		st.Tasks = c.deps.Tasks.Tasks()
	}
	return st
}

// Energy returns the accumulated decision accounting.
func (c *Coordinator) Energy() EnergyStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energy
}

// DecisionMade records an automatic decision. It is called before the
// status is dispatched, so decisions that change the device state are
// the ones counted towards energy saved.
func (c *Coordinator) DecisionMade(s telemetry.Snapshot, d decision.Decision, status string) {
	prev, had := c.deps.Dispatcher.LastSent(s.DeviceID)
	changed := !had || prev != status

	c.mu.Lock()
	if d.AmbientAdjusted {
		c.energy.AmbientAdjustments++
	}
	if changed {
		c.energy.TotalDecisions++
		c.energy.EnergySaved += d.EnergyDelta
		if d.Strategy == decision.StrategyModel && d.Action != decision.ActionKeep {
			c.energy.ModelOptimizations++
		}
	}
	c.mu.Unlock()

	if c.deps.Recorder != nil {
		c.deps.Recorder.ObserveDecision(string(d.Strategy), string(d.Action), d.EnergyDelta, d.AmbientAdjusted)
	}
	if c.deps.Series != nil {
		c.deps.Series.WriteDecision(s.DeviceID, string(d.Action), string(d.Strategy), d.EnergyDelta, s.ReceivedAt)
	}
	if c.deps.Journal != nil && changed {
		c.deps.Journal.Record(eventlog.Event{
			Type:        eventlog.TypeDecision,
			DeviceID:    s.DeviceID,
			Action:      string(d.Action),
			Status:      status,
			Strategy:    string(d.Strategy),
			EnergyDelta: d.EnergyDelta,
			Reason:      d.Reason,
			At:          s.ReceivedAt.UTC(),
		})
	}
}

// OverrideSet forces the device into the override status.
func (c *Coordinator) OverrideSet(ctx context.Context, o override.Override) {
	n := dispatch.Notice{Status: o.Status, Type: string(o.Class), ExpiresAt: o.ExpiresAt}
	if err := c.deps.Dispatcher.ApplyOverride(ctx, o.DeviceID, n); err != nil {
		c.logger.Warn("override command not delivered", "device_id", o.DeviceID, "error", err)
	}
	if c.deps.Journal != nil {
		c.deps.Journal.Record(eventlog.Event{
			Type:     eventlog.TypeOverride,
			DeviceID: o.DeviceID,
			Action:   override.EventSet,
			Status:   o.Status,
			Class:    string(o.Class),
			At:       o.UpdatedAt.UTC(),
		})
	}
}

// OverrideCleared hands the device back to automation.
func (c *Coordinator) OverrideCleared(ctx context.Context, deviceID, reason string) {
	if err := c.deps.Dispatcher.ReleaseOverride(ctx, deviceID); err != nil {
		c.logger.Warn("override release not delivered", "device_id", deviceID, "error", err)
	}
	if c.deps.Journal != nil {
		c.deps.Journal.Record(eventlog.Event{
			Type:     eventlog.TypeOverride,
			DeviceID: deviceID,
			Action:   reason,
			Reason:   fmt.Sprintf("override_%s", reason),
		})
	}
}
