package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/roomctl-core/internal/decision"
	"github.com/nerrad567/roomctl-core/internal/dispatch"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomctl-core/internal/override"
	"github.com/nerrad567/roomctl-core/internal/telemetry"
)

// DefaultQueueSize is the per-device backlog before events are dropped.
const DefaultQueueSize = 32

// ButtonOverrideClass is the lifetime of an override set by a button press.
const ButtonOverrideClass = override.Class24h

// Overrides is the override manager surface the pipeline needs.
type Overrides interface {
	ActiveStatus(ctx context.Context, deviceID string) (string, bool)
	Set(ctx context.Context, deviceID, status string, class override.Class) (override.Override, error)
	Clear(ctx context.Context, deviceID string) bool
}

// Engine produces decisions.
type Engine interface {
	Decide(s telemetry.Snapshot) decision.Decision
	Status(d decision.Decision, s telemetry.Snapshot) string
}

// Dispatcher delivers statuses.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID, status string) (dispatch.Result, error)
	LastSent(deviceID string) (string, bool)
}

// AddressObserver records self-reported device addresses.
type AddressObserver interface {
	ObserveTelemetryAddress(deviceID, addr string)
}

// DecisionObserver is told about every automatic decision before dispatch.
type DecisionObserver interface {
	DecisionMade(s telemetry.Snapshot, d decision.Decision, status string)
}

// Recorder receives ingestion metrics.
type Recorder interface {
	ObserveTelemetry(accepted bool)
}

// Logger defines the logging interface used by the Ingestor.
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

// Deps are the collaborators of an Ingestor. Archive, Addresses, Observer
// and Recorder are optional.
type Deps struct {
	Cache      *telemetry.LatestCache
	Overrides  Overrides
	Engine     Engine
	Dispatcher Dispatcher
	Archive    telemetry.Archive
	Addresses  AddressObserver
	Observer   DecisionObserver
	Recorder   Recorder
	Logger     Logger
}

type job struct {
	kind       string
	payload    []byte
	receivedAt time.Time
}

// Ingestor runs the telemetry pipeline. Events for one device are
// processed in arrival order by that device's worker; different devices
// proceed concurrently. Message delivery never blocks on the pipeline: a
// device whose backlog is full has events dropped.
type Ingestor struct {
	deps      Deps
	queueSize int
	now       func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	queues  map[string]chan job
	running bool
	stopped bool
	wg      sync.WaitGroup
}

// New creates an ingestor.
func New(deps Deps) *Ingestor {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Cache == nil {
		deps.Cache = telemetry.NewLatestCache()
	}
	return &Ingestor{
		deps:      deps,
		queueSize: DefaultQueueSize,
		now:       time.Now,
		queues:    make(map[string]chan job),
	}
}

// SetClock replaces the receipt time source. Intended for tests.
func (i *Ingestor) SetClock(now func() time.Time) {
	i.now = now
}

// SetQueueSize sets the per-device backlog. Call before Run.
func (i *Ingestor) SetQueueSize(n int) {
	if n > 0 {
		i.queueSize = n
	}
}

// Cache returns the latest-telemetry cache.
func (i *Ingestor) Cache() *telemetry.LatestCache {
	return i.deps.Cache
}

// Start makes the ingestor accept events. Workers stop when ctx is
// cancelled or Stop is called.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running || i.stopped {
		return ErrAlreadyRunning
	}
	i.ctx = ctx
	i.running = true
	return nil
}

// Stop refuses new events and waits for the workers to finish the event
// they are processing. Queued events are discarded once ctx is done.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	i.stopped = true
	for id, q := range i.queues {
		close(q)
		delete(i.queues, id)
	}
	i.mu.Unlock()

	i.wg.Wait()
}

// Run starts the ingestor and blocks until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	if err := i.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	i.Stop()
	return nil
}

// HandleMessage accepts a raw bus message on sensors/{id}/data or
// sensors/{id}/button. It matches mqtt.MessageHandler.
func (i *Ingestor) HandleMessage(topic string, payload []byte) error {
	deviceID, kind, ok := mqtt.ParseSensorTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return i.enqueue(deviceID, job{kind: kind, payload: payload, receivedAt: i.now()})
}

func (i *Ingestor) enqueue(deviceID string, j job) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running || i.stopped {
		return ErrNotRunning
	}

	q, ok := i.queues[deviceID]
	if !ok {
		q = make(chan job, i.queueSize)
		i.queues[deviceID] = q
		i.wg.Add(1)
		go i.worker(i.ctx, deviceID, q)
	}

	select {
	case q <- j:
		return nil
	default:
		i.observeTelemetry(false)
		return fmt.Errorf("%w: %s", ErrQueueFull, deviceID)
	}
}

func (i *Ingestor) worker(ctx context.Context, deviceID string, q <-chan job) {
	defer i.wg.Done()
	for j := range q {
		if ctx.Err() != nil {
			continue
		}
		i.process(ctx, deviceID, j)
	}
}

// process handles one event. A panic is logged and the event counted as
// rejected so the device's worker keeps running.
func (i *Ingestor) process(ctx context.Context, deviceID string, j job) {
	defer func() {
		if p := recover(); p != nil {
			i.deps.Logger.Error("panic processing event",
				"device_id", deviceID, "kind", j.kind, "panic", fmt.Sprint(p))
			i.observeTelemetry(false)
		}
	}()

	switch j.kind {
	case mqtt.SensorKindData:
		i.processTelemetry(ctx, deviceID, j)
	case mqtt.SensorKindButton:
		i.processButton(ctx, deviceID)
	}
}

func (i *Ingestor) processTelemetry(ctx context.Context, deviceID string, j job) {
	log := i.deps.Logger

	s, err := telemetry.Parse(deviceID, j.payload, j.receivedAt)
	if err != nil {
		log.Warn("dropping malformed telemetry", "device_id", deviceID, "error", err)
		i.observeTelemetry(false)
		return
	}
	if s.ReportedID != "" && s.ReportedID != deviceID {
		log.Warn("payload device id differs from topic", "device_id", deviceID, "reported_id", s.ReportedID)
	}

	if !i.deps.Cache.Update(s) {
		log.Debug("ignoring out-of-order telemetry", "device_id", deviceID)
		return
	}

	if s.Address != "" && i.deps.Addresses != nil {
		i.deps.Addresses.ObserveTelemetryAddress(deviceID, s.Address)
	}
	i.observeTelemetry(true)

	if i.deps.Archive != nil {
		if err := i.deps.Archive.Store(ctx, s); err != nil {
			log.Warn("archiving telemetry failed", "device_id", deviceID, "error", err)
		}
	}

	i.Evaluate(ctx, s)
}

// Evaluate runs override check, decision and dispatch for s. It reports
// whether an automatic decision was made.
func (i *Ingestor) Evaluate(ctx context.Context, s telemetry.Snapshot) bool {
	if status, ok := i.deps.Overrides.ActiveStatus(ctx, s.DeviceID); ok {
		i.deps.Logger.Debug("override active, skipping decision", "device_id", s.DeviceID, "status", status)
		return false
	}

	d := i.deps.Engine.Decide(s)
	status := i.deps.Engine.Status(d, s)
	if i.deps.Observer != nil {
		i.deps.Observer.DecisionMade(s, d, status)
	}

	i.deps.Logger.Debug("decision",
		"device_id", s.DeviceID, "action", string(d.Action), "status", status,
		"reason", d.Reason, "energy_delta", d.EnergyDelta)

	// Delivery failures are logged and counted by the dispatcher.
	_, _ = i.deps.Dispatcher.Dispatch(ctx, s.DeviceID, status) //nolint:errcheck // Best-effort delivery
	return true
}

// processButton toggles manual control: a press clears an active override,
// otherwise it forces the opposite of what automation would do now.
func (i *Ingestor) processButton(ctx context.Context, deviceID string) {
	log := i.deps.Logger

	if _, ok := i.deps.Overrides.ActiveStatus(ctx, deviceID); ok {
		i.deps.Overrides.Clear(ctx, deviceID)
		log.Info("button press cleared override", "device_id", deviceID)
		return
	}

	target := dispatch.StatusOn
	if automatic, ok := i.automaticStatus(deviceID); ok && automatic == dispatch.StatusOn {
		target = dispatch.StatusOff
	}

	if _, err := i.deps.Overrides.Set(ctx, deviceID, target, ButtonOverrideClass); err != nil {
		log.Error("button override failed", "device_id", deviceID, "error", err)
		return
	}
	log.Info("button press set override", "device_id", deviceID, "status", target)
}

// automaticStatus is what the engine would choose for the latest snapshot,
// falling back to the last status sent.
func (i *Ingestor) automaticStatus(deviceID string) (string, bool) {
	if s, ok := i.deps.Cache.Get(deviceID); ok {
		d := i.deps.Engine.Decide(s)
		return i.deps.Engine.Status(d, s), true
	}
	return i.deps.Dispatcher.LastSent(deviceID)
}

func (i *Ingestor) observeTelemetry(accepted bool) {
	if i.deps.Recorder != nil {
		i.deps.Recorder.ObserveTelemetry(accepted)
	}
}
