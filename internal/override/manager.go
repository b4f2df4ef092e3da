package override

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Manager.
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

// Notifier is told about override changes so devices transition
// immediately instead of on their next telemetry tick.
type Notifier interface {
	OverrideSet(ctx context.Context, o Override)
	OverrideCleared(ctx context.Context, deviceID string, reason string)
}

// Recorder receives override metrics.
type Recorder interface {
	ObserveOverrideEvent(event string)
	SetActiveOverrides(n int)
}

// Reasons passed to Notifier.OverrideCleared and Recorder.
const (
	EventSet     = "set"
	EventCleared = "cleared"
	EventExpired = "expired"
)

// Manager owns the authoritative table of active overrides. Expiry is
// checked lazily whenever an entry is read.
//
// The table lock is never held across store I/O or notifications. Store
// writes are serialised separately and always write the entry's current
// in-memory state, so the store converges on the table.
//
// All public methods are thread-safe.
type Manager struct {
	repo Repository

	mu        sync.Mutex
	overrides map[string]Override

	writeMu sync.Mutex

	now      func() time.Time
	logger   Logger
	notifier Notifier
	recorder Recorder
}

// NewManager creates a manager persisting to repo.
func NewManager(repo Repository) *Manager {
	return &Manager{
		repo:      repo,
		overrides: make(map[string]Override),
		now:       time.Now,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetNotifier sets the receiver of override changes.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetRecorder sets the metrics recorder.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Load replaces the table with the unexpired rows from the store and
// deletes expired rows. On store failure the table is left empty and the
// error returned; the manager keeps working in memory.
func (m *Manager) Load(ctx context.Context) error {
	stored, err := m.repo.List(ctx)
	if err != nil {
		m.mu.Lock()
		m.overrides = make(map[string]Override)
		m.mu.Unlock()
		m.updateGauge()
		return fmt.Errorf("loading overrides: %w", err)
	}

	now := m.now()
	active := make(map[string]Override, len(stored))
	var expired []string
	for _, o := range stored {
		if o.Expired(now) {
			expired = append(expired, o.DeviceID)
			continue
		}
		active[o.DeviceID] = o
	}

	m.mu.Lock()
	m.overrides = active
	m.mu.Unlock()

	for _, id := range expired {
		m.persist(ctx, id)
	}

	m.updateGauge()
	m.logger.Info("overrides loaded", "active", len(active), "expired", len(expired))
	return nil
}

// Set installs an override, replacing any previous one for the device.
// ClassDisabled clears instead and returns a zero Override.
//
// Persistence is best-effort: a store failure is logged and the override
// still takes effect.
//
// Returns:
//   - Override: The installed override
//   - error: ErrInvalidDevice, ErrInvalidStatus or ErrInvalidClass
func (m *Manager) Set(ctx context.Context, deviceID, status string, class Class) (Override, error) {
	if deviceID == "" {
		return Override{}, ErrInvalidDevice
	}
	if _, err := ParseClass(string(class)); err != nil {
		return Override{}, err
	}
	if class == ClassDisabled {
		m.Clear(ctx, deviceID)
		return Override{}, nil
	}
	if !validStatus(status) {
		return Override{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := m.now()
	o := Override{
		DeviceID:  deviceID,
		Status:    status,
		Class:     class,
		ExpiresAt: class.expiry(now),
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.overrides[deviceID] = o
	m.mu.Unlock()

	m.persist(ctx, deviceID)
	m.record(EventSet)
	m.logger.Info("override set", "device_id", deviceID, "status", status, "class", string(class))

	if m.notifier != nil {
		m.notifier.OverrideSet(ctx, o)
	}
	return o, nil
}

// Clear removes any override for deviceID and resumes automatic control.
// Clearing a device without an override is not an error. It reports
// whether an override was removed.
func (m *Manager) Clear(ctx context.Context, deviceID string) bool {
	m.mu.Lock()
	_, existed := m.overrides[deviceID]
	delete(m.overrides, deviceID)
	m.mu.Unlock()

	m.persist(ctx, deviceID)
	if existed {
		m.record(EventCleared)
		m.logger.Info("override cleared", "device_id", deviceID)
	}

	if m.notifier != nil {
		m.notifier.OverrideCleared(ctx, deviceID, EventCleared)
	}
	return existed
}

// ActiveStatus returns the forced status for deviceID. An expired entry is
// purged from memory and store, and ok is false.
func (m *Manager) ActiveStatus(ctx context.Context, deviceID string) (status string, ok bool) {
	o, ok := m.Get(ctx, deviceID)
	if !ok {
		return "", false
	}
	return o.Status, true
}

// Get returns the active override for deviceID, purging it if expired.
func (m *Manager) Get(ctx context.Context, deviceID string) (Override, bool) {
	now := m.now()

	m.mu.Lock()
	o, ok := m.overrides[deviceID]
	expired := ok && o.Expired(now)
	if expired {
		delete(m.overrides, deviceID)
	}
	m.mu.Unlock()

	if expired {
		m.expire(ctx, deviceID)
		return Override{}, false
	}
	return o, ok
}

// List returns the active overrides sorted by device id, purging any that
// have expired.
func (m *Manager) List(ctx context.Context) []Override {
	now := m.now()

	m.mu.Lock()
	active := make([]Override, 0, len(m.overrides))
	var expired []string
	for id, o := range m.overrides {
		if o.Expired(now) {
			delete(m.overrides, id)
			expired = append(expired, id)
			continue
		}
		active = append(active, o)
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.expire(ctx, id)
	}

	sort.Slice(active, func(i, j int) bool { return active[i].DeviceID < active[j].DeviceID })
	return active
}

// Count returns the number of entries held, including any not yet purged.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.overrides)
}

func (m *Manager) expire(ctx context.Context, deviceID string) {
	m.persist(ctx, deviceID)
	m.record(EventExpired)
	m.logger.Info("override expired", "device_id", deviceID)

	if m.notifier != nil {
		m.notifier.OverrideCleared(ctx, deviceID, EventExpired)
	}
}

// persist writes the current in-memory state of deviceID to the store.
func (m *Manager) persist(ctx context.Context, deviceID string) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	o, ok := m.overrides[deviceID]
	m.mu.Unlock()

	var err error
	if ok {
		err = m.repo.Upsert(ctx, o)
	} else {
		err = m.repo.Delete(ctx, deviceID)
	}
	if err != nil {
		m.logger.Error("override persistence failed", "device_id", deviceID, "error", err)
	}
}

func (m *Manager) record(event string) {
	if m.recorder == nil {
		return
	}
	m.recorder.ObserveOverrideEvent(event)
	m.updateGauge()
}

func (m *Manager) updateGauge() {
	if m.recorder != nil {
		m.recorder.SetActiveOverrides(m.Count())
	}
}
