package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/roomctl-core/internal/directory"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomctl-core/internal/nodeclient"
)

// Device statuses.
const (
	StatusOn  = "on"
	StatusOff = "off"
)

// Actuators a manual command can target.
const (
	ActuatorLED     = mqtt.ActuatorLED
	ActuatorHeating = mqtt.ActuatorHeating
)

// Result is the outcome of one dispatch.
type Result string

// Result values double as metric labels.
const (
	ResultSent    Result = "ok"
	ResultSkipped Result = "skipped"
	ResultDropped Result = "dropped"
	ResultFailed  Result = "failed"
)

// Resolver finds a device's address without blocking on I/O.
type Resolver interface {
	Resolve(deviceID string) (directory.Address, bool)
}

// Publisher is the message bus.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
	PublishRetained(topic string, payload []byte) error
}

// NodeClient is the request/response transport.
type NodeClient interface {
	PutSettings(ctx context.Context, addr string, s nodeclient.Settings) error
}

// Recorder receives dispatch metrics.
type Recorder interface {
	ObserveDispatch(transport, result string)
}

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher turns desired statuses into transport messages.
//
// It remembers the last lighting status sent to each device and skips
// repeats. A status is reserved under the lock before any I/O and rolled
// back if the send fails, so concurrent dispatches of the same status
// produce one transmission and a failure is retried on the next tick.
// Commands to unresolved devices are dropped, not queued.
//
// All public methods are thread-safe.
type Dispatcher struct {
	resolver Resolver
	bus      Publisher
	nodes    NodeClient
	topics   mqtt.Topics

	mu       sync.Mutex
	lastSent map[string]string

	logger   Logger
	recorder Recorder
}

// New creates a dispatcher. bus or nodes may be nil, in which case
// commands for that transport fail.
func New(resolver Resolver, bus Publisher, nodes NodeClient) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		bus:      bus,
		nodes:    nodes,
		lastSent: make(map[string]string),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder sets the metrics recorder.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// Dispatch sends a lighting status unless it repeats the last one sent.
//
// Returns:
//   - Result: What happened
//   - error: ErrInvalidStatus, or the transport error when the send failed
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID, status string) (Result, error) {
	if !validStatus(status) {
		return ResultFailed, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	addr, ok := d.resolver.Resolve(deviceID)
	if !ok {
		d.logger.Warn("dropping command for unresolved device", "device_id", deviceID, "status", status)
		d.observe("none", ResultDropped)
		return ResultDropped, nil
	}

	prev, had, reserved := d.reserve(deviceID, status)
	if !reserved {
		d.observe(string(addr.Transport), ResultSkipped)
		return ResultSkipped, nil
	}

	if err := d.sendLED(ctx, addr, status, nil); err != nil {
		d.rollback(deviceID, status, prev, had)
		d.logger.Warn("command delivery failed",
			"device_id", deviceID, "status", status,
			"transport", string(addr.Transport), "error", err)
		d.observe(string(addr.Transport), ResultFailed)
		return ResultFailed, err
	}

	d.logger.Debug("command sent", "device_id", deviceID, "status", status, "transport", string(addr.Transport))
	d.observe(string(addr.Transport), ResultSent)
	return ResultSent, nil
}

// SendCommand sends a manual command to an actuator, bypassing
// deduplication. A successful LED command updates the last sent status.
func (d *Dispatcher) SendCommand(ctx context.Context, deviceID, actuator, status string) (Result, error) {
	if !validStatus(status) {
		return ResultFailed, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if actuator != ActuatorLED && actuator != ActuatorHeating {
		return ResultFailed, fmt.Errorf("%w: %q", ErrInvalidActuator, actuator)
	}

	addr, ok := d.resolver.Resolve(deviceID)
	if !ok {
		d.observe("none", ResultDropped)
		return ResultDropped, fmt.Errorf("%w: %s", directory.ErrNotResolved, deviceID)
	}

	var err error
	if actuator == ActuatorLED {
		err = d.sendLED(ctx, addr, status, nil)
	} else {
		err = d.sendHeating(ctx, addr, status)
	}
	if err != nil {
		d.observe(string(addr.Transport), ResultFailed)
		return ResultFailed, err
	}

	if actuator == ActuatorLED {
		d.mu.Lock()
		d.lastSent[deviceID] = status
		d.mu.Unlock()
	}
	d.logger.Info("manual command sent", "device_id", deviceID, "actuator", actuator, "status", status)
	d.observe(string(addr.Transport), ResultSent)
	return ResultSent, nil
}

// Resume forgets the last status sent to deviceID so the next automatic
// decision is always transmitted.
func (d *Dispatcher) Resume(deviceID string) {
	d.mu.Lock()
	delete(d.lastSent, deviceID)
	d.mu.Unlock()
}

// LastSent returns the last lighting status sent to deviceID.
func (d *Dispatcher) LastSent(deviceID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.lastSent[deviceID]
	return s, ok
}

// Notice is the retained override announcement on devices/{id}/override.
type Notice struct {
	Status    string     `json:"status"`
	Type      string     `json:"type"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Notice status and type used when an override ends.
const (
	NoticeStatusAuto  = "auto"
	NoticeTypeDisable = "disabled"
)

// ApplyOverride announces an override and forces the device to status in
// manual mode. Delivery is best-effort.
func (d *Dispatcher) ApplyOverride(ctx context.Context, deviceID string, n Notice) error {
	if !validStatus(n.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, n.Status)
	}
	d.announce(deviceID, n)

	addr, ok := d.resolver.Resolve(deviceID)
	if !ok {
		d.logger.Warn("override not delivered, device unresolved", "device_id", deviceID)
		d.observe("none", ResultDropped)
		return nil
	}

	if err := d.sendLED(ctx, addr, n.Status, nodeclient.Flag(true)); err != nil {
		d.Resume(deviceID)
		d.logger.Warn("override delivery failed", "device_id", deviceID, "error", err)
		d.observe(string(addr.Transport), ResultFailed)
		return err
	}

	d.mu.Lock()
	d.lastSent[deviceID] = n.Status
	d.mu.Unlock()
	d.observe(string(addr.Transport), ResultSent)
	return nil
}

// ReleaseOverride announces that the device is back under automatic
// control and clears its manual mode flag.
func (d *Dispatcher) ReleaseOverride(ctx context.Context, deviceID string) error {
	d.Resume(deviceID)
	d.announce(deviceID, Notice{Status: NoticeStatusAuto, Type: NoticeTypeDisable})

	addr, ok := d.resolver.Resolve(deviceID)
	if !ok || addr.Transport != directory.TransportRR {
		return nil
	}
	if d.nodes == nil {
		return ErrNoTransport
	}
	if err := d.nodes.PutSettings(ctx, addr.Value, nodeclient.Settings{ManualOverride: nodeclient.Flag(false)}); err != nil {
		d.logger.Warn("override release delivery failed", "device_id", deviceID, "error", err)
		d.observe(string(addr.Transport), ResultFailed)
		return err
	}
	d.observe(string(addr.Transport), ResultSent)
	return nil
}

func (d *Dispatcher) announce(deviceID string, n Notice) {
	if d.bus == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		d.logger.Error("encoding override notice", "device_id", deviceID, "error", err)
		return
	}
	if err := d.bus.PublishRetained(d.topics.DeviceOverride(deviceID), payload); err != nil {
		d.logger.Warn("override notice not published", "device_id", deviceID, "error", err)
	}
}

// reserve records status as sent unless it already was.
func (d *Dispatcher) reserve(deviceID, status string) (prev string, had, reserved bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, had = d.lastSent[deviceID]
	if had && prev == status {
		return prev, had, false
	}
	d.lastSent[deviceID] = status
	return prev, had, true
}

// rollback undoes a reservation unless another send replaced it.
func (d *Dispatcher) rollback(deviceID, status, prev string, had bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastSent[deviceID] != status {
		return
	}
	if had {
		d.lastSent[deviceID] = prev
	} else {
		delete(d.lastSent, deviceID)
	}
}

func (d *Dispatcher) sendLED(ctx context.Context, addr directory.Address, status string, manual *int) error {
	switch addr.Transport {
	case directory.TransportBus:
		if d.bus == nil {
			return ErrNoTransport
		}
		return d.bus.PublishDefault(d.topics.ActuatorCommand(addr.DeviceID, ActuatorLED), []byte(status))
	case directory.TransportRR:
		if d.nodes == nil {
			return ErrNoTransport
		}
		return d.nodes.PutSettings(ctx, addr.Value, nodeclient.Settings{
			LED:            nodeclient.Flag(status == StatusOn),
			ManualOverride: manual,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, addr.Transport)
	}
}

func (d *Dispatcher) sendHeating(ctx context.Context, addr directory.Address, status string) error {
	switch addr.Transport {
	case directory.TransportBus:
		if d.bus == nil {
			return ErrNoTransport
		}
		return d.bus.PublishDefault(d.topics.ActuatorCommand(addr.DeviceID, ActuatorHeating), []byte(status))
	case directory.TransportRR:
		if d.nodes == nil {
			return ErrNoTransport
		}
		return d.nodes.PutSettings(ctx, addr.Value, nodeclient.Settings{Heating: nodeclient.Flag(status == StatusOn)})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, addr.Transport)
	}
}

func (d *Dispatcher) observe(transport string, r Result) {
	if d.recorder != nil {
		d.recorder.ObserveDispatch(transport, string(r))
	}
}

func validStatus(s string) bool {
	return s == StatusOn || s == StatusOff
}
