package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultValidity is how long a discovered mapping stays usable.
const DefaultValidity = 24 * time.Hour

// probeConcurrency bounds parallel identity probes during discovery.
const probeConcurrency = 4

// Logger defines the logging interface used by the Directory.
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

// Prober performs the network side of discovery.
type Prober interface {
	Neighbors(ctx context.Context, pageURL string) ([]string, error)
	Identify(ctx context.Context, addr string) (string, error)
}

// Recorder receives directory size metrics.
type Recorder interface {
	SetDirectorySize(source string, n int)
}

// Config configures a Directory.
type Config struct {
	NeighborURL string
	Validity    time.Duration
	Static      map[string]StaticEntry
}

// Directory resolves device ids to addresses.
//
// Resolution order: the address embedded in the device's latest telemetry,
// then a discovered mapping younger than the validity window, then the
// static table. Resolve never performs I/O; a failed resolution signals
// DiscoveryRequests so the reconciliation loop can discover early.
//
// All public methods are thread-safe.
type Directory struct {
	repo   Repository
	prober Prober
	cfg    Config

	mu         sync.RWMutex
	embedded   map[string]Address
	discovered map[string]Mapping

	missing chan struct{}

	now      func() time.Time
	logger   Logger
	recorder Recorder
}

// New creates a directory. repo and prober may be nil when discovery and
// persistence are not needed.
func New(cfg Config, repo Repository, prober Prober) *Directory {
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	if cfg.Static == nil {
		cfg.Static = make(map[string]StaticEntry)
	}
	return &Directory{
		repo:       repo,
		prober:     prober,
		cfg:        cfg,
		embedded:   make(map[string]Address),
		discovered: make(map[string]Mapping),
		missing:    make(chan struct{}, 1),
		now:        time.Now,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder sets the metrics recorder.
func (d *Directory) SetRecorder(r Recorder) {
	d.recorder = r
	d.reportSizes()
}

// SetClock replaces the time source. Intended for tests.
func (d *Directory) SetClock(now func() time.Time) {
	d.now = now
}

// Load restores unexpired discovered mappings from the store. On failure
// the directory starts empty apart from the static table.
func (d *Directory) Load(ctx context.Context) error {
	if d.repo == nil {
		return nil
	}
	rows, err := d.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading address mappings: %w", err)
	}

	now := d.now()
	loaded := make(map[string]Mapping, len(rows))
	for _, m := range rows {
		if d.fresh(m, now) {
			loaded[m.DeviceID] = m
		}
	}

	d.mu.Lock()
	d.discovered = loaded
	d.mu.Unlock()

	d.reportSizes()
	d.logger.Info("address mappings loaded", "count", len(loaded), "stale", len(rows)-len(loaded))
	return nil
}

// Resolve returns how to reach deviceID.
func (d *Directory) Resolve(deviceID string) (Address, bool) {
	now := d.now()

	d.mu.RLock()
	addr, ok := d.resolveLocked(deviceID, now)
	d.mu.RUnlock()

	if !ok {
		d.requestDiscovery()
	}
	return addr, ok
}

func (d *Directory) resolveLocked(deviceID string, now time.Time) (Address, bool) {
	if a, ok := d.embedded[deviceID]; ok {
		return a, true
	}
	if m, ok := d.discovered[deviceID]; ok && d.fresh(m, now) {
		return Address{
			DeviceID:  deviceID,
			Value:     m.Address,
			Transport: TransportRR,
			Source:    SourceDiscovered,
			LastSeen:  m.LastSeen,
		}, true
	}
	if s, ok := d.cfg.Static[deviceID]; ok {
		return Address{
			DeviceID:  deviceID,
			Value:     s.Address,
			Transport: s.Transport,
			Source:    SourceStatic,
		}, true
	}
	return Address{}, false
}

func (d *Directory) fresh(m Mapping, now time.Time) bool {
	return now.Sub(m.LastSeen) < d.cfg.Validity
}

// DiscoveryRequests fires when a resolution failed. At most one request
// is pending at a time.
func (d *Directory) DiscoveryRequests() <-chan struct{} {
	return d.missing
}

func (d *Directory) requestDiscovery() {
	select {
	case d.missing <- struct{}{}:
	default:
	}
}

// ObserveTelemetryAddress records the address a device reported about
// itself. It outranks every other source for the life of the process.
func (d *Directory) ObserveTelemetryAddress(deviceID, addr string) {
	if deviceID == "" || addr == "" {
		return
	}

	d.mu.Lock()
	prev, had := d.embedded[deviceID]
	d.embedded[deviceID] = Address{
		DeviceID:  deviceID,
		Value:     addr,
		Transport: TransportRR,
		Source:    SourceTelemetry,
		LastSeen:  d.now(),
	}
	d.mu.Unlock()

	if !had || prev.Value != addr {
		d.logger.Info("device reported address", "device_id", deviceID, "address", addr)
		d.reportSizes()
	}
}

// All returns the resolved address of every known device, sorted by id.
func (d *Directory) All() []Address {
	now := d.now()

	d.mu.RLock()
	ids := make(map[string]struct{}, len(d.embedded)+len(d.discovered)+len(d.cfg.Static))
	for id := range d.embedded {
		ids[id] = struct{}{}
	}
	for id, m := range d.discovered {
		if d.fresh(m, now) {
			ids[id] = struct{}{}
		}
	}
	for id := range d.cfg.Static {
		ids[id] = struct{}{}
	}

	out := make([]Address, 0, len(ids))
	for id := range ids {
		if a, ok := d.resolveLocked(id, now); ok {
			out = append(out, a)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// DiscoverResult summarises one discovery pass.
type DiscoverResult struct {
	Candidates int
	Identified int
	Failed     int
}

// Discover lists neighbors, probes each for its identity and upserts the
// mappings that answered. Candidates that fail a probe keep any existing
// mapping.
//
// Returns:
//   - DiscoverResult: Counts for the pass
//   - error: If the neighbor listing could not be fetched
func (d *Directory) Discover(ctx context.Context) (DiscoverResult, error) {
	if d.prober == nil || d.cfg.NeighborURL == "" {
		return DiscoverResult{}, ErrNoNeighborURL
	}

	candidates, err := d.prober.Neighbors(ctx, d.cfg.NeighborURL)
	if err != nil {
		return DiscoverResult{}, fmt.Errorf("listing neighbors: %w", err)
	}

	var (
		mu    sync.Mutex
		found []Mapping
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, addr := range candidates {
		g.Go(func() error {
			id, err := d.prober.Identify(gctx, addr)
			if err != nil {
				d.logger.Debug("identity probe failed", "address", addr, "error", err)
				return nil
			}
			mu.Lock()
			found = append(found, Mapping{DeviceID: id, Address: addr, LastSeen: d.now()})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Probes never return errors

	d.mu.Lock()
	for _, m := range found {
		d.discovered[m.DeviceID] = m
	}
	d.mu.Unlock()

	for _, m := range found {
		d.persist(ctx, m)
	}

	d.reportSizes()
	res := DiscoverResult{
		Candidates: len(candidates),
		Identified: len(found),
		Failed:     len(candidates) - len(found),
	}
	d.logger.Info("discovery complete",
		"candidates", res.Candidates, "identified", res.Identified, "failed", res.Failed)
	return res, ctx.Err()
}

// Validate probes every discovered mapping and drops those that no longer
// answer with the expected id. It returns how many were removed.
func (d *Directory) Validate(ctx context.Context) (int, error) {
	if d.prober == nil {
		return 0, nil
	}

	d.mu.RLock()
	mappings := make([]Mapping, 0, len(d.discovered))
	for _, m := range d.discovered {
		mappings = append(mappings, m)
	}
	d.mu.RUnlock()

	removed := 0
	for _, m := range mappings {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}

		id, err := d.prober.Identify(ctx, m.Address)
		if err == nil && id != m.DeviceID {
			err = fmt.Errorf("%w: %s at %s", ErrIdentityMismatch, id, m.Address)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			return removed, err
		}

		if d.removeIfUnchanged(m) {
			removed++
			d.logger.Info("removed unreachable mapping", "device_id", m.DeviceID, "address", m.Address, "error", err)
			d.deleteStored(ctx, m.DeviceID)
		}
	}

	d.reportSizes()
	return removed, nil
}

// removeIfUnchanged drops m unless discovery refreshed it meanwhile.
func (d *Directory) removeIfUnchanged(m Mapping) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.discovered[m.DeviceID]
	if !ok || cur.Address != m.Address || !cur.LastSeen.Equal(m.LastSeen) {
		return false
	}
	delete(d.discovered, m.DeviceID)
	return true
}

// PruneStale drops discovered mappings older than the validity window from
// memory and store, returning how many rows the store removed.
func (d *Directory) PruneStale(ctx context.Context) (int64, error) {
	cutoff := d.now().Add(-d.cfg.Validity)

	d.mu.Lock()
	for id, m := range d.discovered {
		if m.LastSeen.Before(cutoff) {
			delete(d.discovered, id)
		}
	}
	d.mu.Unlock()
	d.reportSizes()

	if d.repo == nil {
		return 0, nil
	}
	n, err := d.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.logger.Info("pruned stale mappings", "count", n)
	}
	return n, nil
}

func (d *Directory) persist(ctx context.Context, m Mapping) {
	if d.repo == nil {
		return
	}
	if err := d.repo.Upsert(ctx, m); err != nil {
		d.logger.Error("mapping persistence failed", "device_id", m.DeviceID, "error", err)
	}
}

func (d *Directory) deleteStored(ctx context.Context, deviceID string) {
	if d.repo == nil {
		return
	}
	if err := d.repo.Delete(ctx, deviceID); err != nil {
		d.logger.Error("mapping delete failed", "device_id", deviceID, "error", err)
	}
}

func (d *Directory) reportSizes() {
	if d.recorder == nil {
		return
	}
	d.mu.RLock()
	embedded, discovered := len(d.embedded), len(d.discovered)
	d.mu.RUnlock()

	d.recorder.SetDirectorySize(string(SourceTelemetry), embedded)
	d.recorder.SetDirectorySize(string(SourceDiscovered), discovered)
	d.recorder.SetDirectorySize(string(SourceStatic), len(d.cfg.Static))
}
