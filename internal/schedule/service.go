package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service holds every device's schedule in memory and writes through to
// the store. Store failures are logged; the in-memory table stays
// authoritative for the running process.
//
// All public methods are thread-safe.
type Service struct {
	repo Repository

	mu        sync.RWMutex
	schedules map[string]Schedule
	version   uint64

	now    func() time.Time
	logger Logger
}

// NewService creates a service persisting to repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:      repo,
		schedules: make(map[string]Schedule),
		now:       time.Now,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Load replaces the table with the stored schedules.
func (s *Service) Load(ctx context.Context) error {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	table := make(map[string]Schedule, len(stored))
	for _, sch := range stored {
		if err := Validate(sch.Setpoints); err != nil {
			s.logger.Error("skipping invalid stored schedule", "device_id", sch.DeviceID, "error", err)
			continue
		}
		table[sch.DeviceID] = sch
	}

	s.mu.Lock()
	s.schedules = table
	s.mu.Unlock()

	s.logger.Info("schedules loaded", "count", len(table))
	return nil
}

// Set validates and stores a schedule. The new schedule has never been
// broadcast, so the next check sends it.
func (s *Service) Set(ctx context.Context, deviceID string, setpoints []float64) (Schedule, error) {
	if deviceID == "" {
		return Schedule{}, ErrInvalidDevice
	}
	if err := Validate(setpoints); err != nil {
		return Schedule{}, err
	}

	sch := Schedule{
		DeviceID:  deviceID,
		Setpoints: append([]float64(nil), setpoints...),
		UpdatedAt: s.now(),
	}

	s.mu.Lock()
	s.version++
	sch.version = s.version
	s.schedules[deviceID] = sch
	s.mu.Unlock()

	if err := s.repo.Upsert(ctx, sch); err != nil {
		s.logger.Error("schedule persistence failed", "device_id", deviceID, "error", err)
	}
	s.logger.Info("schedule set", "device_id", deviceID)
	return sch.clone(), nil
}

// Get returns the schedule for deviceID.
func (s *Service) Get(deviceID string) (Schedule, error) {
	s.mu.RLock()
	sch, ok := s.schedules[deviceID]
	s.mu.RUnlock()
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return sch.clone(), nil
}

// Due returns the schedules whose last broadcast is missing or older than
// interval, sorted by device id.
func (s *Service) Due(interval time.Duration) []Schedule {
	now := s.now()

	s.mu.RLock()
	var due []Schedule
	for _, sch := range s.schedules {
		if sch.Due(now, interval) {
			due = append(due, sch.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool { return due[i].DeviceID < due[j].DeviceID })
	return due
}

// MarkBroadcast records that the device confirmed the schedule it was
// sent. A confirmation for a schedule replaced since it was sent is
// ignored so the newer one is still delivered.
func (s *Service) MarkBroadcast(ctx context.Context, sent Schedule) {
	at := s.now()

	s.mu.Lock()
	cur, ok := s.schedules[sent.DeviceID]
	current := ok && cur.version == sent.version
	if current {
		cur.LastBroadcast = &at
		s.schedules[sent.DeviceID] = cur
	}
	s.mu.Unlock()

	if !current {
		return
	}
	if err := s.repo.MarkBroadcast(ctx, sent.DeviceID, at); err != nil {
		s.logger.Error("recording broadcast failed", "device_id", sent.DeviceID, "error", err)
	}
}

// Count returns the number of schedules held.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.schedules)
}
