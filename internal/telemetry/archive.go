package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/roomctl-core/internal/infrastructure/database"
)

// receivedAtLayout is fixed width so received_at compares correctly as text.
const receivedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Archive persists snapshots for later analysis. Archived readings are
// never read back into the control path.
type Archive interface {
	Store(ctx context.Context, s Snapshot) error
}

// SQLiteArchive appends snapshots to the sensor_readings table.
type SQLiteArchive struct {
	db    *sql.DB
	retry database.RetryPolicy
}

// NewSQLiteArchive creates an archive on db using the given retry policy.
func NewSQLiteArchive(db *sql.DB, retry database.RetryPolicy) *SQLiteArchive {
	return &SQLiteArchive{db: db, retry: retry}
}

// Store inserts one reading.
func (a *SQLiteArchive) Store(ctx context.Context, s Snapshot) error {
	query := `
		INSERT INTO sensor_readings (device_id, occupancy, illuminance, temperature, usage_kwh, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	occupancy := 0
	if s.Occupied {
		occupancy = 1
	}

	err := a.retry.Do(ctx, func(ctx context.Context) error {
		_, err := a.db.ExecContext(ctx, query,
			s.DeviceID, occupancy, s.Illuminance, s.Temperature, s.Usage,
			s.ReceivedAt.UTC().Format(receivedAtLayout))
		return err
	})
	if err != nil {
		return fmt.Errorf("archiving reading for %s: %w", s.DeviceID, err)
	}
	return nil
}

// Prune deletes readings received before cutoff and returns how many went.
func (a *SQLiteArchive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		res, err := a.db.ExecContext(ctx,
			`DELETE FROM sensor_readings WHERE received_at < ?`,
			cutoff.UTC().Format(receivedAtLayout))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pruning sensor readings: %w", err)
	}
	return n, nil
}

// TelemetryWriter matches the time-series client's telemetry write.
type TelemetryWriter interface {
	WriteTelemetry(deviceID string, occupied bool, illuminance, temperature, usageKWh float64, at time.Time)
}

// SeriesArchive forwards snapshots to a time-series writer.
type SeriesArchive struct {
	Writer TelemetryWriter
}

// Store writes s as a point. The writer batches asynchronously, so this
// never fails.
func (a SeriesArchive) Store(_ context.Context, s Snapshot) error {
	a.Writer.WriteTelemetry(s.DeviceID, s.Occupied, s.Illuminance, s.Temperature, s.Usage, s.ReceivedAt)
	return nil
}

// MultiArchive stores to every archive and joins their errors.
type MultiArchive []Archive

// Store writes s to each archive in order.
func (m MultiArchive) Store(ctx context.Context, s Snapshot) error {
	var errs []error
	for _, a := range m {
		if err := a.Store(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
