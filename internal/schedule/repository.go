package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/roomctl-core/internal/infrastructure/database"
)

// Repository persists schedules.
type Repository interface {
	List(ctx context.Context) ([]Schedule, error)
	// Upsert stores s including its broadcast time.
	Upsert(ctx context.Context, s Schedule) error
	MarkBroadcast(ctx context.Context, deviceID string, at time.Time) error
}

// SQLiteRepository implements Repository on the device_schedules table.
type SQLiteRepository struct {
	db    *sql.DB
	retry database.RetryPolicy
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB, retry database.RetryPolicy) *SQLiteRepository {
	return &SQLiteRepository{db: db, retry: retry}
}

// List returns every stored schedule.
func (r *SQLiteRepository) List(ctx context.Context) ([]Schedule, error) {
	query := `
		SELECT device_id, setpoints, updated_at, last_broadcast
		FROM device_schedules
		ORDER BY device_id`

	var out []Schedule
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			s, err := scanSchedule(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	return out, nil
}

// Upsert inserts or replaces a schedule.
func (r *SQLiteRepository) Upsert(ctx context.Context, s Schedule) error {
	query := `
		INSERT INTO device_schedules (device_id, setpoints, updated_at, last_broadcast)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			setpoints = excluded.setpoints,
			updated_at = excluded.updated_at,
			last_broadcast = excluded.last_broadcast`

	setpoints, err := json.Marshal(s.Setpoints)
	if err != nil {
		return fmt.Errorf("encoding setpoints: %w", err)
	}
	var last *string
	if s.LastBroadcast != nil {
		v := s.LastBroadcast.UTC().Format(time.RFC3339)
		last = &v
	}

	err = r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			s.DeviceID, string(setpoints), s.UpdatedAt.UTC().Format(time.RFC3339), last)
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting schedule for %s: %w", s.DeviceID, err)
	}
	return nil
}

// MarkBroadcast records a confirmed broadcast.
func (r *SQLiteRepository) MarkBroadcast(ctx context.Context, deviceID string, at time.Time) error {
	var affected int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx,
			`UPDATE device_schedules SET last_broadcast = ? WHERE device_id = ?`,
			at.UTC().Format(time.RFC3339), deviceID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("marking broadcast for %s: %w", deviceID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (Schedule, error) {
	var (
		s         Schedule
		setpoints string
		updatedAt string
		last      sql.NullString
	)
	if err := row.Scan(&s.DeviceID, &setpoints, &updatedAt, &last); err != nil {
		return Schedule{}, err
	}
	if err := json.Unmarshal([]byte(setpoints), &s.Setpoints); err != nil {
		return Schedule{}, fmt.Errorf("decoding setpoints for %s: %w", s.DeviceID, err)
	}

	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing updated_at for %s: %w", s.DeviceID, err)
	}
	s.UpdatedAt = t

	if last.Valid {
		t, err := time.Parse(time.RFC3339, last.String)
		if err != nil {
			return Schedule{}, fmt.Errorf("parsing last_broadcast for %s: %w", s.DeviceID, err)
		}
		s.LastBroadcast = &t
	}
	return s, nil
}
