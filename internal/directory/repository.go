package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/roomctl-core/internal/infrastructure/database"
)

// Repository persists discovered mappings.
type Repository interface {
	List(ctx context.Context) ([]Mapping, error)
	Upsert(ctx context.Context, m Mapping) error
	Delete(ctx context.Context, deviceID string) error
	// DeleteOlderThan removes rows last seen before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository on the address_mappings table.
// Timestamps are stored as second-precision RFC 3339 UTC so they order
// lexically.
type SQLiteRepository struct {
	db    *sql.DB
	retry database.RetryPolicy
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB, retry database.RetryPolicy) *SQLiteRepository {
	return &SQLiteRepository{db: db, retry: retry}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// List returns every stored mapping.
func (r *SQLiteRepository) List(ctx context.Context) ([]Mapping, error) {
	var out []Mapping
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT device_id, address, last_seen FROM address_mappings ORDER BY device_id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var m Mapping
			var lastSeen string
			if err := rows.Scan(&m.DeviceID, &m.Address, &lastSeen); err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, lastSeen)
			if err != nil {
				return fmt.Errorf("parsing last_seen for %s: %w", m.DeviceID, err)
			}
			m.LastSeen = t
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing address mappings: %w", err)
	}
	return out, nil
}

// Upsert inserts or refreshes a mapping.
func (r *SQLiteRepository) Upsert(ctx context.Context, m Mapping) error {
	query := `
		INSERT INTO address_mappings (device_id, address, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			address = excluded.address,
			last_seen = excluded.last_seen`

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query, m.DeviceID, m.Address, formatTime(m.LastSeen))
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting mapping for %s: %w", m.DeviceID, err)
	}
	return nil
}

// Delete removes the mapping for deviceID.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `DELETE FROM address_mappings WHERE device_id = ?`, deviceID)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting mapping for %s: %w", deviceID, err)
	}
	return nil
}

// DeleteOlderThan removes mappings last seen before cutoff.
func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM address_mappings WHERE last_seen < ?`, formatTime(cutoff))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pruning address mappings: %w", err)
	}
	return n, nil
}
