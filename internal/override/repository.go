package override

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/roomctl-core/internal/infrastructure/database"
)

// Repository persists overrides.
type Repository interface {
	// List returns every stored override, expired or not.
	List(ctx context.Context) ([]Override, error)

	// Upsert inserts or replaces the override for o.DeviceID.
	Upsert(ctx context.Context, o Override) error

	// Delete removes the override for deviceID. Deleting a missing row is not an error.
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository on the device_overrides table.
type SQLiteRepository struct {
	db    *sql.DB
	retry database.RetryPolicy
}

// NewSQLiteRepository creates a repository on db. Transient failures are
// retried according to retry.
func NewSQLiteRepository(db *sql.DB, retry database.RetryPolicy) *SQLiteRepository {
	return &SQLiteRepository{db: db, retry: retry}
}

// List returns every stored override.
func (r *SQLiteRepository) List(ctx context.Context) ([]Override, error) {
	query := `
		SELECT device_id, status, class, expires_at, updated_at
		FROM device_overrides
		ORDER BY device_id`

	var overrides []Override
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		overrides = overrides[:0]
		for rows.Next() {
			o, err := scanOverride(rows)
			if err != nil {
				return err
			}
			overrides = append(overrides, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	return overrides, nil
}

// Upsert inserts or replaces an override. Last writer wins.
func (r *SQLiteRepository) Upsert(ctx context.Context, o Override) error {
	query := `
		INSERT INTO device_overrides (device_id, status, class, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			status = excluded.status,
			class = excluded.class,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`

	var expires *string
	if o.ExpiresAt != nil {
		s := o.ExpiresAt.UTC().Format(time.RFC3339)
		expires = &s
	}

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			o.DeviceID, o.Status, string(o.Class), expires,
			o.UpdatedAt.UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting override for %s: %w", o.DeviceID, err)
	}
	return nil
}

// Delete removes the override row for deviceID.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `DELETE FROM device_overrides WHERE device_id = ?`, deviceID)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting override for %s: %w", deviceID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOverride(row scanner) (Override, error) {
	var (
		o         Override
		class     string
		expiresAt sql.NullString
		updatedAt string
	)
	if err := row.Scan(&o.DeviceID, &o.Status, &class, &expiresAt, &updatedAt); err != nil {
		return Override{}, err
	}
	o.Class = Class(class)

	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err != nil {
			return Override{}, fmt.Errorf("parsing expires_at for %s: %w", o.DeviceID, err)
		}
		o.ExpiresAt = &t
	}

	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Override{}, fmt.Errorf("parsing updated_at for %s: %w", o.DeviceID, err)
	}
	o.UpdatedAt = t
	return o, nil
}
