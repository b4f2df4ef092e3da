package override

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/roomctl-core/internal/infrastructure/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE device_overrides (
			device_id TEXT PRIMARY KEY,
			status TEXT NOT NULL CHECK (status IN ('on', 'off')),
			class TEXT NOT NULL CHECK (class IN ('1h', '4h', '12h', '24h', 'permanent')),
			expires_at TEXT,
			updated_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t), database.DefaultRetryPolicy)
	ctx := context.Background()

	expires := t0.Add(4 * time.Hour)
	timed := Override{DeviceID: "node1", Status: StatusOff, Class: Class4h, ExpiresAt: &expires, UpdatedAt: t0}
	perm := Override{DeviceID: "node2", Status: StatusOn, Class: ClassPermanent, UpdatedAt: t0}

	for _, o := range []Override{timed, perm} {
		if err := repo.Upsert(ctx, o); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d rows, want 2", len(list))
	}
	if list[0].ExpiresAt == nil || !list[0].ExpiresAt.Equal(expires) {
		t.Errorf("node1 ExpiresAt = %v, want %v", list[0].ExpiresAt, expires)
	}
	if list[1].ExpiresAt != nil || list[1].Class != ClassPermanent {
		t.Errorf("node2 = %+v, want permanent with nil expiry", list[1])
	}
}

func TestSQLiteRepository_UpsertReplaces(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t), database.DefaultRetryPolicy)
	ctx := context.Background()

	expires := t0.Add(time.Hour)
	if err := repo.Upsert(ctx, Override{DeviceID: "node1", Status: StatusOn, Class: Class1h, ExpiresAt: &expires, UpdatedAt: t0}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, Override{DeviceID: "node1", Status: StatusOff, Class: ClassPermanent, UpdatedAt: t0}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Status != StatusOff || list[0].ExpiresAt != nil {
		t.Errorf("List() = %+v, want single permanent off", list)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t), database.DefaultRetryPolicy)
	ctx := context.Background()

	if err := repo.Upsert(ctx, Override{DeviceID: "node1", Status: StatusOn, Class: ClassPermanent, UpdatedAt: t0}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := repo.Delete(ctx, "node1"); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() = %+v, want empty", list)
	}
}

func TestManager_WithSQLite(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c := &clock{now: t0}

	first := NewManager(NewSQLiteRepository(db, database.DefaultRetryPolicy))
	first.SetClock(c.Now)
	if _, err := first.Set(ctx, "node1", StatusOff, Class24h); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	c.Advance(time.Hour)
	restarted := NewManager(NewSQLiteRepository(db, database.DefaultRetryPolicy))
	restarted.SetClock(c.Now)
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if status, ok := restarted.ActiveStatus(ctx, "node1"); !ok || status != StatusOff {
		t.Errorf("ActiveStatus() after restart = %q, %v; want off, true", status, ok)
	}
}

func TestParseClass(t *testing.T) {
	for _, s := range []string{"1h", "4h", "12h", "24h", "permanent", "disabled"} {
		if _, err := ParseClass(s); err != nil {
			t.Errorf("ParseClass(%q) error = %v", s, err)
		}
	}
	if _, err := ParseClass("forever"); err == nil {
		t.Error("ParseClass(forever) error = nil")
	}
}
