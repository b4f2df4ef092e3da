package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/roomctl-core/internal/infrastructure/config"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/database"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/logging"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/metrics"
	"github.com/nerrad567/roomctl-core/internal/override"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidConfigValues verifies validation errors stop startup.
func TestRun_InvalidConfigValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  path: ""
reconcile:
  cleanup_interval: 0s
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, configPath); err == nil {
		t.Fatal("run() should fail with invalid configuration")
	}
}

func TestMigrationStatus(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := "database:\n  path: " + filepath.Join(dir, "roomctl.db") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	ctx := context.Background()

	var out bytes.Buffer
	if err := migrationStatus(ctx, configPath, false, &out); err != nil {
		t.Fatalf("migrationStatus() error = %v", err)
	}
	if !strings.Contains(out.String(), "pending  20260301_120000  initial_schema") {
		t.Errorf("fresh store output = %q, want initial schema pending", out.String())
	}

	db, err := database.Open(database.Config{Path: filepath.Join(dir, "roomctl.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	db.Close()

	out.Reset()
	if err := migrationStatus(ctx, configPath, true, &out); err != nil {
		t.Fatalf("migrationStatus(rollback) error = %v", err)
	}
	if strings.Contains(out.String(), "applied ") {
		t.Errorf("output after rollback = %q, want nothing applied", out.String())
	}
	if !strings.Contains(out.String(), "pending  20260301_120000") {
		t.Errorf("output after rollback = %q, want initial schema pending again", out.String())
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("ROOMCTL_CONFIG", "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("ROOMCTL_CONFIG", "/etc/roomctl/config.yaml")
	if got := getConfigPath(""); got != "/etc/roomctl/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env path", got)
	}
}

func TestGetConfigPath_FlagWins(t *testing.T) {
	t.Setenv("ROOMCTL_CONFIG", "/etc/roomctl/config.yaml")
	if got := getConfigPath("./local.yaml"); got != "./local.yaml" {
		t.Errorf("getConfigPath() = %q, want flag path", got)
	}
}

// TestBuild_RestoresPersistedState wires the services against a migrated
// store and checks that stored overrides and schedules are loaded.
func TestBuild_RestoresPersistedState(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "roomctl.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := override.NewSQLiteRepository(db.DB, database.DefaultRetryPolicy)
	if err := repo.Upsert(ctx, override.Override{
		DeviceID:  "room1",
		Status:    override.StatusOff,
		Class:     override.ClassPermanent,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	cfg := config.Default()
	log := logging.NewWithWriter(cfg.Logging, "test", os.Stderr)

	svc, err := build(ctx, cfg, db, database.DefaultRetryPolicy, nil, nil, nil, metrics.New(), log)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}

	if n := svc.overrides.Count(); n != 1 {
		t.Errorf("restored overrides = %d, want 1", n)
	}
	if status, ok := svc.overrides.ActiveStatus(ctx, "room1"); !ok || status != override.StatusOff {
		t.Errorf("ActiveStatus(room1) = %q, %v, want off", status, ok)
	}

	st := svc.coordinator.Status(ctx)
	if st.Strategy != "rule_based" {
		t.Errorf("Strategy = %q, want rule_based", st.Strategy)
	}
	if len(st.Tasks) != 6 {
		t.Errorf("Tasks = %d, want 6", len(st.Tasks))
	}
}
