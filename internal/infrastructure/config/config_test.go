package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
decision:
  ambient_threshold: 80
  peak_waste_hours: [7, 8]
reconcile:
  discovery_interval: 2m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Decision.AmbientThreshold != 80 {
		t.Errorf("Decision.AmbientThreshold = %v, want 80", cfg.Decision.AmbientThreshold)
	}
	if len(cfg.Decision.PeakWasteHours) != 2 {
		t.Errorf("Decision.PeakWasteHours = %v, want [7 8]", cfg.Decision.PeakWasteHours)
	}
	if cfg.Reconcile.DiscoveryInterval != 2*time.Minute {
		t.Errorf("Reconcile.DiscoveryInterval = %v, want 2m", cfg.Reconcile.DiscoveryInterval)
	}
	// Untouched sections keep their defaults.
	if cfg.Decision.BaselineLoad != 0.15 {
		t.Errorf("Decision.BaselineLoad = %v, want default 0.15", cfg.Decision.BaselineLoad)
	}
	if cfg.Devices.RequestTimeout != 10*time.Second {
		t.Errorf("Devices.RequestTimeout = %v, want 10s", cfg.Devices.RequestTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "site:\n  id: env-site\n")

	t.Setenv("ROOMCTL_DATABASE_PATH", "/var/lib/roomctl/env.db")
	t.Setenv("ROOMCTL_MQTT_HOST", "broker.local")
	t.Setenv("ROOMCTL_MQTT_PORT", "8883")
	t.Setenv("ROOMCTL_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/roomctl/env.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker = %+v", cfg.MQTT.Broker)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "kafka enabled without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true },
			wantErr: "kafka.brokers",
		},
		{
			name:    "peak hour out of range",
			mutate:  func(c *Config) { c.Decision.PeakWasteHours = []int{24} },
			wantErr: "peak_waste_hours",
		},
		{
			name:    "negative ambient credit",
			mutate:  func(c *Config) { c.Decision.AmbientCredit = -0.1 },
			wantErr: "ambient_credit",
		},
		{
			name:    "zero request timeout",
			mutate:  func(c *Config) { c.Devices.RequestTimeout = 0 },
			wantErr: "request_timeout",
		},
		{
			name:    "zero cleanup interval",
			mutate:  func(c *Config) { c.Reconcile.CleanupInterval = 0 },
			wantErr: "cleanup_interval",
		},
		{
			name:    "zero health interval",
			mutate:  func(c *Config) { c.Reconcile.HealthInterval = 0 },
			wantErr: "health_interval",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Database.Retry.Attempts = 0 },
			wantErr: "retry.attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
