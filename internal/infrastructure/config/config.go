package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the room coordinator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Devices   DevicesConfig   `yaml:"devices"`
	Decision  DecisionConfig  `yaml:"decision"`
	Directory DirectoryConfig `yaml:"directory"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path         string      `yaml:"path"`
	WALMode      bool        `yaml:"wal_mode"`
	BusyTimeout  int         `yaml:"busy_timeout"`
	MaxOpenConns int         `yaml:"max_open_conns"`
	Retry        RetryConfig `yaml:"retry"`
}

// RetryConfig bounds how long store operations are retried before the
// caller falls back to degraded results.
type RetryConfig struct {
	Attempts       int           `yaml:"attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// KafkaConfig contains settings for the decision and override journal.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DevicesConfig describes how devices are reached.
type DevicesConfig struct {
	// StaticFile is an optional YAML file holding the last-resort
	// id to address table.
	StaticFile string `yaml:"static_file"`

	// RequestTimeout is the hard per-attempt limit for request/response calls.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DecisionConfig holds the tunable thresholds of the decision engine.
type DecisionConfig struct {
	// ModelPath points at a JSON logistic-regression model. Empty disables
	// the model-based strategy.
	ModelPath string `yaml:"model_path"`

	LightsOnThreshold  float64 `yaml:"lights_on_threshold"`
	BaselineLoad       float64 `yaml:"baseline_load"`
	ReducedLoad        float64 `yaml:"reduced_load"`
	PeakUsageThreshold float64 `yaml:"peak_usage_threshold"`
	PeakWasteHours     []int   `yaml:"peak_waste_hours"`
	NightStartHour     int     `yaml:"night_start_hour"`
	NightEndHour       int     `yaml:"night_end_hour"`
	AmbientThreshold   float64 `yaml:"ambient_threshold"`
	AmbientCredit      float64 `yaml:"ambient_credit"`
}

// DirectoryConfig contains device address discovery settings.
type DirectoryConfig struct {
	// NeighborURL is the border router page listing reachable nodes.
	NeighborURL string        `yaml:"neighbor_url"`
	Validity    time.Duration `yaml:"validity"`
}

// ReconcileConfig contains the background task intervals.
type ReconcileConfig struct {
	DiscoveryInterval      time.Duration `yaml:"discovery_interval"`
	DiscoveryMinGap        time.Duration `yaml:"discovery_min_gap"`
	ValidateInterval       time.Duration `yaml:"validate_interval"`
	ClockSyncInterval      time.Duration `yaml:"clock_sync_interval"`
	ClockSyncInitialDelay  time.Duration `yaml:"clock_sync_initial_delay"`
	ScheduleCheckInterval  time.Duration `yaml:"schedule_check_interval"`
	ScheduleResendInterval time.Duration `yaml:"schedule_resend_interval"`
	CleanupInterval        time.Duration `yaml:"cleanup_interval"`
	HealthInterval         time.Duration `yaml:"health_interval"`
	FailureBackoff         time.Duration `yaml:"failure_backoff"`

	// TelemetryRetention is how long archived readings are kept. Zero
	// keeps them forever.
	TelemetryRetention time.Duration `yaml:"telemetry_retention"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ROOMCTL_SECTION_KEY
// For example: ROOMCTL_DATABASE_PATH, ROOMCTL_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "RoomCtl",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:         "./data/roomctl.db",
			WALMode:      true,
			BusyTimeout:  5,
			MaxOpenConns: 1,
			Retry: RetryConfig{
				Attempts:       3,
				InitialBackoff: 200 * time.Millisecond,
				MaxBackoff:     2 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "roomctl-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "roomctl",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Kafka: KafkaConfig{
			Topic:        "roomctl.events",
			WriteTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Listen: ":9102",
			Path:   "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Devices: DevicesConfig{
			RequestTimeout: 10 * time.Second,
		},
		Decision: DecisionConfig{
			LightsOnThreshold:  0.15,
			BaselineLoad:       0.15,
			ReducedLoad:        0.15,
			PeakUsageThreshold: 0.3,
			PeakWasteHours:     []int{6, 7, 8, 9, 11},
			NightStartHour:     23,
			NightEndHour:       5,
			AmbientThreshold:   65,
			AmbientCredit:      0.1,
		},
		Directory: DirectoryConfig{
			Validity: 24 * time.Hour,
		},
		Reconcile: ReconcileConfig{
			DiscoveryInterval:      5 * time.Minute,
			DiscoveryMinGap:        30 * time.Second,
			ValidateInterval:       time.Hour,
			ClockSyncInterval:      time.Hour,
			ClockSyncInitialDelay:  30 * time.Second,
			ScheduleCheckInterval:  time.Minute,
			ScheduleResendInterval: 5 * time.Minute,
			CleanupInterval:        time.Hour,
			HealthInterval:         30 * time.Second,
			FailureBackoff:         10 * time.Second,
			TelemetryRetention:     30 * 24 * time.Hour,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ROOMCTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOMCTL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("ROOMCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ROOMCTL_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("ROOMCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ROOMCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("ROOMCTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("ROOMCTL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	if v := os.Getenv("ROOMCTL_DECISION_MODEL_PATH"); v != "" {
		cfg.Decision.ModelPath = v
	}

	if v := os.Getenv("ROOMCTL_DIRECTORY_NEIGHBOR_URL"); v != "" {
		cfg.Directory.NeighborURL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.Retry.Attempts < 1 {
		errs = append(errs, "database.retry.attempts must be at least 1")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers is required when kafka is enabled")
	}

	if c.Devices.RequestTimeout <= 0 {
		errs = append(errs, "devices.request_timeout must be positive")
	}

	for _, h := range c.Decision.PeakWasteHours {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Sprintf("decision.peak_waste_hours contains invalid hour %d", h))
		}
	}
	if c.Decision.NightStartHour < 0 || c.Decision.NightStartHour > 23 ||
		c.Decision.NightEndHour < 0 || c.Decision.NightEndHour > 23 {
		errs = append(errs, "decision night hours must be between 0 and 23")
	}
	if c.Decision.AmbientCredit < 0 {
		errs = append(errs, "decision.ambient_credit must not be negative")
	}

	if c.Directory.Validity <= 0 {
		errs = append(errs, "directory.validity must be positive")
	}

	r := c.Reconcile
	for name, d := range map[string]time.Duration{
		"discovery_interval":       r.DiscoveryInterval,
		"validate_interval":        r.ValidateInterval,
		"clock_sync_interval":      r.ClockSyncInterval,
		"schedule_check_interval":  r.ScheduleCheckInterval,
		"schedule_resend_interval": r.ScheduleResendInterval,
		"cleanup_interval":         r.CleanupInterval,
		"health_interval":          r.HealthInterval,
	} {
		if d <= 0 {
			errs = append(errs, "reconcile."+name+" must be positive")
		}
	}

	if r.TelemetryRetention < 0 {
		errs = append(errs, "reconcile.telemetry_retention must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
