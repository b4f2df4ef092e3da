// RoomCtl Core - room-control device coordination engine
//
// This is the main entry point for the RoomCtl coordinator. It consumes
// sensor telemetry from the message bus, decides per-room lighting state,
// honours manual overrides and keeps the fleet's addresses, clocks and
// heating schedules reconciled in the background.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/roomctl-core/migrations"

	"github.com/nerrad567/roomctl-core/internal/coordinator"
	"github.com/nerrad567/roomctl-core/internal/decision"
	"github.com/nerrad567/roomctl-core/internal/directory"
	"github.com/nerrad567/roomctl-core/internal/dispatch"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/config"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/database"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/eventlog"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/logging"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/metrics"
	"github.com/nerrad567/roomctl-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomctl-core/internal/ingest"
	"github.com/nerrad567/roomctl-core/internal/nodeclient"
	"github.com/nerrad567/roomctl-core/internal/override"
	"github.com/nerrad567/roomctl-core/internal/reconcile"
	"github.com/nerrad567/roomctl-core/internal/schedule"
	"github.com/nerrad567/roomctl-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	flags := pflag.NewFlagSet("roomctl", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to config.yaml (default $ROOMCTL_CONFIG or "+defaultConfigPath+")")
	showVersion := flags.Bool("version", false, "print version and exit")
	showMigrations := flags.Bool("migrations", false, "print schema migration status and exit")
	migrateDown := flags.Bool("migrate-down", false, "roll back the newest schema migration and exit")
	_ = flags.Parse(os.Args[1:]) //nolint:errcheck // ExitOnError exits on failure

	if *showVersion {
		fmt.Printf("roomctl %s (%s, %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *showMigrations || *migrateDown {
		if err := migrationStatus(ctx, getConfigPath(*configPath), *migrateDown, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, getConfigPath(*configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Configuration file to load
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting RoomCtl Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := database.Open(database.Config{
		Path:         cfg.Database.Path,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	retry := database.RetryPolicy{
		Attempts:       cfg.Database.Retry.Attempts,
		InitialBackoff: cfg.Database.Retry.InitialBackoff,
		MaxBackoff:     cfg.Database.Retry.MaxBackoff,
	}

	reg := metrics.New()
	if regErr := reg.RegisterDB(db.DB, "roomctl"); regErr != nil {
		log.Warn("database pool metrics unavailable", "error", regErr)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	var journal *eventlog.Journal
	if cfg.Kafka.Enabled {
		journal = eventlog.New(cfg.Kafka, log.Component("journal"))
		log.Info("event journal enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	svc, err := build(ctx, cfg, db, retry, mqttClient, influxClient, journal, reg, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := svc.ingestor.Start(gctx); err != nil {
		return fmt.Errorf("starting ingestion: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		svc.ingestor.Stop()
		return nil
	})

	topics := mqtt.Topics{}
	for _, topic := range []string{topics.AllSensorData(), topics.AllSensorButtons()} {
		if subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), svc.ingestor.HandleMessage); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, subErr)
		}
	}
	log.Info("telemetry subscriptions active", "count", mqttClient.SubscriptionCount())

	g.Go(func() error { return svc.reconciler.Run(gctx) })

	if journal != nil {
		g.Go(func() error {
			if runErr := journal.Run(gctx); runErr != nil && !errors.Is(runErr, eventlog.ErrClosed) {
				return fmt.Errorf("event journal: %w", runErr)
			}
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			log.Info("metrics listening", "addr", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
			if serveErr := reg.Serve(gctx, cfg.Metrics.Listen, cfg.Metrics.Path); serveErr != nil {
				return fmt.Errorf("metrics server: %w", serveErr)
			}
			return nil
		})
	}

	log.Info("RoomCtl Core started",
		"strategy", svc.coordinator.Status(gctx).Strategy,
		"overrides", svc.overrides.Count(),
		"schedules", svc.schedules.Count(),
	)

	<-gctx.Done()
	log.Info("shutdown signal received, stopping...")

	for _, topic := range []string{topics.AllSensorData(), topics.AllSensorButtons()} {
		if unsubErr := mqttClient.Unsubscribe(topic); unsubErr != nil {
			log.Warn("unsubscribe failed", "topic", topic, "error", unsubErr)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("RoomCtl Core stopped")
	return nil
}

// services holds the wired domain components.
type services struct {
	overrides   *override.Manager
	schedules   *schedule.Service
	ingestor    *ingest.Ingestor
	reconciler  *reconcile.Reconciler
	coordinator *coordinator.Coordinator
}

// build wires the domain components and restores their persisted state.
// influxClient and journal may be nil.
func build(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	retry database.RetryPolicy,
	bus *mqtt.Client,
	influxClient *influxdb.Client,
	journal *eventlog.Journal,
	reg *metrics.Metrics,
	log *logging.Logger,
) (*services, error) {
	nodes := nodeclient.New(cfg.Devices.RequestTimeout)

	static, err := directory.LoadStatic(cfg.Devices.StaticFile)
	if err != nil {
		return nil, fmt.Errorf("loading static device table: %w", err)
	}
	dir := directory.New(directory.Config{
		NeighborURL: cfg.Directory.NeighborURL,
		Validity:    cfg.Directory.Validity,
		Static:      static,
	}, directory.NewSQLiteRepository(db.DB, retry), nodes)
	dir.SetLogger(log.Component("directory"))
	dir.SetRecorder(reg)
	if loadErr := dir.Load(ctx); loadErr != nil {
		log.Warn("directory store unavailable, starting empty", "error", loadErr)
	}

	overrides := override.NewManager(override.NewSQLiteRepository(db.DB, retry))
	overrides.SetLogger(log.Component("override"))
	overrides.SetRecorder(reg)
	if loadErr := overrides.Load(ctx); loadErr != nil {
		log.Warn("override store unavailable, starting empty", "error", loadErr)
	}

	schedules := schedule.NewService(schedule.NewSQLiteRepository(db.DB, retry))
	schedules.SetLogger(log.Component("schedule"))
	if loadErr := schedules.Load(ctx); loadErr != nil {
		log.Warn("schedule store unavailable, starting empty", "error", loadErr)
	}

	engine := decision.Select(cfg.Decision, log.Component("decision"))

	dispatcher := dispatch.New(dir, bus, nodes)
	dispatcher.SetLogger(log.Component("dispatch"))
	dispatcher.SetRecorder(reg)

	archive := telemetry.NewSQLiteArchive(db.DB, retry)
	archives := telemetry.MultiArchive{archive}
	if influxClient != nil {
		archives = append(archives, telemetry.SeriesArchive{Writer: influxClient})
	}

	cache := telemetry.NewLatestCache()

	reconciler := reconcile.New(cfg.Reconcile, dir, nodes, schedules, archive)
	reconciler.SetLogger(log.Component("reconcile"))
	reconciler.SetRecorder(reg)
	reconciler.SetHealthRecorder(reg)
	reconciler.AddHealthCheck("database", db)
	if bus != nil {
		reconciler.AddHealthCheck("mqtt", bus)
	}
	if influxClient != nil {
		reconciler.AddHealthCheck("influxdb", influxClient)
	}

	deps := coordinator.Deps{
		Overrides:  overrides,
		Dispatcher: dispatcher,
		Directory:  dir,
		Schedules:  schedules,
		Cache:      cache,
		UsesModel:  engine.UsesModel(),
		Tasks:      reconciler,
		Recorder:   reg,
		Logger:     log.Component("coordinator"),
	}
	if influxClient != nil {
		deps.Series = influxClient
	}
	if journal != nil {
		deps.Journal = journal
	}
	coord := coordinator.New(deps)
	overrides.SetNotifier(coord)

	ingestor := ingest.New(ingest.Deps{
		Cache:      cache,
		Overrides:  overrides,
		Engine:     engine,
		Dispatcher: dispatcher,
		Archive:    archives,
		Addresses:  dir,
		Observer:   coord,
		Recorder:   reg,
		Logger:     log.Component("ingest"),
	})

	return &services{
		overrides:   overrides,
		schedules:   schedules,
		ingestor:    ingestor,
		reconciler:  reconciler,
		coordinator: coord,
	}, nil
}

// getConfigPath resolves the configuration file: the flag wins, then
// ROOMCTL_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("ROOMCTL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
