// Verdant Core - Irrigation Controller
//
// This is the main entry point for the Verdant Core application.
// Verdant drives solenoid irrigation valves over MQTT from weekly
// watering schedules, designed for:
//   - Unattended operation on site hardware
//   - Offline-first operation (no internet dependency)
//   - Crash-safe recovery from the activation log and watermarks
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/verdancy/verdant-core/migrations"

	"github.com/verdancy/verdant-core/internal/alert"
	"github.com/verdancy/verdant-core/internal/api"
	"github.com/verdancy/verdant-core/internal/gateway"
	"github.com/verdancy/verdant-core/internal/infrastructure/config"
	"github.com/verdancy/verdant-core/internal/infrastructure/database"
	"github.com/verdancy/verdant-core/internal/infrastructure/influxdb"
	"github.com/verdancy/verdant-core/internal/infrastructure/logging"
	"github.com/verdancy/verdant-core/internal/infrastructure/mqtt"
	"github.com/verdancy/verdant-core/internal/run"
	"github.com/verdancy/verdant-core/internal/schedule"
	"github.com/verdancy/verdant-core/internal/scheduler"
	"github.com/verdancy/verdant-core/internal/solenoid"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runApp(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runApp is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func runApp(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Verdant Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// The site timezone is the one all slot times resolve in.
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving site timezone: %w", err)
	}
	log.Info("site timezone resolved", "timezone", loc.String())

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories share the single SQLite connection
	solRepo := solenoid.NewSQLiteRepository(db.DB)
	groupRepo := solenoid.NewSQLiteGroupRepository(db.DB)
	schedRepo := schedule.NewSQLiteRepository(db.DB)
	runRepo := run.NewSQLiteRepository(db.DB)

	// Initialise solenoid registry
	registry := solenoid.NewRegistry(solRepo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading solenoid registry: %w", refreshErr)
	}
	log.Info("solenoid registry initialised", "solenoids", registry.Count())

	// The run tracker is restored by the scheduler on Start so
	// interrupted waterings are closed out by the first tick.
	tracker := run.NewTracker(runRepo)
	tracker.SetLogger(log)

	// Connect to MQTT broker
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Alert notifier publishes operator-facing faults over MQTT
	notifier := alert.NewNotifier(mqttClient)
	notifier.SetLogger(log)

	// Switch gateway: confirmed valve commands with bounded retry
	switcher := gateway.NewMQTTSwitcher(mqttClient, gateway.Options{
		CommandTimeout: cfg.CommandTimeout(),
		RetryAttempts:  cfg.Gateway.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay(),
	})
	switcher.SetLogger(log)
	switcher.SetAlerter(notifier)
	switcher.SetOnStateChange(func(switchRef string, on bool) {
		recordValveState(ctx, log, registry, influxClient, switchRef, on)
	})
	if startErr := switcher.Start(); startErr != nil {
		return fmt.Errorf("starting switch gateway: %w", startErr)
	}
	log.Info("switch gateway started",
		"command_timeout", cfg.CommandTimeout(),
		"retry_attempts", cfg.Gateway.RetryAttempts,
	)

	// Scheduler loop: fires schedules, stops expired runs, recovers
	// interrupted ones
	sched := scheduler.New(schedRepo, registry, groupRepo, tracker, switcher, scheduler.Options{
		TickInterval:      cfg.TickInterval(),
		GracePeriod:       cfg.GracePeriod(),
		Workers:           cfg.Scheduler.Workers,
		ManualRunDuration: cfg.ManualRunDuration(),
		Location:          loc,
	})
	sched.SetLogger(log)
	if influxClient != nil {
		sched.SetMetrics(influxClient)
	}
	if startErr := sched.Start(ctx); startErr != nil {
		return fmt.Errorf("starting scheduler: %w", startErr)
	}
	defer func() {
		log.Info("stopping scheduler")
		sched.Stop()
	}()
	log.Info("scheduler started",
		"tick_interval", cfg.TickInterval(),
		"grace_period", cfg.GracePeriod(),
		"workers", cfg.Scheduler.Workers,
	)

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Solenoids: registry,
		Groups:    groupRepo,
		Schedules: schedRepo,
		Runs:      runRepo,
		Tracker:   tracker,
		Control:   sched,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API, scheduler,
	// InfluxDB (if enabled), MQTT, database. The scheduler stops
	// before MQTT so in-flight valve commands can still complete.

	log.Info("Verdant Core stopped")
	return nil
}

// recordValveState mirrors a bridge state report into the registry and
// the telemetry store. Reports for switch refs without a registered
// solenoid are normal during commissioning and only logged at debug.
func recordValveState(ctx context.Context, log *logging.Logger, registry *solenoid.Registry,
	influxClient *influxdb.Client, switchRef string, on bool) {

	sol, err := registry.GetBySwitchRef(ctx, switchRef)
	if err != nil {
		log.Debug("state report for unregistered switch", "switch_ref", switchRef, "on", on)
		return
	}

	state := solenoid.ValveStateOff
	if on {
		state = solenoid.ValveStateOn
	}
	if err := registry.SetObservedState(ctx, sol.ID, state); err != nil {
		log.Warn("failed to record observed valve state",
			"solenoid_id", sol.ID, "state", state, "error", err)
	}

	if influxClient != nil {
		influxClient.WriteValveState(sol.ID, on)
	}
}

// getConfigPath returns the configuration file path.
// Uses VERDANT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VERDANT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
