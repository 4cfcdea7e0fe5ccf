// Irrigation Core - soil-moisture irrigation control plane
//
// This is the main entry point for the irrigation daemon. It serves the
// dashboard and device HTTP API, and optionally bridges field units over
// MQTT and mirrors telemetry into InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Yogesh-MG/Iotfarming/internal/api"
	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/bridge"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/config"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/influxdb"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/logging"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/mqtt"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
	"github.com/Yogesh-MG/Iotfarming/internal/provision"
	"github.com/Yogesh-MG/Iotfarming/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// Optional dotenv file loaded before the configuration.
	defaultEnvFile = ".env"
)

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring: one step per dependency
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting irrigation core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := config.LoadEnvFile(defaultEnvFile); err != nil {
		return err
	}

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, users, cfg.Security.AdminPassword, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.With("component", "device"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}

	service, err := irrigation.NewService(irrigation.NewSQLiteStore(db.DB), registry, irrigation.OptionsFromConfig(cfg.Irrigation))
	if err != nil {
		return fmt.Errorf("creating irrigation service: %w", err)
	}
	service.SetLogger(log.With("component", "irrigation"))

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo)
	recorder.SetLogger(log.With("component", "audit"))
	service.AddNotifier(recorder)

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		DB:          db,
		Service:     service,
		Registry:    registry,
		Users:       users,
		Provisioner: provision.New(db.DB, service, registry),
		Audit:       auditRepo,
		Version:     version,
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		service.AddNotifier(influxClient)
		deps.Influx = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT device bridge (optional)
	if cfg.MQTT.Enabled {
		mqttClient, deviceBridge, mqttErr := startBridge(ctx, cfg, service, registry, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("stopping device bridge")
			deviceBridge.Stop()
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		deps.MQTT = mqttClient
		deps.Bridge = deviceBridge
	} else {
		log.Info("MQTT disabled, devices use the HTTP API only")
	}

	if err := healthCheck(ctx, db, deps); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, MQTT bridge, InfluxDB, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IRRIGATION_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(config.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startBridge connects to the broker and starts relaying device traffic.
// The bridge is registered as a notifier so new commands and status changes
// are pushed to the field units.
func startBridge(ctx context.Context, cfg *config.Config, service *irrigation.Service, registry *device.Registry, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetHooks(mqtt.ConnectionHooks{
		OnConnect: func() { log.Info("MQTT connected, device filters restored") },
		OnLost:    func(err error) { log.Warn("MQTT disconnected", "error", err) },
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	deviceBridge := bridge.New(mqttClient, service, registry, bridge.Options{
		Topics: mqttClient.Topics(),
		QoS:    mqttClient.QoS(),
	})
	deviceBridge.SetLogger(log.With("component", "bridge"))
	if err := deviceBridge.Start(ctx); err != nil {
		mqttClient.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting device bridge: %w", err)
	}
	service.AddNotifier(deviceBridge)
	log.Info("device bridge started", "readings", mqttClient.Topics().AllReadings())

	return mqttClient, deviceBridge, nil
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, deps api.Deps) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if deps.MQTT != nil {
		if err := deps.MQTT.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if deps.Influx != nil {
		if err := deps.Influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
